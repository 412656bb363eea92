package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per the exit discipline: 0 on overall success, 1 on any error
// or modification, 2 when an environment needs freezing and the caller did
// not request an upgrade.
const (
	exitOK          = 0
	exitFailure     = 1
	exitNeedsFreeze = 2
)

var (
	cfgPath     string
	profilePath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "goose",
	Short:         "Run configured hooks inside managed, per-environment sandboxes",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".goose.yaml", "path to the goose configuration file")
	rootCmd.PersistentFlags().StringVar(&profilePath, "run-profile", ".goose-run.toml", "path to a host-local run profile (optional overrides)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(prepushCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code, ok := exitCodeFor(err); ok {
			return code
		}
		return exitFailure
	}
	return exitOK
}
