package main

import (
	"context"
	"fmt"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/target"
	"github.com/spf13/cobra"
)

var (
	runSelector   string
	runHook       string
	runUpgrade    bool
	runMaxRunning int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepare every configured environment, then run hooks over the selected targets",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSelector, "selector", "diff", "target selector: all, diff, or staged")
	runCmd.Flags().StringVar(&runHook, "hook", "", "restrict the run to a single hook id")
	runCmd.Flags().BoolVar(&runUpgrade, "upgrade", false, "unconditionally freeze dependencies before syncing")
	runCmd.Flags().IntVar(&runMaxRunning, "max-running", 0, "maximum concurrently running units (0: use the CPU-derived default)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	profile, err := config.LoadRunProfile(profilePath)
	if err != nil {
		return err
	}
	selectedHook := runHook
	if selectedHook == "" {
		selectedHook = profile.SelectedHook
	}
	maxRunning := runMaxRunning
	if maxRunning == 0 {
		maxRunning = profile.MaxRunning
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	if err := sess.prepare(ctx, runUpgrade); err != nil {
		return err
	}

	targets, err := target.SelectTargets(ctx, sess.cfg, sess.vcs, sess.classifier, target.Selector(runSelector))
	if err != nil {
		return err
	}

	if profile.DryRun {
		sess.logger.Info(ctx, fmt.Sprintf("dry run: %d target(s) selected, hooks would run but were skipped", len(targets)))
		return nil
	}

	result, err := sess.runScheduler(ctx, targets, selectedHook, maxRunning)
	if err != nil {
		return err
	}

	if result != ports.RunOK {
		return fmt.Errorf("run completed with result: %s", result)
	}
	return nil
}
