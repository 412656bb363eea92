package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/prepush"
	"github.com/ringlet-dev/goose/internal/target"
	"github.com/spf13/cobra"
)

var prepushHook string

var prepushCmd = &cobra.Command{
	Use:   "prepush <remote>",
	Short: "Run hooks over exactly the files a git pre-push is about to publish",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrepush,
}

func init() {
	prepushCmd.Flags().StringVar(&prepushHook, "hook", "", "restrict the run to a single hook id")
}

func runPrepush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	remote := args[0]

	events, err := prepush.ParseEvents(os.Stdin)
	if err != nil {
		return err
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	profile, err := config.LoadRunProfile(profilePath)
	if err != nil {
		return err
	}
	selectedHook := prepushHook
	if selectedHook == "" {
		selectedHook = profile.SelectedHook
	}

	if err := sess.prepare(ctx, false); err != nil {
		return err
	}

	paths, err := collectPaths(ctx, sess, remote, events)
	if err != nil {
		return err
	}

	targets := target.GetTargetsFromPaths(sess.cfg, sess.classifier, paths)

	result, err := sess.runScheduler(ctx, targets, selectedHook, profile.MaxRunning)
	if err != nil {
		return err
	}

	if result != ports.RunOK {
		return fmt.Errorf("prepush run completed with result: %s", result)
	}
	return nil
}

// collectPaths resolves every parsed push event to its affected paths and
// unions them, preserving first-seen order across events.
func collectPaths(ctx context.Context, sess *session, remote string, events []prepush.PushEvent) ([]string, error) {
	seen := make(map[string]struct{})
	var union []string
	for _, ev := range events {
		paths, err := prepush.PathsForEvent(ctx, sess.vcs, remote, ev)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	return union, nil
}
