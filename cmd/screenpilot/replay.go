package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/pilot"
	"github.com/odvcencio/screenpilot/pkg/status"
)

type replayFlags struct {
	tree   string
	width  int
	height int
	split  int
	strict bool
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	rf := &replayFlags{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Execute directives from stdin against a captured UI dump",
		Long: `replay streams stdin through a pilot backed by a simulated device built
from a uiautomator XML dump, printing one status line per command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, flags, rf)
		},
	}
	cmd.Flags().StringVar(&rf.tree, "tree", "", "uiautomator XML dump to simulate (required)")
	cmd.Flags().IntVar(&rf.width, "width", 0, "display width in pixels; defaults to the dump root bounds")
	cmd.Flags().IntVar(&rf.height, "height", 0, "display height in pixels; defaults to the dump root bounds")
	cmd.Flags().IntVar(&rf.split, "split", 0, "feed stdin in chunks of this many runes instead of lines")
	cmd.Flags().BoolVar(&rf.strict, "strict", false, "exit with status 3 when any command fails")
	_ = cmd.MarkFlagRequired("tree")
	return cmd
}

func runReplay(cmd *cobra.Command, flags *rootFlags, rf *replayFlags) error {
	ctx := cmd.Context()
	a, err := newApp(flags, appOptions{journal: true, stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	device, err := a.loadDevice(rf.tree, rf.width, rf.height)
	if err != nil {
		return err
	}
	defer device.Wait()

	p := pilot.New(pilot.Options{
		Engine:    a.newEngine(device),
		Journal:   a.journal,
		Hub:       a.hub,
		Logger:    a.logger,
		SessionID: a.sessionID,
		Sinks:     []automation.StatusSink{status.NewWriterSink(cmd.OutOrStdout())},
	})
	p.Start(ctx)
	defer p.Close()

	var subs []pilot.Submission
	err = readChunks(cmd.InOrStdin(), rf.split, func(chunk string) error {
		sub, err := p.Feed(ctx, chunk, false, "replay")
		if err != nil {
			return err
		}
		if sub.Queued() {
			subs = append(subs, sub)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var failed, skipped int
	for _, sub := range subs {
		report, err := sub.Wait(ctx)
		if err != nil {
			return err
		}
		failed += report.Failed
		skipped += report.Skipped
	}
	if rf.strict && failed+skipped > 0 {
		return withExitCode(fmt.Errorf("%d command(s) failed, %d skipped", failed, skipped), exitCommandsFailed)
	}
	return nil
}
