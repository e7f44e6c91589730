package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "screenpilot",
		Short: "Drive a device UI from directives embedded in model output",
		Long: `screenpilot extracts automation directives such as click("OK") or
scrollDown() from streamed model output and executes them in order against
an accessibility view tree.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "additional config file layered over ~/.screenpilot and ./.screenpilot")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newParseCmd(flags),
		newReplayCmd(flags),
		newServeCmd(flags),
	)
	return root
}
