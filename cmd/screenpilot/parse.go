package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/odvcencio/screenpilot/pkg/command"
	"github.com/odvcencio/screenpilot/pkg/directive"
)

func newParseCmd(flags *rootFlags) *cobra.Command {
	var split int
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Print the commands found in stdin as JSON lines",
		Long: `parse feeds stdin through the directive parser, one line at a time
(or --split runes at a time), and prints each extracted command as a JSON
record. Nothing is executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, appOptions{stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			parser := directive.NewParser(directive.Options{Logger: a.logger, Hub: a.hub})
			enc := json.NewEncoder(cmd.OutOrStdout())
			return readChunks(cmd.InOrStdin(), split, func(chunk string) error {
				for _, rec := range command.ToRecords(parser.Feed(chunk)) {
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&split, "split", 0, "feed stdin in chunks of this many runes instead of lines")
	return cmd
}
