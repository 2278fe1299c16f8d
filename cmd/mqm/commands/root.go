// Package commands implements the mqm subcommands.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the mqm command tree.
func NewRootCommand() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "mqm",
		Short: "MQM translation quality rating aggregation",
		Long: `mqm loads MQM ratings and aggregates them into per-system and per-rater scores.

Sources are local paths, "-" for stdin, http(s) URLs or gs:// objects.

Commands:
  scores     Print score tables for the loaded ratings
  export     Write filtered ratings or aggregate scores as TSV
  histogram  Compare two systems segment by segment
  serve      Serve the HTTP API
  settings   Print or check scoring settings`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root)

	root.AddCommand(
		newScoresCommand(&opts),
		newExportCommand(&opts),
		newHistogramCommand(&opts),
		newServeCommand(&opts),
		newSettingsCommand(&opts),
	)
	return root
}
