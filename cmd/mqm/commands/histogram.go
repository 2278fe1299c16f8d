package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/infrastructure/render"
)

func newHistogramCommand(opts *globalOptions) *cobra.Command {
	var (
		q      queryOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "histogram <system1> <system2> [source...]",
		Short: "Compare two systems segment by segment",
		Long: `histogram bins the per-segment score differences of two systems and writes
an HTML bar chart. A summary of the bins is printed to stdout.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistogram(cmd, opts, &q, args[0], args[1], locationsOrStdin(args[2:]), output)
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "histogram.html", "HTML chart file")
	return cmd
}

func runHistogram(cmd *cobra.Command, opts *globalOptions, q *queryOptions, sys1, sys2 string,
	locations []string, output string,
) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts, cliServiceName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, err := a.load(ctx, cmd.InOrStdin(), locations); err != nil {
		return err
	}
	h, err := a.engine.Histogram(ctx, q.query(), sys1, sys2)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d segments, %s: %d segments, %d in common\n", h.System1, h.Segs1, h.System2, h.Segs2, h.Common)
	for side, better := range []string{h.System1, h.System2} {
		for _, bin := range h.Bins(side) {
			fmt.Fprintf(out, "%s better by %s: %d\n", better, bin.Label(), len(bin.Keys))
		}
	}
	fmt.Fprintf(out, "equal: %d\n", len(h.Equal))

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	if err := render.HistogramPage(f, h); err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	a.logger.InfoContext(ctx, "histogram written", "path", output)
	return nil
}
