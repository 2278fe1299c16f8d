package commands

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/internal/application"
)

func newExportCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write filtered ratings or aggregate scores as TSV",
	}
	cmd.AddCommand(newExportRatingsCommand(opts), newExportScoresCommand(opts))
	return cmd
}

func newExportRatingsCommand(opts *globalOptions) *cobra.Command {
	var (
		q      queryOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "ratings [source...]",
		Short: "Write the ratings that pass the filters, in canonical order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExportApp(cmd, opts, args, output, func(a *app, w io.Writer) error {
				res, err := a.engine.Evaluate(cmd.Context(), q.query())
				if err != nil {
					return err
				}
				return application.WriteRecordsTSV(w, res.Filtered)
			})
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newExportScoresCommand(opts *globalOptions) *cobra.Command {
	var (
		q           queryOptions
		output      string
		granularity string
	)
	cmd := &cobra.Command{
		Use:   "scores [source...]",
		Short: "Write aggregate scores at system, document, segment or rater granularity",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := application.ParseGranularity(granularity)
			if err != nil {
				return err
			}
			return withExportApp(cmd, opts, args, output, func(a *app, w io.Writer) error {
				rows, err := a.engine.ExportScores(cmd.Context(), q.query(), g)
				if err != nil {
					return err
				}
				return application.WriteScoresTSV(w, rows)
			})
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&granularity, "granularity", "g", string(application.GranularitySystem),
		"system, document, segment or rater")
	return cmd
}

// withExportApp loads the sources and runs write against the output.
func withExportApp(cmd *cobra.Command, opts *globalOptions, args []string, output string,
	write func(a *app, w io.Writer) error,
) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts, cliServiceName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, err := a.load(ctx, cmd.InOrStdin(), locationsOrStdin(args)); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := write(a, bw); err != nil {
		return err
	}
	return bw.Flush()
}
