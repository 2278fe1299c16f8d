package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/infrastructure/render"
)

func newScoresCommand(opts *globalOptions) *cobra.Command {
	var (
		q      queryOptions
		withCI bool
	)

	cmd := &cobra.Command{
		Use:   "scores [source...]",
		Short: "Print score tables for the loaded ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScores(cmd, opts, &q, withCI, locationsOrStdin(args))
		},
	}
	q.bind(cmd)
	cmd.Flags().BoolVar(&withCI, "ci", false, "wait for bootstrap confidence intervals and show them")
	return cmd
}

func runScores(cmd *cobra.Command, opts *globalOptions, q *queryOptions, withCI bool, locations []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	color, err := opts.useColor(out)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, opts, cliServiceName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, err := a.load(ctx, cmd.InOrStdin(), locations); err != nil {
		return err
	}
	res, ci, err := a.engine.Recompute(ctx, q.query())
	if err != nil {
		return err
	}

	tableOpts := render.Options{Color: color}
	if withCI {
		cis, err := ci.Wait(ctx)
		if err != nil {
			return fmt.Errorf("confidence intervals: %w", err)
		}
		tableOpts.CIs = cis
	} else {
		ci.Cancel()
	}

	_, err = io.WriteString(out, render.NewTables(tableOpts).Report(res))
	return err
}
