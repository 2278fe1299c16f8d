package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-mqm/internal/application"
)

func newSettingsCommand(_ *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print or check scoring settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "defaults",
			Short: "Print the default scoring settings as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := application.MarshalSettingsYAML(application.DefaultSettings())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "validate <file>",
			Short: "Check a scoring settings file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cs, err := application.NewSettingsLoader().LoadFromFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d weights, %d slices, unit %s)\n",
					args[0], len(cs.Settings.Weights), len(cs.Settings.Slices), cs.Settings.ScoringUnit)
				return nil
			},
		},
	)
	return cmd
}
