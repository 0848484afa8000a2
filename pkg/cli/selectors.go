package cli

import (
	"github.com/spf13/cobra"

	"dev/bravebird/wagroup/pkg/selectors"
)

func newSelectorsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "selectors",
		Short: "Print the active selector table",
		Long: `Print the selector profile that create would use, after layering the
selector file over the built-in profiles. Fails if a required role is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := selectors.Resolve(a.cfg.Selectors.File, a.cfg.Selectors.Profile)
			if err != nil {
				return usageError(err)
			}

			out, err := selectors.Marshal(table)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
