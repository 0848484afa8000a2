package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev/bravebird/wagroup/pkg/contacts"
	"dev/bravebird/wagroup/pkg/runner"
)

func newContactsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts FILE",
		Short: "Print the phone numbers that would be added from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := contacts.NewLoader(
				contacts.WithColumn(a.cfg.Contacts.Column),
				contacts.WithSheet(a.cfg.Contacts.Sheet),
				contacts.WithLogger(a.logger),
			)

			list, err := loader.LoadErr(args[0])
			if err != nil {
				return &ExitError{Code: ExitNoContacts, Err: err}
			}
			if len(list) == 0 {
				return &ExitError{Code: ExitNoContacts, Err: runner.ErrNoContacts}
			}

			for _, c := range list {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}

	cmd.Flags().String("column", "", "phone number column header")
	cmd.Flags().String("sheet", "", "worksheet to read from .xlsx files")

	return cmd
}
