package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every local record, including unsynced ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.app.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			if n > 0 && !force {
				return fmt.Errorf("%d records are not synced yet; pass --force to discard them", n)
			}

			if err := e.app.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Local records cleared."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard records that have not been synced")

	return cmd
}
