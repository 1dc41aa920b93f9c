package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPendingCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show records waiting to be synced",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			pending, err := e.app.Pending(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return outputJSON(out, pending)
			}

			if len(pending) == 0 {
				fmt.Fprintln(out, successStyle.Render("Nothing to sync."))
				return nil
			}
			outputRecords(out, pending)
			fmt.Fprintf(out, "%d pending\n", len(pending))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")

	return cmd
}
