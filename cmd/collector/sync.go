package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending records to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			if !e.monitor.Online() {
				fmt.Fprintln(out, connectionBadge(false), "server unreachable, records stay queued")
				return nil
			}

			res, err := e.app.SyncNow(cmd.Context())
			if err != nil {
				return err
			}

			switch {
			case res.Succeeded == 0 && res.Failed == 0:
				fmt.Fprintln(out, successStyle.Render("Nothing to sync."))
			case res.Failed == 0:
				fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓"), res)
			default:
				fmt.Fprintf(out, "%s %s\n", warningStyle.Render("!"), res)
			}
			return nil
		},
	}
}
