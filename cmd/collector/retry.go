package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"herb-collector/internal/syncer"
)

func newRetryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <local-id>",
		Short: "Retry submitting a single pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid local id %q", args[0])
			}

			e, err := openEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.app.Retry(cmd.Context(), id); err != nil {
				if errors.Is(err, syncer.ErrNotFound) {
					return fmt.Errorf("no pending record #%d", id)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("✗"), "retry failed, record kept for later")
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s record #%d synced\n", successStyle.Render("✓"), id)
			return nil
		},
	}
}
