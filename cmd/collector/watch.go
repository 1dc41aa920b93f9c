package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync whenever the server is reachable",
		Long: `Stay running, tracking server reachability. Pending records are pushed at
startup, whenever the connection comes back and periodically while online.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, flags)
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (db %s)\n", e.cfg.Collector.ServerURL, e.store.Path())

			last := -1
			e.app.OnPendingCount(func(n int) {
				if n == last {
					return
				}
				last = n
				if n == 0 {
					fmt.Fprintln(out, successStyle.Render("all records synced"))
					return
				}
				fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("%d pending", n)))
			})
			unsubscribe := e.monitor.Subscribe(func(online bool) {
				fmt.Fprintln(out, connectionBadge(online))
			})
			defer unsubscribe()

			if err := e.app.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			fmt.Fprintln(out, "stopped")
			return nil
		},
	}
}
