package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"herb-collector/internal/collector"
	"herb-collector/internal/config"
	"herb-collector/internal/connectivity"
	"herb-collector/internal/localstore"
	"herb-collector/internal/remote"
	"herb-collector/pkg/logging"
)

type globalFlags struct {
	dbPath    string
	serverURL string
	offline   bool
	verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          "collector",
		Short:        "Capture herb collections in the field and sync them when online",
		Long:         "collector records harvest observations into a local queue and pushes them to the collection server whenever it is reachable.",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "local database path (overrides COLLECTOR_DB_PATH)")
	cmd.PersistentFlags().StringVar(&flags.serverURL, "server", "", "collection server URL (overrides COLLECTOR_SERVER_URL)")
	cmd.PersistentFlags().BoolVar(&flags.offline, "offline", false, "treat the server as unreachable")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log background activity to stderr")

	cmd.AddCommand(newCaptureCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newPendingCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newRetryCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	cmd.AddCommand(newClearCmd(flags))

	return cmd
}

// env is everything a command needs, opened from config and flags.
type env struct {
	cfg     *config.Config
	store   *localstore.Store
	client  *remote.Client
	monitor *connectivity.Monitor
	app     *collector.App
	close   func()
}

func openEnv(ctx context.Context, flags *globalFlags) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.dbPath != "" {
		cfg.Collector.DBPath = flags.dbPath
	}
	if flags.serverURL != "" {
		cfg.Collector.ServerURL = flags.serverURL
		if os.Getenv("COLLECTOR_PROBE_URL") == "" {
			cfg.Collector.ProbeURL = flags.serverURL + "/health"
		}
	}

	w, closeLog := logging.Setup(logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Quiet:      !flags.verbose,
	})
	if !flags.verbose && cfg.Logging.File == "" {
		w = io.Discard
		log.SetOutput(io.Discard)
	}

	store, err := localstore.Open(cfg.Collector.DBPath, &localstore.Options{
		Logger: logging.New(w, "localstore"),
	})
	if err != nil {
		closeLog()
		return nil, err
	}

	client := remote.NewClient(cfg.Collector.ServerURL, cfg.Collector.RequestTimeout, logging.New(w, "remote"))

	monitor := connectivity.NewMonitor(connectivity.NewHTTPProber(cfg.Collector.ProbeURL), &connectivity.Options{
		Interval:   cfg.Collector.ProbeInterval,
		Timeout:    cfg.Collector.ProbeTimeout,
		WatchPaths: cfg.Collector.WatchPaths,
		Logger:     logging.New(w, "connectivity"),
	})
	if flags.offline {
		monitor.NotifyOffline()
	} else {
		monitor.Check(ctx)
	}

	app := collector.New(store, client, monitor, &collector.Options{
		CacheTTL:     cfg.Collector.CacheTTL,
		SyncInterval: cfg.Collector.SyncInterval,
		Logger:       logging.New(w, "collector"),
	})

	return &env{
		cfg:     cfg,
		store:   store,
		client:  client,
		monitor: monitor,
		app:     app,
		close: func() {
			_ = store.Close()
			_ = closeLog()
		},
	}, nil
}
