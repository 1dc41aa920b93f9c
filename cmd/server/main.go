package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"herb-collector/internal/config"
	"herb-collector/internal/handler"
	"herb-collector/internal/middleware"
	"herb-collector/internal/repository"
	"herb-collector/internal/service"
	"herb-collector/internal/websocket"
	"herb-collector/pkg/logging"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port       string
		driver     string
		uploadsDir string
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the herb collection API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if port != "" {
				cfg.Server.Port = port
			}
			if driver != "" {
				cfg.Storage.Driver = driver
			}
			if uploadsDir != "" {
				cfg.Storage.UploadsDir = uploadsDir
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&driver, "storage", "", "record store: couchdb or memory (overrides STORAGE_DRIVER)")
	cmd.Flags().StringVar(&uploadsDir, "uploads", "", "photo upload directory (overrides UPLOADS_DIR)")

	return cmd
}

func run(cfg *config.Config) error {
	_, closeLog := logging.Setup(logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer closeLog()

	collectionRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnections,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler())
	go wsManager.Run(ctx)

	collectionService := service.NewCollectionService(
		collectionRepo,
		wsManager,
		cfg.Storage.UploadsDir,
		cfg.Storage.MaxUploadBytes,
	)

	collectionHandler := handler.NewCollectionHandler(collectionService, cfg.Storage.MaxUploadBytes)
	wsHandler := handler.NewWebSocketHandler(
		wsManager,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
		cfg.WebSocket.MaxMessageSize,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/collections", collectionHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/collection", collectionHandler.Create).Methods("POST", "OPTIONS")

	r.PathPrefix(service.UploadsURLPrefix).Handler(
		http.StripPrefix(service.UploadsURLPrefix, http.FileServer(http.Dir(cfg.Storage.UploadsDir))),
	).Methods("GET", "HEAD")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET", "HEAD")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting collection server on %s (env: %s, storage: %s)", addr, cfg.Server.Env, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}

func openRepository(cfg *config.Config) (repository.CollectionRepository, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Printf("Using in-memory record store; records are lost on restart")
		return repository.NewMemoryCollectionRepository(), nil
	}

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
	return repository.NewCollectionRepository(client, cfg.Database.Name), nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"herb-collector"}`))
}
