package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zuckdorsey/inputtrace/internal/config"
	"github.com/zuckdorsey/inputtrace/internal/db"
	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/server"
)

var serverFlags struct {
	listenAddr string
	dbPath     string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the receiver service",
	Long: `Run the receiver: accept event batches from agents on POST /api/input,
persist them to SQLite and serve the dashboard, the query API, a live
websocket feed and Prometheus metrics.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverFlags.listenAddr, "listen", "", "listen address (overrides config listen_addr)")
	serverCmd.Flags().StringVar(&serverFlags.dbPath, "db", "", "database path (overrides config db_path)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverFlags.listenAddr != "" {
		cfg.ListenAddr = serverFlags.listenAddr
	}
	if serverFlags.dbPath != "" {
		cfg.DBPath = serverFlags.dbPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	hub := server.NewHub(logger.Named("ws"))
	srv := &server.Server{
		DB:             database,
		Logger:         logger.Named("http"),
		Metrics:        metrics.NewDefault(),
		Hub:            hub,
		DashboardLimit: cfg.DashboardLimit,
	}

	managed := server.NewManagedServer("receiver", cfg.ListenAddr, srv.Handler(), logger.Named("http"))
	managed.Start()
	if err := managed.WaitForStartup(250 * time.Millisecond); err != nil {
		return err
	}
	logger.Info("receiver listening", logging.Addr(cfg.ListenAddr), logging.Path(cfg.DBPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	managed.Shutdown(ctx)

	return nil
}
