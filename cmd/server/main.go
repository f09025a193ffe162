/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cost-sharing invoicing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Build the zap logger
  3. Open the store (SQLite or PostgreSQL), schema is migrated on open
  4. Register Prometheus collectors
  5. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides the configuration
  -db      Database DSN, overrides the configuration
           Use ":memory:" for an in-memory SQLite database
  -driver  Database driver: sqlite3 | pgx

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/costshare.db"
  ./server -driver=pgx -db="postgres://costshare@localhost/costshare"
  ./server -config=costshare.yaml -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and environment variables
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/costshare/api"
	"github.com/warp/costshare/config"
	"github.com/warp/costshare/logging"
	"github.com/warp/costshare/metrics"
	"github.com/warp/costshare/store/sqlstore"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port")
	dsn := flag.String("db", "", "Database DSN (SQLite path or PostgreSQL URL)")
	driver := flag.String("driver", "", "Database driver: sqlite3 | pgx")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		metrics.Init(store, logger)
	}

	handler := api.NewHandler(store, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
