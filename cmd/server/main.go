/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cash ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env plus process environment)
  2. Open the configured store (sqlite or postgres)
  3. Seed a bootstrap admin operator when the operator table is empty
  4. Configure HTTP router
  5. Start server with graceful shutdown

CONFIGURATION (environment):
  PORT                 HTTP server port (default: 8080)
  LEDGER_DRIVER        "sqlite" or "postgres" (default: sqlite)
  LEDGER_SQLITE_PATH   SQLite database path; ":memory:" for in-memory
  DATABASE_URL         Postgres connection string (postgres driver)
  LEDGER_TIMEZONE      Canonical timezone for month bucketing
  LEDGER_ENV           "development" or "production"

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Environment loading and validation
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Persistence
*/
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/cash-ledger/api"
	"github.com/warp/cash-ledger/config"
	"github.com/warp/cash-ledger/ledger"
	"github.com/warp/cash-ledger/store/postgres"
	"github.com/warp/cash-ledger/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := seedBootstrapOperator(context.Background(), store, logger); err != nil {
		logger.Error("failed to seed bootstrap operator", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, loc)
	handler.Engine.Logger = logger
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"driver", cfg.Driver,
			"env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// closableBackend is the API backend plus the lifecycle method both store
// implementations provide.
type closableBackend interface {
	api.Backend
	Close() error
}

func openStore(cfg *config.Config) (closableBackend, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

// seedBootstrapOperator creates a default admin when no operators exist,
// so the very first login has someone to log in as.
func seedBootstrapOperator(ctx context.Context, store api.Backend, logger *slog.Logger) error {
	operators, err := store.ListOperators(ctx)
	if err != nil {
		return err
	}
	if len(operators) > 0 {
		return nil
	}

	admin := ledger.Operator{
		ID:   "admin",
		Name: "Administrator",
		Role: ledger.RoleAdmin,
	}
	if err := store.SaveOperator(ctx, admin); err != nil {
		return err
	}
	logger.Info("seeded bootstrap operator", "operator_id", admin.ID)
	return nil
}
