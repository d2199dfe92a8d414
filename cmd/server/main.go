/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles
  configuration, dependency wiring, the background sweeper, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and read configuration
  2. Build the zap logger (development or production encoding)
  3. Open the store: Postgres when DATABASE_URL is set, SQLite otherwise
  4. Wire ledger, registry, engine, waitlist and token authority
  5. Start the background sweeper
  6. Serve HTTP with graceful shutdown

CONFIGURATION (environment, flags override):
  PORT            HTTP port (default 8080)
  DATABASE_URL    Postgres DSN; when set, SQLite is not used
  DB_PATH         SQLite path (default classlog.db, ":memory:" works)
  ENV             "production" switches zap to JSON encoding
  SWEEP_INTERVAL  Maintenance pass interval (Go duration, default 15m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the sweeper, drain HTTP (30s timeout), close
  the store.

SEE ALSO:
  - api/server.go: Router configuration
  - api/sweeper.go: Background maintenance
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/makersapien/classlog-sub002/api"
	"github.com/makersapien/classlog-sub002/booking"
	"github.com/makersapien/classlog-sub002/store/postgres"
	"github.com/makersapien/classlog-sub002/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "classlog.db"), "SQLite database path")
	flag.Parse()

	logger := buildLogger()
	defer logger.Sync()

	// Store: Postgres when a DSN is configured, SQLite otherwise.
	var (
		store   booking.TxStore
		closeFn func()
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := postgres.New(context.Background(), dsn)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		store = pg
		closeFn = pg.Close
		logger.Info("using postgres store")
	} else {
		sl, err := sqlite.New(*dbPath)
		if err != nil {
			logger.Fatal("failed to open sqlite database", zap.Error(err))
		}
		store = sl
		closeFn = func() { sl.Close() }
		logger.Info("using sqlite store", zap.String("path", *dbPath))
	}
	defer closeFn()

	// Domain services.
	notifier := &booking.LogNotifier{Logger: logger}
	ledger := booking.NewCreditLedger(store)
	registry := booking.NewSlotRegistry(store)
	engine := booking.NewBookingEngine(store, booking.EngineConfig{}, notifier, logger)
	waitlist := booking.NewWaitlistQueue(store, engine, notifier, logger)
	tokens := booking.NewShareTokenAuthority(store, logger)

	// Freed slots flow to the waitlist after the cancel commits.
	engine.SetFreedListener(waitlist)

	handler := api.NewHandler(store, ledger, registry, engine, waitlist, tokens, logger)
	router := api.NewRouter(handler)

	sweeper := api.NewSweeper(engine, waitlist, registry, logger)
	if d := os.Getenv("SWEEP_INTERVAL"); d != "" {
		iv, err := time.ParseDuration(d)
		if err != nil {
			logger.Fatal("invalid SWEEP_INTERVAL", zap.String("value", d), zap.Error(err))
		}
		sweeper.Interval = iv
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// buildLogger returns a production JSON logger when ENV=production,
// a development console logger otherwise.
func buildLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}
