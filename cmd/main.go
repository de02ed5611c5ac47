// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/events-activities/internal/cache"
	"github.com/Shivanand-hulikatti/events-activities/internal/config"
	"github.com/Shivanand-hulikatti/events-activities/internal/database"
	"github.com/Shivanand-hulikatti/events-activities/internal/dispatch"
	"github.com/Shivanand-hulikatti/events-activities/internal/handler"
	"github.com/Shivanand-hulikatti/events-activities/internal/payment"
	"github.com/Shivanand-hulikatti/events-activities/internal/render"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/events-activities/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/events-activities/internal/scheduler"
	"github.com/Shivanand-hulikatti/events-activities/internal/service"
	"github.com/Shivanand-hulikatti/events-activities/internal/telemetry"
)

func main() {
	addr := pflag.String("addr", "", "listen address (overrides PORT)")
	migrateOnly := pflag.Bool("migrate-only", false, "apply the schema and exit")
	pflag.Parse()

	if err := run(*addr, *migrateOnly); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(addr string, migrateOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Tracing ────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// ── 2. Storage ────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if migrateOnly {
		logger.Info("schema applied", "driver", cfg.StoreDriver)
		return nil
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	renderer := render.New(cfg.Locale, cfg.Location())
	dispatcher := dispatch.New(store, renderer, logger)

	opts := service.Options{
		Dispatcher:      dispatcher,
		Logger:          logger,
		OfferTTL:        cfg.OfferTTL,
		AdminEmails:     cfg.AdminEmails,
		DefaultCurrency: cfg.DefaultCurrency,
	}
	if cfg.MidtransServerKey != "" {
		mt := payment.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)
		opts.Processor = mt
		opts.WebhookKey = mt.ServerKey()
		logger.Info("payments via midtrans", "production", cfg.MidtransProduction)
	} else {
		opts.Processor = payment.Manual{BaseURL: cfg.PublicBaseURL}
		logger.Warn("MIDTRANS_SERVER_KEY not set, paid joins need manual confirmation")
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Cache = cache.New(rdb, cfg.CacheTTL, logger)
	}

	eventSvc := service.NewEventService(store, opts)

	tokens, err := handler.NewTokens(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		return err
	}
	eventHandler := handler.NewEventHandler(eventSvc, tokens, logger)

	sweeps, err := scheduler.New(cfg.SweepSchedule, eventSvc, dispatcher, logger, nil)
	if err != nil {
		return err
	}

	// ── 4. Start server with graceful shutdown ────────────────────────────
	if addr == "" {
		addr = ":" + cfg.Port
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(eventHandler, tokens, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweeps.Start()
		<-gctx.Done()
		<-sweeps.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return st, nil
	}

	pool, err := database.NewPool(ctx, cfg.DB.Database(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.New(pool), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
