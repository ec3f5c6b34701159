package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"runstream/internal/config"
	"runstream/internal/provider"
	"runstream/internal/server"
	"runstream/internal/service"
	"runstream/internal/store"
	"runstream/internal/xslog"
)

const migrationsPath = "migrations/postgres"

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.ReadServer()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.ErrorContext(ctx, "close store", xslog.Error(err))
		}
	}()

	// Without provider credentials the server still serves ingest and
	// analysis; only sync needs the upstream API.
	var source service.TelemetrySource
	if cfg.ProviderClientID != "" {
		source = provider.New(provider.Config{
			ClientID:     cfg.ProviderClientID,
			ClientSecret: cfg.ProviderClientSecret,
			TokenURL:     cfg.ProviderTokenURL,
			BaseURL:      cfg.ProviderBaseURL,
		})
	}

	svc := service.New(st, source, cfg.Calibration())
	srv, err := server.New(svc, cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.InfoContext(ctx, "starting server", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "server error", xslog.Error(err))
		}
	}()

	<-done
	logger.InfoContext(ctx, "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Server, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		logger.InfoContext(ctx, "using postgres store")
		if err := store.RunMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	logger.InfoContext(ctx, "using sqlite store", slog.String("path", cfg.SQLitePath))
	return store.OpenSQLite(cfg.SQLitePath)
}
