package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Misty-Star/Speak2SQL/internal/api"
	"github.com/Misty-Star/Speak2SQL/internal/app"
	"github.com/Misty-Star/Speak2SQL/internal/auth"
	"github.com/Misty-Star/Speak2SQL/internal/config"
	"github.com/Misty-Star/Speak2SQL/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("speak2sql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open session", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:  logger,
		Session: a,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(a.Ping),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.Autosave(gctx, cfg.History.AutosaveInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return err
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		logger.Error("api server failed", slog.Any("error", runErr))
	}
	if err := a.Close(); err != nil {
		logger.Error("failed to close session", slog.Any("error", err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
