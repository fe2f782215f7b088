// Command authd serves the token authenticator over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/adeilh/rakh-auth/authapi"
	"github.com/adeilh/rakh-auth/httpx"
	"github.com/adeilh/rakh-auth/internal/config"
	"github.com/adeilh/rakh-auth/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authd stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("addr", cfg.HTTP.Address),
		zap.String("principals", cfg.Storage.Principals),
		zap.String("revocations", cfg.Storage.Revocations),
	)

	svc, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()
	for _, janitor := range svc.janitors {
		go janitor(ctx)
	}

	srv := httpx.NewServer(serverOptions(cfg, logger)...)
	srv.RegisterRoutes(authapi.NewHandler(svc.auth, authapi.WithLogger(logger.Named("api"))).Register)
	return srv.Start(ctx)
}

func serverOptions(cfg config.Config, logger *zap.Logger) []httpx.ServerOption {
	opts := []httpx.ServerOption{
		httpx.WithAddress(cfg.HTTP.Address),
		httpx.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
		httpx.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpx.WithLogger(logger.Named("http")),
	}
	if cfg.HTTP.RateLimit > 0 {
		opts = append(opts, httpx.WithRateLimit(httpx.RateLimit{
			Requests: cfg.HTTP.RateLimit,
			Window:   cfg.HTTP.RateWindow,
		}))
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		opts = append(opts, httpx.WithCORS(&middleware.CORSConfig{AllowOrigins: cfg.HTTP.CORSOrigins}))
	}
	return opts
}
