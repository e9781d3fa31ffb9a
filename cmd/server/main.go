// Package main runs the pool mirror service: the REST API plus the
// background watcher and deadline sweeper.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basesafe/pool-service/internal/app"
	"github.com/basesafe/pool-service/internal/app/httpapi"
	"github.com/basesafe/pool-service/internal/app/metrics"
	"github.com/basesafe/pool-service/internal/config"
	"github.com/basesafe/pool-service/internal/middleware"
	"github.com/basesafe/pool-service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application.Pools, application.Watcher, log.WithField("component", "httpapi"))

	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log.WithField("component", "ratelimit"))
	limiter.StartCleanup(10 * time.Minute)
	requests := middleware.NewRequestLogger(log.WithField("component", "http"), "/healthz", "/metrics")

	chained := cors.Handler(limiter.Handler(requests.Handler(metrics.InstrumentHandler(handler))))

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      chained,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("pool service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("pool service stopped")
}
