package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialout/dialout/internal/api"
	"github.com/dialout/dialout/internal/api/middleware"
	"github.com/dialout/dialout/internal/auth"
	"github.com/dialout/dialout/internal/call"
	"github.com/dialout/dialout/internal/config"
	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting dialout",
		"http_port", cfg.HTTPPort,
		"platform_base_url", cfg.PlatformBaseURL,
		"callback_url", cfg.CallbackURL(),
		"heartbeat_interval", cfg.HeartbeatInterval.String(),
	)

	counters := &metrics.Counters{}

	// Outbound platform client with per-tenant client-credentials tokens.
	tokens := platform.NewTokenProvider(cfg.AppID, cfg.AppSecret, cfg.TokenEndpoint)
	client := platform.NewClient(cfg.PlatformBaseURL, tokens, logger)

	// Call registry owning the per-call keep-alive heartbeats.
	registry := call.NewRegistry(cfg.HeartbeatInterval, client, counters, logger)
	controller := call.NewController(client, registry, counters, logger)
	dialer := call.NewDialer(client, registry, cfg.BotBaseURL, cfg.CallbackURL(), cfg.TenantID, counters, logger)

	// Inbound webhook token validation against the platform's discovery
	// configuration.
	discovery := auth.NewDiscovery(cfg.DiscoveryURL, auth.DefaultIssuers, cfg.AppID, logger)
	validator := auth.NewValidator(discovery, logger)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer limiter.Stop()

	// Prometheus metrics.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.NewCollector(registry, counters, time.Now()))
	metricsH := promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})

	handler := api.NewServer(controller, dialer, registry, validator, limiter, counters, metricsH)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Stop every call heartbeat before exiting.
	registry.ReleaseAll()

	slog.Info("dialout stopped")
}
