// Package bootstrap holds the process wiring every binary shares: telemetry,
// service discovery, the resilient client and graceful HTTP serving.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/discovery"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Registry is a resolver a process can also announce itself in.
type Registry interface {
	resilience.Resolver
	discovery.Registrar
}

// Telemetry installs the default logger and, when enabled, the OTLP tracer.
// The returned func flushes spans and is safe to call when tracing is off.
func Telemetry(ctx context.Context, c config.Common) (*slog.Logger, telemetry.ShutdownFunc, error) {
	logger := telemetry.InitLogger(c.LogLevel)
	if !c.OTelEnabled {
		telemetry.SetupPropagation()
		return logger, func(context.Context) error { return nil }, nil
	}
	shutdown, err := telemetry.SetupTracer(ctx, c.ServiceName, c.OTelEndpoint)
	if err != nil {
		return nil, nil, err
	}
	return logger, shutdown, nil
}

// Discovery builds the registry selected by d.Mode. rdb is only used, and
// must only be non-nil, in redis mode.
func Discovery(d config.Discovery, rdb *redis.Client) (Registry, error) {
	switch d.Mode {
	case "", "static":
		s, err := discovery.Parse(d.Endpoints)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("bootstrap: redis discovery needs a redis client")
		}
		return discovery.NewRedis(rdb, d.Prefix), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown discovery mode %q", d.Mode)
	}
}

// Announce registers self under service when the registry is shared between
// processes and returns the matching deregistration.
func Announce(ctx context.Context, reg Registry, d config.Discovery, service string, logger *slog.Logger) (func(), error) {
	if d.Mode != "redis" || d.AdvertiseURL == "" {
		return func() {}, nil
	}
	if err := reg.Register(ctx, service, d.AdvertiseURL); err != nil {
		return nil, fmt.Errorf("bootstrap: register %s: %w", service, err)
	}
	logger.InfoContext(ctx, "registered in discovery", "service", service, "endpoint", d.AdvertiseURL)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reg.Deregister(ctx, service, d.AdvertiseURL); err != nil {
			logger.Error("failed to deregister", "service", service, "error", err)
		}
	}, nil
}

// Client builds the process's single breaker registry and resilient client.
// A response cache is attached when r.ResponseCacheTTL is positive: redis
// backed when kv is non-nil, in memory otherwise.
func Client(reg resilience.Resolver, r config.Resilience, kv cache.Cache, m *metrics.Metrics, logger *slog.Logger) *resilience.Client {
	breakers := resilience.NewRegistry(r.BreakerSettings(), nil, resilience.WithMetrics(m))

	var rc resilience.ResponseCache
	switch {
	case r.ResponseCacheTTL <= 0:
	case kv != nil:
		rc = resilience.NewKVResponseCache(kv, r.ResponseCacheTTL)
	default:
		rc = resilience.NewMemoryResponseCache()
	}

	return resilience.NewClient(reg, breakers, resilience.Options{
		Timeout: r.CallTimeout,
		Retry:   r.RetryPolicy(),
		Cache:   rc,
		Metrics: m,
		Logger:  logger,
	})
}

// Serve runs handler on addr until ctx is done, then drains in-flight
// requests for up to ten seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bootstrap: shutdown: %w", err)
	}
	return nil
}
