package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
)

func main() {
	cfg, err := config.LoadGateway(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, shutdownTracer, err := bootstrap.Telemetry(ctx, cfg.Common)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	routes, err := loadRoutes(cfg)
	if err != nil {
		logger.Error("invalid gateway routes", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Discovery.Mode == "redis" {
		rdb = cache.NewClient(cfg.Common.RedisAddr)
		defer rdb.Close()
	}
	registry, err := bootstrap.Discovery(cfg.Discovery, rdb)
	if err != nil {
		logger.Error("failed to build discovery", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	// The gateway never caches responses: downstream services own idempotency.
	res := cfg.Resilience
	res.ResponseCacheTTL = 0
	client := bootstrap.Client(registry, res, nil, m, logger)

	proxy := httpx.NewProxy(routes, client, logger)
	router := httpx.NewRouter(proxy, client.Breakers(), m)

	for _, r := range routes.Routes() {
		logger.Info("gateway route", "prefix", r.Prefix, "service", r.Service, "require_user", r.RequireUser,
			"timeout", r.Timeout, "max_attempts", r.MaxAttempts)
	}
	if err := bootstrap.Serve(ctx, ":"+cfg.Common.Port, router, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func loadRoutes(cfg *config.Gateway) (*entity.RouteTable, error) {
	switch {
	case cfg.RoutesFile != "":
		return entity.LoadRoutesFile(cfg.RoutesFile)
	case cfg.Routes != "":
		return entity.ParseRoutes(cfg.Routes)
	default:
		return entity.DefaultRoutes(), nil
	}
}
