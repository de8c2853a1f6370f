package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	userservice "github.com/jcmexdev/ecommerce-orchestrator/internal/user-service"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/user-service/httpapi"
)

const serviceName = "user-service"

func main() {
	cfg, err := config.LoadUsers(".env")
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("user service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Users, logger *slog.Logger) error {
	var rdb *redis.Client
	if cfg.Discovery.Mode == "redis" || cfg.Store == "redis" {
		rdb = cache.NewClient(cfg.Common.RedisAddr)
		defer rdb.Close()
	}

	var store cache.Cache
	switch cfg.Store {
	case "memory":
		store = cache.NewMemoryCache(serviceName)
	case "redis":
		store = cache.NewRedisCache(rdb, serviceName)
	default:
		return fmt.Errorf("unknown USER_STORE %q", cfg.Store)
	}

	dir := userservice.NewDirectory(store)
	if err := dir.Seed(ctx, cfg.Seed); err != nil {
		return err
	}
	logger.Info("user directory seeded", "store", cfg.Store, "users", len(cfg.Seed))

	registry, err := bootstrap.Discovery(cfg.Discovery, rdb)
	if err != nil {
		return err
	}
	deregister, err := bootstrap.Announce(ctx, registry, cfg.Discovery, serviceName, logger)
	if err != nil {
		return err
	}
	defer deregister()

	m := metrics.New()
	router := httpapi.NewRouter(httpapi.NewHandler(dir, logger), m)
	return bootstrap.Serve(ctx, ":"+cfg.Common.Port, router, logger)
}
