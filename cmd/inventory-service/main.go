package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	inventoryservice "github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service/httpapi"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.LoadInventory(".env")
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

	items, err := domain.ParseSeed(cfg.Seed)
	if err != nil {
		logger.Error("invalid INVENTORY_SEED", "error", err)
		os.Exit(1)
	}
	ledger := inventoryservice.NewLedger(items, logger)
	logger.Info("inventory seeded", "products", len(items))

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
	deregister, err := bootstrap.Announce(ctx, registry, cfg.Discovery, serviceName, logger)
	if err != nil {
		logger.Error("failed to register", "error", err)
		os.Exit(1)
	}
	defer deregister()

	m := metrics.New()
	router := httpapi.NewRouter(httpapi.NewHandler(ledger, logger), m)
	if err := bootstrap.Serve(ctx, ":"+cfg.Common.Port, router, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
