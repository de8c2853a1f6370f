package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog"
	sagasqlite "github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/adapters/collaborators"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/adapters/httpapi"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/adapters/postgres"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/app"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/cart"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/bootstrap"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

const serviceName = "order-service"

func main() {
	cfg, err := config.LoadOrderService(".env")
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
		logger.Error("order service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.OrderService, logger *slog.Logger) error {
	m := metrics.New()

	var rdb *redis.Client
	if cfg.Discovery.Mode == "redis" || cfg.IdempotencyStore == "redis" {
		rdb = cache.NewClient(cfg.Common.RedisAddr)
		defer rdb.Close()
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	publisher := events.NewPublisher(sender, st.outbox, events.Options{
		Retry:   resilience.RetryPolicy{MaxAttempts: cfg.PublishMaxAttempts},
		Metrics: m,
		Logger:  logger,
	})
	go publisher.RunRelay(ctx, cfg.OutboxRelayInterval)

	registry, err := bootstrap.Discovery(cfg.Discovery, rdb)
	if err != nil {
		return err
	}
	deregister, err := bootstrap.Announce(ctx, registry, cfg.Discovery, serviceName, logger)
	if err != nil {
		return err
	}
	defer deregister()

	var kv cache.Cache
	if rdb != nil {
		kv = cache.NewRedisCache(rdb, serviceName)
	}
	client := bootstrap.Client(registry, cfg.Resilience, kv, m, logger)

	carts := cart.NewStore()
	orchestrator := app.NewOrchestrator(app.Deps{
		Carts:             carts,
		Users:             collaborators.NewUsers(client),
		Ledger:            collaborators.NewProducts(client),
		Orders:            st.orders,
		Events:            publisher,
		SagaLog:           st.sagaLog,
		CompletionTimeout: cfg.OrderCompletionTimeout,
		Metrics:           m,
		Logger:            logger,
	})

	idem, err := newIdempotencyStore(cfg, rdb)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(carts, orchestrator, idem, logger)
	return bootstrap.Serve(ctx, ":"+cfg.Common.Port, httpapi.NewRouter(handler, m), logger)
}

type stores struct {
	orders  app.OrderRepository
	outbox  events.Outbox
	sagaLog sagalog.Repository
	close   func()
}

func openStores(ctx context.Context, cfg *config.OrderService, logger *slog.Logger) (*stores, error) {
	switch cfg.OrderStore {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sagaLog, err := sagasqlite.New(db.DB)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("using sqlite order store", "path", cfg.SQLitePath)
		return &stores{
			orders:  sqlite.NewOrders(db),
			outbox:  sqlite.NewOutbox(db),
			sagaLog: sagaLog,
			close:   func() { _ = db.Close() },
		}, nil

	case "postgres":
		version, err := postgres.Migrate(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres order store", "schema_version", version)
		return &stores{
			orders: postgres.NewOrders(pool),
			outbox: postgres.NewOutbox(pool),
			close:  pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown ORDER_STORE %q", cfg.OrderStore)
	}
}

func newSender(cfg *config.OrderService, logger *slog.Logger) (events.Sender, func(), error) {
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, order events stay in process")
		return events.NewMemorySender(), func() {}, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	sender, err := events.NewRabbitSender(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return sender, func() {
		_ = sender.Close()
		_ = conn.Close()
	}, nil
}

func newIdempotencyStore(cfg *config.OrderService, rdb *redis.Client) (httpapi.IdempotencyStore, error) {
	switch cfg.IdempotencyStore {
	case "memory":
		return httpapi.NewCacheIdempotencyStore(cache.NewMemoryCache(serviceName), cfg.IdempotencyTTL), nil
	case "redis":
		return httpapi.NewCacheIdempotencyStore(cache.NewRedisCache(rdb, serviceName), cfg.IdempotencyTTL), nil
	default:
		return nil, fmt.Errorf("unknown IDEMPOTENCY_STORE %q", cfg.IdempotencyStore)
	}
}
