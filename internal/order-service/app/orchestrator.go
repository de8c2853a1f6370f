package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

type Deps struct {
	Carts  CartStore
	Users  UserDirectory
	Ledger StockLedger
	Orders OrderRepository
	Events EventPublisher

	// SagaLog may be nil.
	SagaLog sagalog.Repository
	// CompletionTimeout bounds an attempt once it no longer follows the
	// caller's cancellation.
	CompletionTimeout time.Duration

	Now     func() time.Time
	NewID   func() string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Orchestrator turns a user's cart into a confirmed order.
type Orchestrator struct {
	d      Deps
	tracer trace.Tracer
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.CompletionTimeout <= 0 {
		d.CompletionTimeout = 30 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{d: d, tracer: otel.Tracer("order-service")}
}

// CreateOrder returns a CONFIRMED order or an error; no other status escapes.
// Once the first reservation is under way the attempt ignores caller
// cancellation and runs to completion or compensation within
// CompletionTimeout, so stock is never left reserved without an owner.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID string) (*domain.Order, error) {
	ctx, span := o.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	order, err := o.createOrder(ctx, userID)
	o.d.Metrics.ObserveOrder(outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	return order, nil
}

func (o *Orchestrator) createOrder(ctx context.Context, userID string) (*domain.Order, error) {
	cart, release, err := o.d.Carts.Borrow(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order: borrow cart for %s: %w", userID, err)
	}
	defer release()

	if cart.IsEmpty() {
		return nil, &domain.EmptyCartError{UserID: userID}
	}

	if err := o.d.Users.Lookup(ctx, userID); err != nil {
		return nil, err
	}

	attemptID := o.d.NewID()
	logger := o.d.Logger.With("attempt_id", attemptID, "user_id", userID)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.d.CompletionTimeout)
	defer cancel()

	reserves := make([]*reserveStep, len(cart.Lines))
	steps := make([]coordinator.Step, 0, len(cart.Lines)+1)
	for i, line := range cart.Lines {
		reserves[i] = newReserveStep(o.d.Ledger, logger, attemptID, i, line)
		steps = append(steps, reserves[i])
	}
	persist := &persistStep{
		repo: o.d.Orders,
		build: func() *domain.Order {
			lines := make([]domain.OrderLine, len(reserves))
			for i, r := range reserves {
				lines[i] = r.orderLine()
			}
			return domain.NewOrder(o.d.NewID(), userID, lines, o.d.Now())
		},
	}
	steps = append(steps, persist)

	saga := coordinator.New(attemptID, steps, o.d.SagaLog, logger)
	if err := saga.Run(runCtx, attemptPayload(attemptID, cart)); err != nil {
		logger.WarnContext(runCtx, "order attempt failed", "error", err)
		return nil, err
	}
	order := persist.order

	o.d.Carts.RemoveOrdered(runCtx, userID, cart.Lines)
	o.publish(runCtx, logger, order)

	logger.InfoContext(runCtx, "order confirmed", "order_id", order.ID, "total", order.TotalAmount)
	return order, nil
}

// publish never fails the order; the publisher owns redelivery.
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, order *domain.Order) {
	err := o.d.Events.Publish(ctx, domain.NewOrderCreatedEvent(order))
	var deferred *events.PublishDeferredError
	switch {
	case err == nil:
	case errors.As(err, &deferred):
		logger.WarnContext(ctx, "order event deferred", "order_id", order.ID, "error", err)
	default:
		logger.ErrorContext(ctx, "order event not published", "order_id", order.ID, "error", err)
	}
}

func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return o.d.Orders.FindByID(ctx, orderID)
}

// attemptPayload is the STARTED row of the saga log: the PENDING order as
// it was about to be reserved.
func attemptPayload(attemptID string, cart domain.Cart) string {
	type line struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	p := struct {
		AttemptID string             `json:"attemptId"`
		UserID    string             `json:"userId"`
		Status    domain.OrderStatus `json:"status"`
		Lines     []line             `json:"lines"`
	}{AttemptID: attemptID, UserID: cart.UserID, Status: domain.StatusPending}
	for _, l := range cart.Lines {
		p.Lines = append(p.Lines, line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func outcome(err error) string {
	var (
		empty        *domain.EmptyCartError
		userNotFound *domain.UserNotFoundError
		prodNotFound *domain.ProductNotFoundError
		stock        *domain.InsufficientStockError
	)
	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &empty):
		return "empty_cart"
	case errors.As(err, &userNotFound), errors.As(err, &prodNotFound):
		return "not_found"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case resilience.IsUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
