package app

import (
	"context"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
)

// CartStore is the slice of the cart store the orchestrator needs.
type CartStore interface {
	Borrow(ctx context.Context, userID string) (domain.Cart, func(), error)
	RemoveOrdered(ctx context.Context, userID string, ordered []domain.CartLine)
}

// UserDirectory returns nil when the user exists and *domain.UserNotFoundError
// when it does not.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) error
}

// StockLedger is the product service's atomic decrement-if-sufficient
// contract. Both calls are idempotent per key.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int, key string) (unitPrice float64, err error)
	Release(ctx context.Context, key string) error
}

type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	// FindByID returns *domain.OrderNotFoundError when id is unknown.
	FindByID(ctx context.Context, id string) (*domain.Order, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, evt domain.OrderCreatedEvent) error
}
