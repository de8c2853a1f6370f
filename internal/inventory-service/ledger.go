package inventoryservice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service/domain"
)

// Ledger holds stock and the reservations made against it. Every operation
// runs under one lock, so a check and its decrement are atomic.
type Ledger struct {
	mu           sync.Mutex
	stock        map[string]*domain.StockItem
	reservations map[string]*domain.Reservation
	logger       *slog.Logger
}

func NewLedger(items []domain.StockItem, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		stock:        make(map[string]*domain.StockItem, len(items)),
		reservations: make(map[string]*domain.Reservation),
		logger:       logger,
	}
	for _, it := range items {
		item := it
		l.stock[it.ProductID] = &item
	}
	return l
}

func (l *Ledger) Product(_ context.Context, productID string) (domain.StockItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.stock[productID]
	if !ok {
		return domain.StockItem{}, domain.ErrProductNotFound
	}
	return *item, nil
}

// Reserve holds qty units of productID under key. A repeat with the same key
// returns the original reservation with replayed set and changes nothing.
func (l *Ledger) Reserve(ctx context.Context, key, productID string, qty int) (res domain.Reservation, replayed bool, err error) {
	if qty < 1 {
		return domain.Reservation{}, false, domain.ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.reservations[key]; ok {
		switch {
		case existing.Released:
			return domain.Reservation{}, false, domain.ErrReservationReleased
		case existing.ProductID != productID || existing.Quantity != qty:
			return domain.Reservation{}, false, domain.ErrKeyReused
		}
		l.logger.DebugContext(ctx, "reservation replayed", "key", key, "product_id", productID)
		return *existing, true, nil
	}

	item, ok := l.stock[productID]
	if !ok {
		return domain.Reservation{}, false, domain.ErrProductNotFound
	}
	if item.Available < qty {
		l.logger.InfoContext(ctx, "insufficient stock",
			"product_id", productID, "available", item.Available, "requested", qty)
		return domain.Reservation{}, false, domain.ErrInsufficientStock
	}

	item.Available -= qty
	r := &domain.Reservation{Key: key, ProductID: productID, Quantity: qty, UnitPrice: item.UnitPrice}
	l.reservations[key] = r
	l.logger.InfoContext(ctx, "stock reserved",
		"key", key, "product_id", productID, "quantity", qty, "available", item.Available)
	return *r, false, nil
}

// Release returns the units held under key. Releasing twice is a no-op.
// An unknown key is remembered as released so that a late reserve with it
// is refused, and ErrReservationNotFound is returned.
func (l *Ledger) Release(ctx context.Context, key string) (domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[key]
	if !ok {
		l.reservations[key] = &domain.Reservation{Key: key, Released: true}
		l.logger.WarnContext(ctx, "release for unknown reservation", "key", key)
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if r.Released {
		return *r, nil
	}

	if item, ok := l.stock[r.ProductID]; ok {
		item.Available += r.Quantity
		l.logger.InfoContext(ctx, "stock released",
			"key", key, "product_id", r.ProductID, "quantity", r.Quantity, "available", item.Available)
	}
	r.Released = true
	return *r, nil
}
