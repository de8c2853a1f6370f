package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
)

// --- reserveStep ---

// reserveStep reserves one cart line. Its key is reused by every retry of the
// reservation and by the release, so the ledger sees one logical operation.
type reserveStep struct {
	ledger    StockLedger
	logger    *slog.Logger
	line      domain.CartLine
	key       string
	unitPrice float64
}

func newReserveStep(ledger StockLedger, logger *slog.Logger, attemptID string, index int, line domain.CartLine) *reserveStep {
	return &reserveStep{
		ledger: ledger,
		logger: logger,
		line:   line,
		key:    fmt.Sprintf("%s/%d/%s", attemptID, index, line.ProductID),
	}
}

func (s *reserveStep) Name() string { return "reserve:" + s.line.ProductID }

// Execute reserves the line. When the ledger's answer is lost (timeout,
// unavailable) the reservation may still have been applied, so the key is
// released before the failure is reported; the saga only compensates steps
// that completed. A failed release is joined to the returned error so the
// saga log keeps the key that may still hold stock.
func (s *reserveStep) Execute(ctx context.Context) error {
	price, err := s.ledger.Reserve(ctx, s.line.ProductID, s.line.Quantity, s.key)
	if err != nil {
		if isLedgerAnswer(err) {
			return err
		}
		if relErr := s.ledger.Release(ctx, s.key); relErr != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: failed to release unanswered reservation",
				"key", s.key, "product_id", s.line.ProductID, "error", relErr)
			return errors.Join(err, fmt.Errorf("release %s: %w", s.key, relErr))
		}
		return err
	}
	s.unitPrice = price
	return nil
}

func (s *reserveStep) Compensate(ctx context.Context) error {
	return s.ledger.Release(ctx, s.key)
}

func isLedgerAnswer(err error) bool {
	var (
		stock    *domain.InsufficientStockError
		notFound *domain.ProductNotFoundError
	)
	return errors.As(err, &stock) || errors.As(err, &notFound)
}

func (s *reserveStep) orderLine() domain.OrderLine {
	return domain.OrderLine{ProductID: s.line.ProductID, Quantity: s.line.Quantity, UnitPrice: s.unitPrice}
}

// --- persistStep ---

// persistStep is last, so its compensation never runs; a failed Save leaves
// nothing behind and the reservations before it are released.
type persistStep struct {
	repo  OrderRepository
	build func() *domain.Order
	order *domain.Order
}

func (s *persistStep) Name() string { return "persist_order" }

func (s *persistStep) Execute(ctx context.Context) error {
	s.order = s.build()
	if err := s.repo.Save(ctx, s.order); err != nil {
		return fmt.Errorf("order: persist %s: %w", s.order.ID, err)
	}
	return nil
}

func (s *persistStep) Compensate(context.Context) error { return nil }
