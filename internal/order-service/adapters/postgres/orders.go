package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
)

// ErrDuplicateOrder is returned by Save when the order id is already stored.
var ErrDuplicateOrder = errors.New("postgres: order already exists")

type Orders struct {
	pool DBPool
}

func NewOrders(pool DBPool) *Orders {
	return &Orders{pool: pool}
}

// Save writes the order, its lines and its OrderCreated outbox record in one
// transaction.
func (r *Orders) Save(ctx context.Context, o *domain.Order) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin save %s: %w", o.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
		}
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}

	for i, l := range o.Lines {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i, l.ProductID, l.Quantity, l.UnitPrice); err != nil {
			return fmt.Errorf("postgres: insert line %d of %s: %w", i, o.ID, err)
		}
	}

	msg, err := events.NewOrderCreatedMessage(domain.NewOrderCreatedEvent(o))
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, insertOutbox, msg.ID, msg.RoutingKey, msg.Body, msg.Timestamp); err != nil {
		return fmt.Errorf("postgres: park event for %s: %w", o.ID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit order %s: %w", o.ID, err)
	}
	return nil
}

func (r *Orders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	o := &domain.Order{}
	var (
		status    string
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, status, total_amount::float8, created_at
		FROM   orders
		WHERE  id = $1`, id).Scan(&o.ID, &o.UserID, &status, &o.TotalAmount, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find order %s: %w", id, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = createdAt.UTC()

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price::float8
		FROM   order_lines
		WHERE  order_id = $1
		ORDER  BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: lines for %s: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var l domain.OrderLine
		err := row.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan lines for %s: %w", id, err)
	}
	return o, nil
}
