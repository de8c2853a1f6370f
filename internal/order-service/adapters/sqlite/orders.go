package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
)

type orderRow struct {
	ID          string  `db:"id"`
	UserID      string  `db:"user_id"`
	Status      string  `db:"status"`
	TotalAmount float64 `db:"total_amount"`
	CreatedAt   string  `db:"created_at"`
}

type lineRow struct {
	OrderID   string  `db:"order_id"`
	LineNo    int     `db:"line_no"`
	ProductID string  `db:"product_id"`
	Quantity  int     `db:"quantity"`
	UnitPrice float64 `db:"unit_price"`
}

type Orders struct {
	db *sqlx.DB
}

func NewOrders(db *sqlx.DB) *Orders {
	return &Orders{db: db}
}

// Save writes the order, its lines and its OrderCreated outbox record in one
// transaction, so a committed order always has an event waiting for the relay.
func (r *Orders) Save(ctx context.Context, o *domain.Order) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save %s: %w", o.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, created_at)
		VALUES (:id, :user_id, :status, :total_amount, :created_at)`,
		orderRow{
			ID:          o.ID,
			UserID:      o.UserID,
			Status:      string(o.Status),
			TotalAmount: o.TotalAmount,
			CreatedAt:   formatTime(o.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlite: insert order %s: %w", o.ID, err)
	}

	if len(o.Lines) > 0 {
		lines := make([]lineRow, len(o.Lines))
		for i, l := range o.Lines {
			lines[i] = lineRow{OrderID: o.ID, LineNo: i, ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price)
			VALUES (:order_id, :line_no, :product_id, :quantity, :unit_price)`, lines)
		if err != nil {
			return fmt.Errorf("sqlite: insert lines for %s: %w", o.ID, err)
		}
	}

	msg, err := events.NewOrderCreatedMessage(domain.NewOrderCreatedEvent(o))
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, insertOutbox,
		msg.ID, msg.RoutingKey, msg.Body, formatTime(msg.Timestamp)); err != nil {
		return fmt.Errorf("sqlite: park event for %s: %w", o.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit order %s: %w", o.ID, err)
	}
	return nil
}

func (r *Orders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, status, total_amount, created_at
		FROM   orders
		WHERE  id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find order %s: %w", id, err)
	}

	var lines []lineRow
	if err := r.db.SelectContext(ctx, &lines, `
		SELECT order_id, line_no, product_id, quantity, unit_price
		FROM   order_lines
		WHERE  order_id = ?
		ORDER  BY line_no`, id); err != nil {
		return nil, fmt.Errorf("sqlite: lines for %s: %w", id, err)
	}

	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	o := &domain.Order{
		ID:          row.ID,
		UserID:      row.UserID,
		Status:      domain.OrderStatus(row.Status),
		TotalAmount: row.TotalAmount,
		CreatedAt:   createdAt,
		Lines:       make([]domain.OrderLine, len(lines)),
	}
	for i, l := range lines {
		o.Lines[i] = domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return o, nil
}
