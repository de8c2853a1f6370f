package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
)

type outboxRow struct {
	ID          int64          `db:"id"`
	EventID     string         `db:"event_id"`
	RoutingKey  string         `db:"routing_key"`
	Payload     []byte         `db:"payload"`
	Attempts    int            `db:"attempts"`
	LastError   string         `db:"last_error"`
	CreatedAt   string         `db:"created_at"`
	DeliveredAt sql.NullString `db:"delivered_at"`
}

const insertOutbox = `
	INSERT INTO outbox (event_id, routing_key, payload, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (event_id) DO NOTHING`

// Outbox holds OrderCreated events until the broker has them.
type Outbox struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewOutbox(db *sqlx.DB) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

func (o *Outbox) Add(ctx context.Context, msg events.Message) error {
	_, err := o.db.ExecContext(ctx, insertOutbox,
		msg.ID, msg.RoutingKey, msg.Body, formatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("sqlite: outbox add %s: %w", msg.ID, err)
	}
	return nil
}

// Pending returns undelivered records oldest first. limit <= 0 means all.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]events.OutboxRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []outboxRow
	if err := o.db.SelectContext(ctx, &rows, `
		SELECT id, event_id, routing_key, payload, attempts, last_error, created_at, delivered_at
		FROM   outbox
		WHERE  delivered_at IS NULL
		ORDER  BY id
		LIMIT  ?`, limit); err != nil {
		return nil, fmt.Errorf("sqlite: outbox pending: %w", err)
	}

	out := make([]events.OutboxRecord, 0, len(rows))
	for _, r := range rows {
		createdAt, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, events.OutboxRecord{
			ID:         r.ID,
			EventID:    r.EventID,
			RoutingKey: r.RoutingKey,
			Payload:    r.Payload,
			Attempts:   r.Attempts,
			LastError:  r.LastError,
			CreatedAt:  createdAt,
		})
	}
	return out, nil
}

func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	if _, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET delivered_at = ? WHERE id = ?`, formatTime(o.now()), id); err != nil {
		return fmt.Errorf("sqlite: outbox mark delivered %d: %w", id, err)
	}
	return nil
}

func (o *Outbox) MarkEventDelivered(ctx context.Context, eventID string) error {
	if _, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET delivered_at = ? WHERE event_id = ? AND delivered_at IS NULL`,
		formatTime(o.now()), eventID); err != nil {
		return fmt.Errorf("sqlite: outbox mark delivered %s: %w", eventID, err)
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, id); err != nil {
		return fmt.Errorf("sqlite: outbox mark failed %d: %w", id, err)
	}
	return nil
}
