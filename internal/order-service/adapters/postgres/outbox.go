package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
)

const insertOutbox = `
	INSERT INTO outbox (event_id, routing_key, payload, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (event_id) DO NOTHING`

type Outbox struct {
	pool DBPool
}

func NewOutbox(pool DBPool) *Outbox {
	return &Outbox{pool: pool}
}

func (o *Outbox) Add(ctx context.Context, msg events.Message) error {
	if _, err := o.pool.Exec(ctx, insertOutbox,
		msg.ID, msg.RoutingKey, msg.Body, msg.Timestamp); err != nil {
		return fmt.Errorf("postgres: outbox add %s: %w", msg.ID, err)
	}
	return nil
}

// Pending returns undelivered records oldest first. limit <= 0 means all.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]events.OutboxRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := o.pool.Query(ctx, `
		SELECT id, event_id, routing_key, payload, attempts, last_error, created_at, delivered_at
		FROM   outbox
		WHERE  delivered_at IS NULL
		ORDER  BY id
		LIMIT  $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres: outbox pending: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[events.OutboxRecord])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outbox: %w", err)
	}
	return records, nil
}

func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	if _, err := o.pool.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: outbox mark delivered %d: %w", id, err)
	}
	return nil
}

func (o *Outbox) MarkEventDelivered(ctx context.Context, eventID string) error {
	if _, err := o.pool.Exec(ctx,
		`UPDATE outbox SET delivered_at = now() WHERE event_id = $1 AND delivered_at IS NULL`, eventID); err != nil {
		return fmt.Errorf("postgres: outbox mark delivered %s: %w", eventID, err)
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := o.pool.Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason); err != nil {
		return fmt.Errorf("postgres: outbox mark failed %d: %w", id, err)
	}
	return nil
}
