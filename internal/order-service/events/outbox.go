package events

import (
	"context"
	"time"
)

// OutboxRecord is an event waiting for, or past, delivery to the broker.
type OutboxRecord struct {
	ID          int64      `db:"id"`
	EventID     string     `db:"event_id"`
	RoutingKey  string     `db:"routing_key"`
	Payload     []byte     `db:"payload"`
	Attempts    int        `db:"attempts"`
	LastError   string     `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
	DeliveredAt *time.Time `db:"delivered_at"`
}

// Outbox durably parks events until they reach the broker. Records are unique
// per event id.
type Outbox interface {
	// Add parks msg. Adding an event id that is already parked is a no-op.
	Add(ctx context.Context, msg Message) error
	// Pending returns undelivered records, oldest first.
	Pending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkDelivered(ctx context.Context, id int64) error
	// MarkEventDelivered is MarkDelivered by event id; unknown ids are ignored.
	MarkEventDelivered(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}
