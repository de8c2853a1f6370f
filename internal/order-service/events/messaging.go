package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
)

const (
	EventsExchange         = "ecommerce.events"
	OrderCreatedRoutingKey = "order.created.v1"
)

// Message is what goes on the bus. ID doubles as the AMQP MessageId so
// consumers can drop redeliveries.
type Message struct {
	ID         string
	RoutingKey string
	Body       []byte
	Timestamp  time.Time
}

// NewOrderCreatedMessage serialises evt for the bus. The order id is the
// message id.
func NewOrderCreatedMessage(evt domain.OrderCreatedEvent) (Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return Message{}, fmt.Errorf("events: marshal OrderCreated: %w", err)
	}
	return Message{
		ID:         evt.OrderID,
		RoutingKey: OrderCreatedRoutingKey,
		Body:       body,
		Timestamp:  evt.CreatedAt,
	}, nil
}

// Sender hands one message to the broker and returns once it is accepted.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PublishDeferredError is not fatal: the event is safe in the outbox and the
// relay will deliver it.
type PublishDeferredError struct {
	OrderID string
	Err     error
}

func (e *PublishDeferredError) Error() string {
	return fmt.Sprintf("events: order %s deferred to outbox: %v", e.OrderID, e.Err)
}

func (e *PublishDeferredError) Unwrap() error { return e.Err }
