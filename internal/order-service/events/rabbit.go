package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitSender publishes to the durable topic exchange and waits for the
// broker's confirm, so a nil error means the broker took responsibility.
type RabbitSender struct {
	mu      sync.Mutex
	ch      *amqp.Channel
	timeout time.Duration
}

func NewRabbitSender(conn *amqp.Connection) (*RabbitSender, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("events: declare %s: %w", EventsExchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("events: enable confirms: %w", err)
	}
	return &RabbitSender{ch: ch, timeout: 3 * time.Second}, nil
}

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

func (s *RabbitSender) Send(ctx context.Context, msg Message) error {
	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// One publish in flight per channel keeps confirms in order.
	s.mu.Lock()
	defer s.mu.Unlock()

	confirm, err := s.ch.PublishWithDeferredConfirmWithContext(
		pubCtx,
		EventsExchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Body:         msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", msg.ID, err)
	}

	acked, err := confirm.WaitContext(pubCtx)
	if err != nil {
		return fmt.Errorf("events: confirm %s: %w", msg.ID, err)
	}
	if !acked {
		return errors.New("events: broker nacked " + msg.ID)
	}
	return nil
}

func (s *RabbitSender) Close() error {
	return s.ch.Close()
}
