package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

const relayBatch = 100

type Options struct {
	Retry   resilience.RetryPolicy
	Clock   resilience.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Publisher delivers OrderCreated events at least once: it retries the
// broker, then falls back to the outbox.
type Publisher struct {
	sender  Sender
	outbox  Outbox
	retry   resilience.RetryPolicy
	clock   resilience.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPublisher(sender Sender, outbox Outbox, opts Options) *Publisher {
	if opts.Retry == (resilience.RetryPolicy{}) {
		opts.Retry = resilience.DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = resilience.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Publisher{
		sender:  sender,
		outbox:  outbox,
		retry:   opts.Retry,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Publish returns nil once the broker accepted the event, or a
// *PublishDeferredError once the event is parked in the outbox. Any other
// error means the event could not be stored at all.
//
// Stores that write the outbox row together with the order have already
// parked the event; a successful send then marks that row delivered so the
// relay skips it.
func (p *Publisher) Publish(ctx context.Context, evt domain.OrderCreatedEvent) error {
	msg, err := NewOrderCreatedMessage(evt)
	if err != nil {
		return err
	}

	sendErr := p.sendWithRetry(ctx, msg)
	if sendErr == nil {
		p.metrics.ObservePublish("sent")
		if err := p.outbox.MarkEventDelivered(ctx, msg.ID); err != nil {
			// The relay sends it again; consumers drop the duplicate by MessageId.
			p.logger.WarnContext(ctx, "outbox mark delivered failed", "event_id", msg.ID, "error", err)
		}
		return nil
	}

	if err := p.outbox.Add(ctx, msg); err != nil {
		p.metrics.ObservePublish("lost")
		return fmt.Errorf("events: park order %s in outbox: %w", evt.OrderID, errors.Join(sendErr, err))
	}
	p.metrics.ObservePublish("deferred")
	p.metrics.ObserveDeferred()
	return &PublishDeferredError{OrderID: evt.OrderID, Err: sendErr}
}

func (p *Publisher) sendWithRetry(ctx context.Context, msg Message) error {
	attempts := p.retry.Start(ctx, p.clock, nil)
	for {
		err := p.sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		delay, ok := attempts.Next()
		if !ok {
			return err
		}
		p.logger.DebugContext(ctx, "retrying event send", "event_id", msg.ID, "attempt", attempts.Made(), "error", err)
		if sleepErr := p.clock.Sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// Relay makes one pass over the outbox and returns how many records it
// delivered. Each record gets a single send per pass.
func (p *Publisher) Relay(ctx context.Context) (int, error) {
	records, err := p.outbox.Pending(ctx, relayBatch)
	if err != nil {
		return 0, fmt.Errorf("events: read outbox: %w", err)
	}

	delivered := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		msg := Message{ID: rec.EventID, RoutingKey: rec.RoutingKey, Body: rec.Payload, Timestamp: rec.CreatedAt}
		if err := p.sender.Send(ctx, msg); err != nil {
			p.metrics.ObservePublish("relay_failed")
			if markErr := p.outbox.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
				return delivered, fmt.Errorf("events: mark outbox record %d failed: %w", rec.ID, markErr)
			}
			continue
		}
		if err := p.outbox.MarkDelivered(ctx, rec.ID); err != nil {
			// The broker has it; a redelivery on the next pass is deduplicated by consumers.
			return delivered, fmt.Errorf("events: mark outbox record %d delivered: %w", rec.ID, err)
		}
		p.metrics.ObservePublish("relayed")
		delivered++
	}
	return delivered, nil
}

// RunRelay calls Relay every interval until ctx is done.
func (p *Publisher) RunRelay(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Relay(ctx)
			if err != nil && ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
			if n > 0 {
				p.logger.InfoContext(ctx, "outbox relay delivered events", "count", n)
			}
		}
	}
}
