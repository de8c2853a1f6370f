package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemorySender records messages in process. FailNext makes the next n sends
// fail, which is how tests simulate an unreachable broker.
type MemorySender struct {
	mu       sync.Mutex
	sent     []Message
	failures int
}

func NewMemorySender() *MemorySender { return &MemorySender{} }

var errBrokerDown = errors.New("events: broker unavailable")

func (s *MemorySender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errBrokerDown
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *MemorySender) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *MemorySender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

// MemoryOutbox is an Outbox held in process.
type MemoryOutbox struct {
	mu      sync.Mutex
	nextID  int64
	records []*OutboxRecord
}

func NewMemoryOutbox() *MemoryOutbox { return &MemoryOutbox{} }

func (o *MemoryOutbox) Add(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.records {
		if r.EventID == msg.ID {
			return nil
		}
	}
	o.nextID++
	o.records = append(o.records, &OutboxRecord{
		ID:         o.nextID,
		EventID:    msg.ID,
		RoutingKey: msg.RoutingKey,
		Payload:    append([]byte(nil), msg.Body...),
		CreatedAt:  msg.Timestamp,
	})
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []OutboxRecord
	for _, r := range o.records {
		if r.DeliveredAt != nil {
			continue
		}
		out = append(out, *r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.records {
		if r.ID == id {
			now := time.Now().UTC()
			r.DeliveredAt = &now
		}
	}
	return nil
}

func (o *MemoryOutbox) MarkEventDelivered(_ context.Context, eventID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.records {
		if r.EventID == eventID && r.DeliveredAt == nil {
			now := time.Now().UTC()
			r.DeliveredAt = &now
		}
	}
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id int64, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.records {
		if r.ID == id {
			r.Attempts++
			r.LastError = reason
		}
	}
	return nil
}
