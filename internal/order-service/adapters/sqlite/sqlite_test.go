package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagasqlite "github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/order-service/events"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOrders_SaveAndFind(t *testing.T) {
	repo := NewOrders(openTestDB(t))
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 30, 0, 123000000, time.UTC)
	order := domain.NewOrder("o1", "u1", []domain.OrderLine{
		{ProductID: "p1", Quantity: 2, UnitPrice: 9.99},
		{ProductID: "p2", Quantity: 1, UnitPrice: 24.5},
	}, created)
	require.NoError(t, repo.Save(ctx, order))

	got, err := repo.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order, got)
}

func TestOrders_DuplicateIDRollsBack(t *testing.T) {
	db := openTestDB(t)
	repo := NewOrders(db)
	ctx := context.Background()

	order := domain.NewOrder("o1", "u1", []domain.OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: 1}}, time.Now())
	require.NoError(t, repo.Save(ctx, order))
	require.Error(t, repo.Save(ctx, order))

	var lines int
	require.NoError(t, db.Get(&lines, `SELECT COUNT(*) FROM order_lines WHERE order_id = 'o1'`))
	assert.Equal(t, 1, lines)
}

func TestOrders_SaveParksOrderCreated(t *testing.T) {
	db := openTestDB(t)
	outbox := NewOutbox(db)
	ctx := context.Background()

	order := domain.NewOrder("o1", "u1", []domain.OrderLine{{ProductID: "p1", Quantity: 3, UnitPrice: 2}}, time.Now())
	require.NoError(t, NewOrders(db).Save(ctx, order))
	require.Error(t, NewOrders(db).Save(ctx, order))

	pending, err := outbox.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o1", pending[0].EventID)
	assert.Equal(t, events.OrderCreatedRoutingKey, pending[0].RoutingKey)

	var evt domain.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &evt))
	assert.Equal(t, "u1", evt.UserID)
	assert.Equal(t, []domain.EventItem{{ProductID: "p1", Quantity: 3}}, evt.Items)
}

func TestOrders_PublishAfterSaveClearsOutbox(t *testing.T) {
	db := openTestDB(t)
	outbox := NewOutbox(db)
	sender := events.NewMemorySender()
	pub := events.NewPublisher(sender, outbox, events.Options{})
	ctx := context.Background()

	order := domain.NewOrder("o1", "u1", []domain.OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: 1}}, time.Now())
	require.NoError(t, NewOrders(db).Save(ctx, order))
	require.NoError(t, pub.Publish(ctx, domain.NewOrderCreatedEvent(order)))

	pending, err := outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := pub.Relay(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sender.Sent(), 1)
}

func TestOrders_FindMissing(t *testing.T) {
	repo := NewOrders(openTestDB(t))

	_, err := repo.FindByID(context.Background(), "nope")
	var nf *domain.OrderNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.OrderID)
}

func TestOutbox_Lifecycle(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, outbox.Add(ctx, events.Message{
			ID: id, RoutingKey: events.OrderCreatedRoutingKey, Body: []byte(`{"orderId":"` + id + `"}`), Timestamp: ts,
		}))
	}

	require.NoError(t, outbox.Add(ctx, events.Message{ID: "o1", RoutingKey: events.OrderCreatedRoutingKey, Body: []byte(`{}`), Timestamp: ts}))

	pending, err := outbox.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "o1", pending[0].EventID)
	assert.Equal(t, ts, pending[0].CreatedAt)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(pending[0].Payload))

	require.NoError(t, outbox.MarkDelivered(ctx, pending[0].ID))
	require.NoError(t, outbox.MarkFailed(ctx, pending[1].ID, "broker down"))

	pending, err = outbox.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "o2", pending[0].EventID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker down", pending[0].LastError)
	assert.Equal(t, "o3", pending[1].EventID)

	require.NoError(t, outbox.MarkEventDelivered(ctx, "o3"))
	pending, err = outbox.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o2", pending[0].EventID)
}

func TestOutbox_RelayDrains(t *testing.T) {
	outbox := NewOutbox(openTestDB(t))
	sender := events.NewMemorySender()
	pub := events.NewPublisher(sender, outbox, events.Options{})
	ctx := context.Background()

	require.NoError(t, outbox.Add(ctx, events.Message{ID: "o1", RoutingKey: events.OrderCreatedRoutingKey, Body: []byte(`{}`)}))

	n, err := pub.Relay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sender.Sent(), 1)

	pending, err := outbox.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSharedFileWithSagaLog(t *testing.T) {
	db := openTestDB(t)
	sagaLog, err := sagasqlite.New(db.DB)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sagaLog.Save(ctx, sagalog.NewEntry(ctx, "a1", sagalog.StatusStarted, "", "", nil)))
	require.NoError(t, NewOrders(db).Save(ctx, domain.NewOrder("o1", "u1", nil, time.Now())))

	latest, err := sagaLog.GetLatest(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusStarted, latest.Status)
}
