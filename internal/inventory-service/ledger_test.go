package inventoryservice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/inventory-service/domain"
)

func newTestLedger() *Ledger {
	return NewLedger([]domain.StockItem{
		{ProductID: "p1", Available: 10, UnitPrice: 9.99},
		{ProductID: "p3", Available: 0, UnitPrice: 5},
	}, nil)
}

func available(t *testing.T, l *Ledger, id string) int {
	t.Helper()
	item, err := l.Product(context.Background(), id)
	require.NoError(t, err)
	return item.Available
}

func TestLedger_ReserveIsIdempotentPerKey(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	r, replayed, err := l.Reserve(ctx, "a1/0/p1", "p1", 3)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 9.99, r.UnitPrice)

	again, replayed, err := l.Reserve(ctx, "a1/0/p1", "p1", 3)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, r, again)
	assert.Equal(t, 7, available(t, l, "p1"))

	_, _, err = l.Reserve(ctx, "a1/0/p1", "p1", 4)
	assert.ErrorIs(t, err, domain.ErrKeyReused)
}

func TestLedger_ReserveErrors(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, _, err := l.Reserve(ctx, "k1", "p3", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, _, err = l.Reserve(ctx, "k2", "nope", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, _, err = l.Reserve(ctx, "k3", "p1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	assert.Equal(t, 10, available(t, l, "p1"))
}

func TestLedger_Release(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, _, err := l.Reserve(ctx, "k1", "p1", 4)
	require.NoError(t, err)

	_, err = l.Release(ctx, "k1")
	require.NoError(t, err)
	_, err = l.Release(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 10, available(t, l, "p1"))

	_, _, err = l.Reserve(ctx, "k1", "p1", 4)
	assert.ErrorIs(t, err, domain.ErrReservationReleased)
}

func TestLedger_ReleaseBeforeReserveBlocksLateReserve(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Release(ctx, "late")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	_, _, err = l.Reserve(ctx, "late", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrReservationReleased)
	assert.Equal(t, 10, available(t, l, "p1"))
}

func TestLedger_ConcurrentReservesNeverOversell(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.Reserve(ctx, fmt.Sprintf("k%d", i), "p1", 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.Equal(t, 0, available(t, l, "p1"))
}

func TestParseSeed(t *testing.T) {
	items, err := domain.ParseSeed("p1=10@9.99, p2=5@24.50,,p3=0@5")
	require.NoError(t, err)
	assert.Equal(t, []domain.StockItem{
		{ProductID: "p1", Available: 10, UnitPrice: 9.99},
		{ProductID: "p2", Available: 5, UnitPrice: 24.5},
		{ProductID: "p3", Available: 0, UnitPrice: 5},
	}, items)

	for _, bad := range []string{"p1", "p1=10", "p1=x@1", "p1=1@y", "p1=-1@1"} {
		_, err := domain.ParseSeed(bad)
		assert.Error(t, err, bad)
	}
}
