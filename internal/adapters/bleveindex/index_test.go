package bleveindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdTraderBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(filepath.Join(t.TempDir(), "orders.bleve"), &mockLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func sampleOrder(orderID int64, symbol string, state domain.OrderState) *domain.OrderRecord {
	return &domain.OrderRecord{
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      domain.Buy,
		Type:      domain.TypeLimit,
		Price:     decimal.RequireFromString("2500.50"),
		Quantity:  decimal.RequireFromString("0.5"),
		State:     state,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestIndex_IndexAndFind(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, sampleOrder(100, "ETHUSDT", domain.OrderStateActive)))
	require.NoError(t, idx.Index(ctx, sampleOrder(101, "ETHUSDT", domain.OrderStateClosedTP)))
	require.NoError(t, idx.Index(ctx, sampleOrder(102, "BTCUSDT", domain.OrderStateActive)))

	ids, err := idx.FindOrderIDs(ctx, "symbol", "ETHUSDT", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 101}, ids)

	ids, err = idx.FindOrderIDs(ctx, "state", string(domain.OrderStateActive), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 102}, ids)

	ids, err = idx.FindOrderIDs(ctx, "symbol", "SOLUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndex_ReindexReplacesDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	rec := sampleOrder(100, "ETHUSDT", domain.OrderStateActive)
	require.NoError(t, idx.Index(ctx, rec))

	rec.State = domain.OrderStateClosedSL
	require.NoError(t, idx.Index(ctx, rec))

	ids, err := idx.FindOrderIDs(ctx, "state", string(domain.OrderStateActive), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.FindOrderIDs(ctx, "state", string(domain.OrderStateClosedSL), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)
}

func TestIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, sampleOrder(100, "ETHUSDT", domain.OrderStateActive)))
	require.NoError(t, idx.Delete(ctx, 100))

	ids, err := idx.FindOrderIDs(ctx, "symbol", "ETHUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Deleting again is a no-op.
	assert.NoError(t, idx.Delete(ctx, 100))
}

func TestIndex_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.bleve")
	ctx := context.Background()

	idx, err := NewIndex(path, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, sampleOrder(100, "ETHUSDT", domain.OrderStateActive)))
	require.NoError(t, idx.Close())

	idx, err = NewIndex(path, &mockLogger{})
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.FindOrderIDs(ctx, "symbol", "ETHUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)
}
