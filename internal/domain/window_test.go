package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowKline(seq int) Kline {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return Kline{
		Symbol:    "ETHUSDT",
		Close:     decimal.NewFromInt(int64(100 + seq)),
		OpenTime:  base.Add(time.Duration(seq) * time.Minute),
		CloseTime: base.Add(time.Duration(seq+1) * time.Minute),
		IsFinal:   true,
	}
}

func TestNewKlineWindow_Validation(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := NewKlineWindow(capacity)
		assert.Error(t, err, "capacity=%d", capacity)
	}

	w, err := NewKlineWindow(10)
	require.NoError(t, err)
	assert.Equal(t, 10, w.Capacity())
	assert.Zero(t, w.Len())
	assert.False(t, w.IsFull())
}

func TestKlineWindow_AppendAndEviction(t *testing.T) {
	w, err := NewKlineWindow(3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, w.Append(windowKline(i)))
	}
	assert.True(t, w.IsFull())
	assert.Equal(t, 3, w.Len())

	// Overflow evicts the oldest entry.
	assert.True(t, w.Append(windowKline(3)))
	assert.Equal(t, 3, w.Len())

	snap := w.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, windowKline(1).CloseTime, snap[0].CloseTime)
	assert.Equal(t, windowKline(3).CloseTime, snap[2].CloseTime)
}

func TestKlineWindow_RejectsStaleKlines(t *testing.T) {
	w, err := NewKlineWindow(5)
	require.NoError(t, err)

	require.True(t, w.Append(windowKline(5)))

	// Duplicate close time.
	assert.False(t, w.Append(windowKline(5)))
	// Older close time.
	assert.False(t, w.Append(windowKline(2)))
	assert.Equal(t, 1, w.Len())

	// Strictly newer is accepted again.
	assert.True(t, w.Append(windowKline(6)))
}

func TestKlineWindow_SnapshotIsACopy(t *testing.T) {
	w, err := NewKlineWindow(3)
	require.NoError(t, err)
	require.True(t, w.Append(windowKline(0)))

	snap := w.Snapshot()
	snap[0].Close = decimal.NewFromInt(-1)

	fresh := w.Snapshot()
	assert.True(t, fresh[0].Close.Equal(windowKline(0).Close))
}

func TestKlineWindow_SnapshotOrdering(t *testing.T) {
	w, err := NewKlineWindow(4)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, w.Append(windowKline(i)))
	}

	snap := w.Snapshot()
	require.Len(t, snap, 4)
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i].CloseTime.After(snap[i-1].CloseTime))
	}
}
