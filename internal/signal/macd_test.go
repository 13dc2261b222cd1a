package signal

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// --- Mock Logger ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// --- Helpers ---

// sineKlines generates n klines whose close prices follow
// 100 + 10*sin(i/5), a slow oscillation that produces deterministic MACD
// crossovers.
func sineKlines(n int) []domain.Kline {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Kline, n)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/5)
		out[i] = domain.Kline{
			Symbol:    "ETHUSDT",
			Interval:  "1m",
			Close:     decimal.NewFromFloat(price),
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
			IsFinal:   true,
		}
	}
	return out
}

func newTestAnalyzer(t *testing.T) *MACDAnalyzer {
	t.Helper()
	a, err := NewMACDAnalyzer(12, 26, 9, &mockLogger{})
	require.NoError(t, err)
	return a
}

// --- Tests ---

func TestNewMACDAnalyzer_Validation(t *testing.T) {
	logger := &mockLogger{}

	testCases := []struct {
		name                 string
		fast, slow, signalPd int
		logger               ports.Logger
		wantErr              bool
	}{
		{name: "valid standard periods", fast: 12, slow: 26, signalPd: 9, logger: logger, wantErr: false},
		{name: "zero fast period", fast: 0, slow: 26, signalPd: 9, logger: logger, wantErr: true},
		{name: "negative slow period", fast: 12, slow: -1, signalPd: 9, logger: logger, wantErr: true},
		{name: "zero signal period", fast: 12, slow: 26, signalPd: 0, logger: logger, wantErr: true},
		{name: "fast equals slow", fast: 26, slow: 26, signalPd: 9, logger: logger, wantErr: true},
		{name: "fast greater than slow", fast: 30, slow: 26, signalPd: 9, logger: logger, wantErr: true},
		{name: "nil logger", fast: 12, slow: 26, signalPd: 9, logger: nil, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewMACDAnalyzer(tc.fast, tc.slow, tc.signalPd, tc.logger)
			if tc.wantErr {
				assert.ErrorIs(t, err, ports.ErrConfigurationError)
				assert.Nil(t, a)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, a)
			}
		})
	}
}

func TestMACDAnalyzer_MinDataPoints(t *testing.T) {
	a := newTestAnalyzer(t)
	assert.Equal(t, 35, a.MinDataPoints())
}

func TestMACDAnalyzer_TryExtractSignal_NotEnoughData(t *testing.T) {
	a := newTestAnalyzer(t)
	ctx := context.Background()

	for _, n := range []int{0, 1, 34} {
		sig, found, err := a.TryExtractSignal(ctx, sineKlines(n))
		assert.NoError(t, err)
		assert.False(t, found, "n=%d", n)
		assert.Empty(t, sig, "n=%d", n)
	}
}

func TestMACDAnalyzer_TryExtractSignal_SineFixtures(t *testing.T) {
	a := newTestAnalyzer(t)
	ctx := context.Background()

	testCases := []struct {
		name      string
		n         int
		wantFound bool
		want      domain.TradeSignal
	}{
		{name: "upward crossover at 48 points", n: 48, wantFound: true, want: domain.SignalBuy},
		{name: "no crossover at 60 points", n: 60, wantFound: false},
		{name: "downward crossover at 63 points", n: 63, wantFound: true, want: domain.SignalSell},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig, found, err := a.TryExtractSignal(ctx, sineKlines(tc.n))
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, found)
			if tc.wantFound {
				assert.Equal(t, tc.want, sig)
			}
		})
	}
}

// TestMACDAnalyzer_TryExtractSignal_PrefixReplay replays a growing prefix of
// the sine series the way the live engine sees it, one kline at a time, and
// checks that crossovers alternate and fire at the expected points.
func TestMACDAnalyzer_TryExtractSignal_PrefixReplay(t *testing.T) {
	a := newTestAnalyzer(t)
	ctx := context.Background()
	klines := sineKlines(120)

	type detection struct {
		length int
		signal domain.TradeSignal
	}
	var got []detection

	for n := a.MinDataPoints(); n <= len(klines); n++ {
		sig, found, err := a.TryExtractSignal(ctx, klines[:n])
		require.NoError(t, err)
		if found {
			got = append(got, detection{length: n, signal: sig})
		}
	}

	want := []detection{
		{48, domain.SignalBuy},
		{63, domain.SignalSell},
		{79, domain.SignalBuy},
		{94, domain.SignalSell},
		{110, domain.SignalBuy},
	}
	assert.Equal(t, want, got)
}

func TestMACDAnalyzer_TryExtractSignal_Deterministic(t *testing.T) {
	a := newTestAnalyzer(t)
	ctx := context.Background()
	klines := sineKlines(63)

	first, foundFirst, err := a.TryExtractSignal(ctx, klines)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		sig, found, err := a.TryExtractSignal(ctx, klines)
		require.NoError(t, err)
		assert.Equal(t, foundFirst, found)
		assert.Equal(t, first, sig)
	}
}

func TestMACDAnalyzer_TryExtractSignal_FlatPrices(t *testing.T) {
	a := newTestAnalyzer(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]domain.Kline, 80)
	for i := range klines {
		klines[i] = domain.Kline{
			Symbol:    "ETHUSDT",
			Close:     decimal.NewFromInt(100),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
			IsFinal:   true,
		}
	}

	sig, found, err := a.TryExtractSignal(ctx, klines)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, sig)
}

func TestEMA(t *testing.T) {
	t.Run("shorter than period", func(t *testing.T) {
		assert.Nil(t, ema([]float64{1, 2}, 3))
	})

	t.Run("seed is simple average", func(t *testing.T) {
		got := ema([]float64{2, 4, 6}, 3)
		require.Len(t, got, 1)
		assert.InDelta(t, 4.0, got[0], 1e-12)
	})

	t.Run("smoothing step", func(t *testing.T) {
		// seed = 4, k = 2/4 = 0.5, next = (8-4)*0.5 + 4 = 6
		got := ema([]float64{2, 4, 6, 8}, 3)
		require.Len(t, got, 2)
		assert.InDelta(t, 4.0, got[0], 1e-12)
		assert.InDelta(t, 6.0, got[1], 1e-12)
	})
}
