package signal

import (
	"context"
	"fmt"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// MACDAnalyzer detects MACD/signal-line crossovers on closed klines.
//
// All intermediate math runs on float64. Prices cross the port boundary as
// decimals, but EMA chains are insensitive to sub-cent drift and float64
// keeps the hot path allocation-free.
type MACDAnalyzer struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	logger       ports.Logger
}

// NewMACDAnalyzer creates an analyzer with the given EMA periods. The fast
// period must be strictly smaller than the slow period.
func NewMACDAnalyzer(fastPeriod, slowPeriod, signalPeriod int, logger ports.Logger) (*MACDAnalyzer, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, fmt.Errorf("%w: MACD periods must be positive (fast=%d slow=%d signal=%d)",
			ports.ErrConfigurationError, fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("%w: fast period (%d) must be smaller than slow period (%d)",
			ports.ErrConfigurationError, fastPeriod, slowPeriod)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &MACDAnalyzer{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
		logger:       logger,
	}, nil
}

// MinDataPoints returns the minimum number of klines needed to compute two
// consecutive signal-line points, which is what a crossover check requires.
func (a *MACDAnalyzer) MinDataPoints() int {
	return a.slowPeriod + a.signalPeriod
}

// TryExtractSignal evaluates the close prices of the given klines and
// reports a BUY on an upward MACD/signal crossover or a SELL on a downward
// one. Sequences shorter than MinDataPoints yield no signal.
func (a *MACDAnalyzer) TryExtractSignal(ctx context.Context, klines []domain.Kline) (domain.TradeSignal, bool, error) {
	if len(klines) < a.MinDataPoints() {
		a.logger.Debug(ctx, "MACDAnalyzer: not enough data", map[string]interface{}{
			"have": len(klines),
			"need": a.MinDataPoints(),
		})
		return "", false, nil
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close.InexactFloat64()
	}

	macd, err := a.macdLine(closes)
	if err != nil {
		return "", false, err
	}

	signalLine := ema(macd, a.signalPeriod)
	last := len(signalLine) - 1
	if last < 1 {
		return "", false, nil
	}

	prevDiff := macd[last-1] - signalLine[last-1]
	currDiff := macd[last] - signalLine[last]

	switch {
	case prevDiff <= 0 && currDiff > 0:
		return domain.SignalBuy, true, nil
	case prevDiff >= 0 && currDiff < 0:
		return domain.SignalSell, true, nil
	}
	return "", false, nil
}

// macdLine computes the MACD line (fast EMA minus slow EMA), aligned to the
// slow EMA by discarding the leading excess of the fast series.
func (a *MACDAnalyzer) macdLine(closes []float64) ([]float64, error) {
	fast := ema(closes, a.fastPeriod)
	slow := ema(closes, a.slowPeriod)

	offset := len(fast) - len(slow)
	if offset < 0 {
		return nil, fmt.Errorf("%w: fast EMA shorter than slow EMA (%d < %d)",
			ports.ErrInvariantViolation, len(fast), len(slow))
	}

	macd := make([]float64, len(slow))
	for i := range slow {
		macd[i] = fast[i+offset] - slow[i]
	}
	return macd, nil
}

// ema computes an exponential moving average seeded with the simple average
// of the first period values. The result has len(values)-period+1 entries;
// it is empty when the input is shorter than the period.
func ema(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}

	out := make([]float64, 0, len(values)-period+1)

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out = append(out, prev)

	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}
