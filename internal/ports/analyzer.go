package ports

import (
	"context"

	"macdTraderBot/internal/domain"
)

// SignalAnalyzer evaluates an ordered kline sequence and optionally produces
// a trade signal. Implementations must be pure: identical input sequences
// yield identical results.
//
// The interface is a deliberate seam for future strategies; the MACD
// crossover analyzer is currently the only concrete implementation.
type SignalAnalyzer interface {
	// MinDataPoints returns the minimum number of klines required before the
	// analyzer can produce a signal.
	MinDataPoints() int

	// TryExtractSignal evaluates the sequence (ascending by CloseTime) and
	// returns the detected signal, if any. Sequences shorter than
	// MinDataPoints yield no signal and no error. An error wrapping
	// ErrInvariantViolation indicates a logic defect and must abort the
	// caller's processing for the symbol.
	TryExtractSignal(ctx context.Context, klines []domain.Kline) (domain.TradeSignal, bool, error)
}
