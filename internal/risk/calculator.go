package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// Thresholds holds the protective price levels for one position.
type Thresholds struct {
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

var two = decimal.NewFromInt(2)

// ComputeThresholds derives stop-loss and take-profit prices from the entry
// price using multiplicative factors. For a long position SL = entry*slPct
// and TP = entry*tpPct; the short side mirrors both factors around 1 so the
// stop sits above the entry and the target below it.
func ComputeThresholds(side domain.OrderSide, entry, slPct, tpPct decimal.Decimal) (Thresholds, error) {
	if entry.Sign() <= 0 {
		return Thresholds{}, fmt.Errorf("%w: entry price must be positive, got %s", ports.ErrInvalidRequest, entry)
	}
	if slPct.Sign() <= 0 || slPct.Cmp(decimal.NewFromInt(1)) >= 0 {
		return Thresholds{}, fmt.Errorf("%w: stop-loss factor must be in (0,1), got %s", ports.ErrConfigurationError, slPct)
	}
	if tpPct.Cmp(decimal.NewFromInt(1)) <= 0 {
		return Thresholds{}, fmt.Errorf("%w: take-profit factor must be greater than 1, got %s", ports.ErrConfigurationError, tpPct)
	}

	switch side {
	case domain.Buy:
		return Thresholds{
			StopLoss:   entry.Mul(slPct),
			TakeProfit: entry.Mul(tpPct),
		}, nil
	case domain.Sell:
		return Thresholds{
			StopLoss:   entry.Mul(two.Sub(slPct)),
			TakeProfit: entry.Mul(two.Sub(tpPct)),
		}, nil
	}
	return Thresholds{}, fmt.Errorf("%w: unknown order side %q", ports.ErrInvalidRequest, side)
}

// Breach checks a close price against the thresholds for a position opened
// on the given side. It returns the terminal state the position should move
// to and whether a threshold was crossed. Stop-loss wins when a single
// kline crosses both levels.
func (t Thresholds) Breach(side domain.OrderSide, close decimal.Decimal) (domain.OrderState, bool) {
	switch side {
	case domain.Buy:
		if close.Cmp(t.StopLoss) <= 0 {
			return domain.OrderStateClosedSL, true
		}
		if close.Cmp(t.TakeProfit) >= 0 {
			return domain.OrderStateClosedTP, true
		}
	case domain.Sell:
		if close.Cmp(t.StopLoss) >= 0 {
			return domain.OrderStateClosedSL, true
		}
		if close.Cmp(t.TakeProfit) <= 0 {
			return domain.OrderStateClosedTP, true
		}
	}
	return "", false
}
