package domain

// TradeSignal is the output of a signal analyzer: a momentum shift in one of
// two directions. "No signal" is expressed by the absence of a value, never
// by a third variant.
type TradeSignal string

const (
	SignalBuy  TradeSignal = "BUY"
	SignalSell TradeSignal = "SELL"
)

// Side maps a trade signal to the order side that acts on it.
func (s TradeSignal) Side() OrderSide {
	if s == SignalSell {
		return Sell
	}
	return Buy
}
