package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline represents a single candlestick data point.
// Klines are immutable values, ordered by CloseTime.
type Kline struct {
	OpenTime  time.Time       // Start time of the interval
	CloseTime time.Time       // End time of the interval
	Symbol    string          // Trading symbol
	Interval  string          // Kline interval (e.g., "1m", "1h")
	Open      decimal.Decimal // Opening price
	High      decimal.Decimal // Highest price
	Low       decimal.Decimal // Lowest price
	Close     decimal.Decimal // Closing price
	Volume    decimal.Decimal // Trading volume
	IsFinal   bool            // Whether this kline is the final one for the interval
}
