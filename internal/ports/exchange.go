package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
)

// OrderAck is the exchange's acknowledgement of a single placed order.
type OrderAck struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          domain.OrderSide
	Type          domain.OrderType
	Price         decimal.Decimal
	ExecutedQty   decimal.Decimal
	Status        string
	TransactTime  time.Time
}

// OCOOrderAck is the acknowledgement of an OCO (one-cancels-other) order
// list. Reports carries one OrderAck per leg.
type OCOOrderAck struct {
	OrderListID int64
	Reports     []OrderAck
}

// ExchangeClient defines the operations the engine needs from a spot
// exchange. Implementations wrap exchange errors with the standard errors
// from this package.
type ExchangeClient interface {
	// PlaceLimitOrder places a single limit order and returns the exchange
	// acknowledgement.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price decimal.Decimal, tif domain.TimeInForce) (*OrderAck, error)

	// PlaceOCOOrder places a take-profit / stop-loss bracket on the given
	// side. takeProfit is the limit leg price, stopLoss the stop trigger and
	// stop-limit price.
	PlaceOCOOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, takeProfit, stopLoss decimal.Decimal) (*OCOOrderAck, error)

	// CancelOrder cancels a working order. Returns ErrOrderNotFound when the
	// exchange no longer knows the order.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// GetOrder fetches the current exchange view of an order.
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderAck, error)

	// GetKlines fetches up to limit historical klines for warm-up.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// StreamKlines subscribes to the kline stream for the given symbols.
	// handler receives every kline event (final and non-final); errHandler
	// receives stream errors. The returned channels follow the underlying
	// websocket contract: closing stopCh ends the stream, doneCh closes when
	// the stream has shut down.
	StreamKlines(ctx context.Context, symbols []string, interval string, handler func(domain.Kline), errHandler func(error)) (doneCh, stopCh chan struct{}, err error)

	// Ping checks connectivity to the exchange.
	Ping(ctx context.Context) error

	// GetServerTime returns the exchange server time.
	GetServerTime(ctx context.Context) (time.Time, error)
}
