package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side; used for bracket orders which always
// face the entry order.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType represents the exchange order type.
type OrderType string

const (
	TypeLimit         OrderType = "LIMIT"
	TypeLimitMaker    OrderType = "LIMIT_MAKER"
	TypeStopLossLimit OrderType = "STOP_LOSS_LIMIT"
)

// TimeInForce represents how long an order remains working on the exchange.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderState is the lifecycle state of a managed order.
//
// The state machine is NEW -> PENDING -> ACTIVE -> one of the CLOSED_*
// terminal states. Terminal states have no outgoing transitions.
type OrderState string

const (
	OrderStateNew            OrderState = "NEW"
	OrderStatePending        OrderState = "PENDING"
	OrderStateActive         OrderState = "ACTIVE"
	OrderStateClosedSL       OrderState = "CLOSED_SL"
	OrderStateClosedTP       OrderState = "CLOSED_TP"
	OrderStateClosedCanceled OrderState = "CLOSED_CANCELED"
	OrderStateClosedInverted OrderState = "CLOSED_INVERTED_SIGNAL"
)

// IsTerminal reports whether the state has no outgoing transitions.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateClosedSL, OrderStateClosedTP, OrderStateClosedCanceled, OrderStateClosedInverted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. Any non-terminal state may be closed directly; forward progress is
// NEW -> PENDING -> ACTIVE.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	switch s {
	case OrderStateNew:
		return next == OrderStatePending || next == OrderStateActive
	case OrderStatePending:
		return next == OrderStateActive
	}
	return false
}

// OrderStateFromExchange maps an exchange-reported order status onto the
// lifecycle state machine.
func OrderStateFromExchange(status string) (OrderState, error) {
	switch strings.ToUpper(status) {
	case "NEW":
		return OrderStateNew, nil
	case "PARTIALLY_FILLED", "ACTIVE":
		return OrderStateActive, nil
	case "PENDING_NEW", "PENDING_CANCEL":
		return OrderStatePending, nil
	case "FILLED":
		return OrderStateClosedTP, nil
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return OrderStateClosedCanceled, nil
	}
	return "", fmt.Errorf("unsupported exchange order status %q", status)
}

// OrderRecord is the persisted view of an order managed by the lifecycle
// manager. Records are created and mutated exclusively by the lifecycle
// manager and are never deleted (audit retention).
type OrderRecord struct {
	OrderID       int64           // Exchange-assigned order ID
	ParentOrderID *int64          // Links bracket children to their entry order (nil for the entry itself)
	Symbol        string          // Trading symbol
	Side          OrderSide       // BUY or SELL
	Type          OrderType       // Exchange order type
	Price         decimal.Decimal // Entry/limit price
	Quantity      decimal.Decimal // Order quantity
	State         OrderState      // Current lifecycle state
	CreatedAt     time.Time       // When the record was created locally
	WorkingTime   time.Time       // When the order started working on the exchange
}

// IsActive reports whether the record is in the ACTIVE lifecycle state.
func (o *OrderRecord) IsActive() bool {
	return o.State == OrderStateActive
}
