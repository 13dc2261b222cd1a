package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/metrics"
	"macdTraderBot/internal/ports"
	"macdTraderBot/internal/risk"
)

// OrderService is the slice of the order lifecycle manager the engine
// drives.
type OrderService interface {
	CreateOrderGroup(ctx context.Context, symbol string, side domain.OrderSide, quantity, price, takeProfit, stopLoss decimal.Decimal) (*domain.OrderRecord, error)
	CloseOrderWithState(ctx context.Context, symbol string, orderID int64, state domain.OrderState) error
	GetActiveOrder(ctx context.Context, symbol string) (*domain.OrderRecord, error)
}

// Parameters configures the decision engine.
type Parameters struct {
	SlidingWindowSize int
	StopLossPct       decimal.Decimal
	TakeProfitPct     decimal.Decimal
	OrderQuantity     decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Validate checks the parameters against the analyzer's minimum data
// requirement.
func (p Parameters) Validate(minDataPoints int) error {
	if p.SlidingWindowSize < minDataPoints {
		return fmt.Errorf("%w: sliding window size %d is below the analyzer minimum of %d",
			ports.ErrConfigurationError, p.SlidingWindowSize, minDataPoints)
	}
	if p.StopLossPct.Sign() <= 0 || p.StopLossPct.Cmp(one) >= 0 {
		return fmt.Errorf("%w: stop-loss factor must be in (0,1), got %s", ports.ErrConfigurationError, p.StopLossPct)
	}
	if p.TakeProfitPct.Cmp(one) <= 0 {
		return fmt.Errorf("%w: take-profit factor must be greater than 1, got %s", ports.ErrConfigurationError, p.TakeProfitPct)
	}
	if p.OrderQuantity.Sign() <= 0 {
		return fmt.Errorf("%w: order quantity must be positive, got %s", ports.ErrConfigurationError, p.OrderQuantity)
	}
	return nil
}

// Engine turns a stream of closed klines into order decisions. Each final
// kline is appended to the symbol's sliding window, the open position (if
// any) is checked against its protective thresholds, and only then is the
// window handed to the signal analyzer.
//
// The engine holds one window per symbol and assumes sequential delivery
// per symbol; the ingest dispatcher guarantees that. Distinct symbols are
// processed concurrently, so the window map itself is guarded.
type Engine struct {
	analyzer ports.SignalAnalyzer
	orders   OrderService
	logger   ports.Logger
	params   Parameters

	mu      sync.Mutex
	windows map[string]*domain.KlineWindow
}

// NewEngine creates a decision engine.
func NewEngine(analyzer ports.SignalAnalyzer, orders OrderService, logger ports.Logger, params Parameters) (*Engine, error) {
	if analyzer == nil || orders == nil || logger == nil {
		return nil, fmt.Errorf("%w: analyzer, order service and logger are required", ports.ErrConfigurationError)
	}
	if err := params.Validate(analyzer.MinDataPoints()); err != nil {
		return nil, err
	}
	return &Engine{
		analyzer: analyzer,
		orders:   orders,
		logger:   logger,
		params:   params,
		windows:  make(map[string]*domain.KlineWindow),
	}, nil
}

// OnNewKline processes one kline event. Non-final klines are ignored. The
// returned error is fatal for the symbol's stream; recoverable conditions
// are logged and absorbed here.
func (e *Engine) OnNewKline(ctx context.Context, k domain.Kline) error {
	op := "OnNewKline"

	if !k.IsFinal {
		return nil
	}
	metrics.RecordKline(k.Symbol)

	w, err := e.window(k.Symbol)
	if err != nil {
		return err
	}
	if !w.Append(k) {
		e.logger.Warn(ctx, op+": dropped out-of-order kline", map[string]interface{}{
			"symbol":    k.Symbol,
			"closeTime": k.CloseTime,
		})
		return nil
	}

	active, err := e.orders.GetActiveOrder(ctx, k.Symbol)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Protective thresholds are checked on every close, even while the
	// window is still warming up.
	if active != nil {
		closed, err := e.checkThresholds(ctx, active, k.Close)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if closed {
			// Do not reopen on the same kline that forced a close.
			return nil
		}
	}

	if !w.IsFull() {
		e.logger.Debug(ctx, op+": window warming up", map[string]interface{}{
			"symbol": k.Symbol,
			"have":   w.Len(),
			"need":   w.Capacity(),
		})
		return nil
	}

	sig, found, err := e.analyzer.TryExtractSignal(ctx, w.Snapshot())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil
	}
	metrics.RecordSignal(string(sig))
	e.logger.Info(ctx, op+": signal detected", map[string]interface{}{
		"symbol": k.Symbol,
		"signal": sig,
		"close":  k.Close.String(),
	})

	if active != nil {
		return e.handleSignalWithPosition(ctx, active, sig)
	}
	return e.openPosition(ctx, k, sig)
}

// window returns the sliding window for the symbol, creating it lazily.
// Only the map is shared across symbol workers; the window itself has a
// single writer.
func (e *Engine) window(symbol string) (*domain.KlineWindow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.windows[symbol]; ok {
		return w, nil
	}
	w, err := domain.NewKlineWindow(e.params.SlidingWindowSize)
	if err != nil {
		return nil, err
	}
	e.windows[symbol] = w
	return w, nil
}

// checkThresholds closes the position when the close price breaches its
// stop-loss or take-profit level and reports whether it did.
func (e *Engine) checkThresholds(ctx context.Context, active *domain.OrderRecord, close decimal.Decimal) (bool, error) {
	thresholds, err := risk.ComputeThresholds(active.Side, active.Price, e.params.StopLossPct, e.params.TakeProfitPct)
	if err != nil {
		return false, err
	}
	state, hit := thresholds.Breach(active.Side, close)
	if !hit {
		return false, nil
	}
	e.logger.Info(ctx, "protective threshold breached, closing position", map[string]interface{}{
		"symbol":  active.Symbol,
		"orderID": active.OrderID,
		"state":   state,
		"close":   close.String(),
	})
	if err := e.orders.CloseOrderWithState(ctx, active.Symbol, active.OrderID, state); err != nil {
		return false, err
	}
	metrics.RecordOrderClosed(active.Symbol, string(state))
	return true, nil
}

// handleSignalWithPosition closes the position when the signal points the
// other way. A signal matching the open side is ignored.
func (e *Engine) handleSignalWithPosition(ctx context.Context, active *domain.OrderRecord, sig domain.TradeSignal) error {
	if sig.Side() == active.Side {
		return nil
	}
	e.logger.Info(ctx, "inverted signal, closing position", map[string]interface{}{
		"symbol":  active.Symbol,
		"orderID": active.OrderID,
		"signal":  sig,
	})
	if err := e.orders.CloseOrderWithState(ctx, active.Symbol, active.OrderID, domain.OrderStateClosedInverted); err != nil {
		return err
	}
	metrics.RecordOrderClosed(active.Symbol, string(domain.OrderStateClosedInverted))
	return nil
}

// openPosition enters a new position at the kline's close price with its
// protective bracket.
func (e *Engine) openPosition(ctx context.Context, k domain.Kline, sig domain.TradeSignal) error {
	side := sig.Side()
	thresholds, err := risk.ComputeThresholds(side, k.Close, e.params.StopLossPct, e.params.TakeProfitPct)
	if err != nil {
		return err
	}

	rec, err := e.orders.CreateOrderGroup(ctx, k.Symbol, side, e.params.OrderQuantity, k.Close,
		thresholds.TakeProfit, thresholds.StopLoss)
	if err != nil {
		if errors.Is(err, ports.ErrActiveOrderExists) {
			e.logger.Warn(ctx, "position opened concurrently, skipping signal", map[string]interface{}{
				"symbol": k.Symbol,
				"signal": sig,
			})
			return nil
		}
		return err
	}
	metrics.RecordOrderCreated(k.Symbol, string(side))
	e.logger.Info(ctx, "position opened", map[string]interface{}{
		"symbol":     k.Symbol,
		"orderID":    rec.OrderID,
		"side":       side,
		"entry":      k.Close.String(),
		"takeProfit": thresholds.TakeProfit.String(),
		"stopLoss":   thresholds.StopLoss.String(),
	})
	return nil
}
