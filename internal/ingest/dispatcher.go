package ingest

import (
	"context"
	"fmt"
	"sync"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// KlineHandler consumes one kline event. Errors are treated as fatal for
// the symbol's stream.
type KlineHandler interface {
	OnNewKline(ctx context.Context, k domain.Kline) error
}

// Dispatcher fans kline events out to one worker goroutine per symbol.
// Events for the same symbol are processed strictly in arrival order;
// different symbols proceed independently. Each symbol has a bounded FIFO
// queue, and a full queue blocks the producer rather than dropping events,
// so a slow handler applies backpressure to the stream reader.
type Dispatcher struct {
	handler   KlineHandler
	logger    ports.Logger
	queueSize int

	mu      sync.Mutex
	queues  map[string]chan domain.Kline
	stopped map[string]bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering events to the handler.
func NewDispatcher(handler KlineHandler, logger ports.Logger, queueSize int) (*Dispatcher, error) {
	if handler == nil || logger == nil {
		return nil, fmt.Errorf("%w: handler and logger are required", ports.ErrConfigurationError)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("%w: queue size must be positive, got %d", ports.ErrConfigurationError, queueSize)
	}
	return &Dispatcher{
		handler:   handler,
		logger:    logger,
		queueSize: queueSize,
		queues:    make(map[string]chan domain.Kline),
		stopped:   make(map[string]bool),
	}, nil
}

// Dispatch routes a kline to its symbol's worker, starting the worker on
// first sight of the symbol. Non-final klines are dropped here so workers
// only ever see closed candles. Dispatch blocks when the symbol's queue is
// full.
func (d *Dispatcher) Dispatch(ctx context.Context, k domain.Kline) {
	if !k.IsFinal {
		return
	}

	d.mu.Lock()
	if d.stopped[k.Symbol] {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[k.Symbol]
	if !ok {
		q = make(chan domain.Kline, d.queueSize)
		d.queues[k.Symbol] = q
		d.wg.Add(1)
		go d.worker(ctx, k.Symbol, q)
	}
	d.mu.Unlock()

	select {
	case q <- k:
	case <-ctx.Done():
	}
}

// worker drains one symbol's queue in order. A handler error stops the
// symbol permanently; a broken invariant must not keep trading on corrupt
// state. The worker then keeps draining the queue, so a Dispatch that
// passed the stopped check before the failure can never block on it.
func (d *Dispatcher) worker(ctx context.Context, symbol string, q chan domain.Kline) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-q:
			if err := d.handler.OnNewKline(ctx, k); err != nil {
				d.logger.Error(ctx, err, "kline handler failed, stopping symbol", map[string]interface{}{
					"symbol": symbol,
				})
				d.mu.Lock()
				d.stopped[symbol] = true
				d.mu.Unlock()
				d.discard(ctx, q)
				return
			}
		}
	}
}

// discard consumes and drops queued klines for a stopped symbol until
// shutdown.
func (d *Dispatcher) discard(ctx context.Context, q chan domain.Kline) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q:
		}
	}
}

// Wait blocks until all workers have exited. The owning context must be
// canceled first.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
