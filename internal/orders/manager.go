package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/metrics"
	"macdTraderBot/internal/ports"
)

const repairQueueSize = 256

// repairTask is a deferred secondary-store write for a record whose index
// update failed.
type repairTask struct {
	rec *domain.OrderRecord
}

// Manager owns the full lifecycle of exchange orders: placement of the
// entry order with its protective OCO bracket, state transitions, and the
// dual write to the primary repository and the secondary search index.
//
// All mutating operations for one symbol are serialized through a
// per-symbol lock, so at most one order group can be created or closed for
// a symbol at a time.
type Manager struct {
	client   ports.ExchangeClient
	repo     ports.OrderRepository
	index    ports.OrderIndex
	notifier ports.OrderNotifier
	logger   ports.Logger

	mu          sync.Mutex
	symbolLocks map[string]*sync.Mutex

	repairCh chan repairTask
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates an order lifecycle manager. All dependencies are
// required except the notifier, which may be nil when no consumer is wired.
func NewManager(client ports.ExchangeClient, repo ports.OrderRepository, index ports.OrderIndex, notifier ports.OrderNotifier, logger ports.Logger) (*Manager, error) {
	if client == nil || repo == nil || index == nil || logger == nil {
		return nil, fmt.Errorf("%w: exchange client, repository, index and logger are required", ports.ErrConfigurationError)
	}
	return &Manager{
		client:      client,
		repo:        repo,
		index:       index,
		notifier:    notifier,
		logger:      logger,
		symbolLocks: make(map[string]*sync.Mutex),
		repairCh:    make(chan repairTask, repairQueueSize),
	}, nil
}

// lockSymbol returns the mutex serializing operations for the symbol,
// creating it on first use.
func (m *Manager) lockSymbol(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.symbolLocks[symbol] = l
	}
	return l
}

// CreateOrderGroup places an entry limit order plus its protective OCO
// bracket and persists the resulting records. The entry is recorded as
// ACTIVE, the bracket legs as NEW children linked via ParentOrderID.
//
// If an active order already exists for the symbol, ErrActiveOrderExists is
// returned. If the bracket cannot be placed the entry order is canceled so
// no unprotected position is left on the exchange.
func (m *Manager) CreateOrderGroup(ctx context.Context, symbol string, side domain.OrderSide, quantity, price, takeProfit, stopLoss decimal.Decimal) (*domain.OrderRecord, error) {
	op := "CreateOrderGroup"

	l := m.lockSymbol(symbol)
	l.Lock()
	defer l.Unlock()

	active, err := m.repo.FindActiveBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: checking active orders: %w", op, err)
	}
	if len(active) > 0 {
		m.logger.Warn(ctx, op+": active order already exists, refusing to open", map[string]interface{}{
			"symbol":  symbol,
			"orderID": active[0].OrderID,
		})
		return nil, ports.ErrActiveOrderExists
	}

	entryAck, err := m.client.PlaceLimitOrder(ctx, symbol, side, quantity, price, domain.GTC)
	if err != nil {
		return nil, fmt.Errorf("%s: placing entry order: %w", op, err)
	}
	m.logger.Info(ctx, op+": entry order placed", map[string]interface{}{
		"symbol":  symbol,
		"orderID": entryAck.OrderID,
		"side":    side,
		"price":   price.String(),
	})

	ocoAck, err := m.client.PlaceOCOOrder(ctx, symbol, side.Opposite(), quantity, takeProfit, stopLoss)
	if err != nil {
		m.cancelOrderWarn(ctx, op, symbol, entryAck.OrderID)
		return nil, fmt.Errorf("%s: placing protective bracket: %w", op, err)
	}

	now := time.Now().UTC()
	entry := &domain.OrderRecord{
		OrderID:     entryAck.OrderID,
		Symbol:      symbol,
		Side:        side,
		Type:        domain.TypeLimit,
		Price:       price,
		Quantity:    quantity,
		State:       domain.OrderStateActive,
		CreatedAt:   now,
		WorkingTime: entryAck.TransactTime,
	}

	children := make([]*domain.OrderRecord, 0, len(ocoAck.Reports))
	parentID := entryAck.OrderID
	for _, rep := range ocoAck.Reports {
		childPrice := takeProfit
		if rep.Type == domain.TypeStopLossLimit {
			childPrice = stopLoss
		}
		children = append(children, &domain.OrderRecord{
			OrderID:       rep.OrderID,
			ParentOrderID: &parentID,
			Symbol:        symbol,
			Side:          side.Opposite(),
			Type:          rep.Type,
			Price:         childPrice,
			Quantity:      quantity,
			State:         domain.OrderStateNew,
			CreatedAt:     now,
			WorkingTime:   rep.TransactTime,
		})
	}

	for _, child := range children {
		if err := m.writeRecord(ctx, child); err != nil {
			m.cancelOrderWarn(ctx, op, symbol, entryAck.OrderID)
			for _, c := range children {
				m.cancelOrderWarn(ctx, op, symbol, c.OrderID)
			}
			return nil, fmt.Errorf("%s: persisting bracket order %d: %w", op, child.OrderID, err)
		}
	}
	if err := m.writeRecord(ctx, entry); err != nil {
		m.cancelOrderWarn(ctx, op, symbol, entryAck.OrderID)
		for _, c := range children {
			m.cancelOrderWarn(ctx, op, symbol, c.OrderID)
		}
		return nil, fmt.Errorf("%s: persisting entry order %d: %w", op, entryAck.OrderID, err)
	}

	m.logger.Info(ctx, op+": order group created", map[string]interface{}{
		"symbol":   symbol,
		"entryID":  entry.OrderID,
		"children": len(children),
	})
	return entry, nil
}

// CloseOrderWithState cancels the order group on the exchange and moves the
// entry record to the given terminal state. Bracket children are closed as
// CLOSED_CANCELED. Closing an unknown order is a logged no-op; closing an
// already terminal order is a silent no-op, so the operation is idempotent.
func (m *Manager) CloseOrderWithState(ctx context.Context, symbol string, orderID int64, state domain.OrderState) error {
	op := "CloseOrderWithState"
	if !state.IsTerminal() {
		return fmt.Errorf("%w: %s requires a terminal state, got %q", ports.ErrInvalidRequest, op, state)
	}

	l := m.lockSymbol(symbol)
	l.Lock()
	defer l.Unlock()

	rec, err := m.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			m.logger.Warn(ctx, op+": unknown order, nothing to close", map[string]interface{}{
				"symbol":  symbol,
				"orderID": orderID,
			})
			return nil
		}
		return fmt.Errorf("%s: loading order %d: %w", op, orderID, err)
	}
	if rec.State.IsTerminal() {
		return nil
	}

	children, err := m.repo.FindByParentOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: loading bracket orders for %d: %w", op, orderID, err)
	}

	for _, child := range children {
		if child.State.IsTerminal() {
			continue
		}
		m.cancelOrderWarn(ctx, op, symbol, child.OrderID)
	}
	m.cancelOrderWarn(ctx, op, symbol, orderID)

	for _, child := range children {
		if child.State.IsTerminal() {
			continue
		}
		child.State = domain.OrderStateClosedCanceled
		if err := m.writeRecord(ctx, child); err != nil {
			return fmt.Errorf("%s: persisting bracket order %d: %w", op, child.OrderID, err)
		}
	}

	rec.State = state
	if err := m.writeRecord(ctx, rec); err != nil {
		return fmt.Errorf("%s: persisting order %d: %w", op, orderID, err)
	}

	m.logger.Info(ctx, op+": order closed", map[string]interface{}{
		"symbol":  symbol,
		"orderID": orderID,
		"state":   state,
	})
	return nil
}

// GetActiveOrder returns the single active order for the symbol, or nil
// when there is none. Finding more than one active order is a broken
// invariant and is reported as an error rather than masked.
func (m *Manager) GetActiveOrder(ctx context.Context, symbol string) (*domain.OrderRecord, error) {
	active, err := m.repo.FindActiveBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("GetActiveOrder: %w", err)
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return active[0], nil
	}
	return nil, fmt.Errorf("%w: %d active orders for symbol %s", ports.ErrInvariantViolation, len(active), symbol)
}

// Reconcile compares the locally active order of each symbol against the
// exchange and closes records the exchange no longer considers working.
// It is called once at startup so a crash between exchange calls and
// persistence cannot leave phantom active orders behind.
func (m *Manager) Reconcile(ctx context.Context, symbols []string) error {
	op := "Reconcile"
	for _, symbol := range symbols {
		rec, err := m.GetActiveOrder(ctx, symbol)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", op, symbol, err)
		}
		if rec == nil {
			continue
		}

		ack, err := m.client.GetOrder(ctx, symbol, rec.OrderID)
		if err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				m.logger.Warn(ctx, op+": active order unknown to exchange, closing", map[string]interface{}{
					"symbol":  symbol,
					"orderID": rec.OrderID,
				})
				if err := m.CloseOrderWithState(ctx, symbol, rec.OrderID, domain.OrderStateClosedCanceled); err != nil {
					return fmt.Errorf("%s: closing stale order %d: %w", op, rec.OrderID, err)
				}
				continue
			}
			return fmt.Errorf("%s: fetching order %d: %w", op, rec.OrderID, err)
		}

		state, err := domain.OrderStateFromExchange(ack.Status)
		if err != nil {
			return fmt.Errorf("%s: order %d: %w", op, rec.OrderID, err)
		}
		// A FILLED entry means the position is genuinely open; it stays
		// ACTIVE with its bracket intact and threshold monitoring resumes.
		// Only entries the exchange has rejected or canceled are closed.
		if state != domain.OrderStateClosedCanceled {
			m.logger.Info(ctx, op+": resuming active order", map[string]interface{}{
				"symbol":  symbol,
				"orderID": rec.OrderID,
				"status":  ack.Status,
			})
			continue
		}
		m.logger.Warn(ctx, op+": exchange canceled order, closing", map[string]interface{}{
			"symbol":  symbol,
			"orderID": rec.OrderID,
			"status":  ack.Status,
		})
		if err := m.CloseOrderWithState(ctx, symbol, rec.OrderID, state); err != nil {
			return fmt.Errorf("%s: closing order %d: %w", op, rec.OrderID, err)
		}
	}
	return nil
}

// writeRecord performs the dual write: the primary repository first, then
// the search index. A primary failure fails the write. An index failure
// does not; the record is queued for repair and the failure is surfaced
// through the notifier.
func (m *Manager) writeRecord(ctx context.Context, rec *domain.OrderRecord) error {
	if err := m.repo.Upsert(ctx, rec); err != nil {
		metrics.RecordPersistenceFailure("primary")
		m.notify(ctx, ports.OrderNotification{Record: rec, Err: err.Error(), OccurredAt: time.Now().UTC()})
		return err
	}

	n := ports.OrderNotification{Record: rec, OccurredAt: time.Now().UTC()}
	if err := m.index.Index(ctx, rec); err != nil {
		n.Err = err.Error()
		metrics.RecordPersistenceFailure("index")
		m.logger.Warn(ctx, "order index write failed, queued for repair", map[string]interface{}{
			"orderID": rec.OrderID,
			"error":   err.Error(),
		})
		m.enqueueRepair(ctx, rec)
	}
	m.notify(ctx, n)
	return nil
}

func (m *Manager) notify(ctx context.Context, n ports.OrderNotification) {
	if m.notifier != nil {
		m.notifier.OrderWritten(ctx, n)
	}
}

func (m *Manager) enqueueRepair(ctx context.Context, rec *domain.OrderRecord) {
	select {
	case m.repairCh <- repairTask{rec: rec}:
	default:
		// Better to lose a repair entry than to stall the trading path;
		// the record is still safe in the primary store.
		m.logger.Error(ctx, ports.ErrIndexFailed, "repair queue full, dropping index repair task", map[string]interface{}{
			"orderID": rec.OrderID,
		})
	}
}

// StartRepairWorker launches the background goroutine that retries failed
// index writes until the context is canceled.
func (m *Manager) StartRepairWorker(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-m.repairCh:
				m.repairIndex(ctx, task.rec)
			}
		}
	}()
}

// repairIndex retries the index write with a capped linear backoff. The
// primary store already holds the record, so giving up only widens the
// index staleness window until the next write of the same order.
func (m *Manager) repairIndex(ctx context.Context, rec *domain.OrderRecord) {
	const maxAttempts = 5
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := m.index.Index(ctx, rec); err == nil {
			m.logger.Info(ctx, "order index repaired", map[string]interface{}{
				"orderID":  rec.OrderID,
				"attempts": attempt,
			})
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	m.logger.Error(ctx, ports.ErrIndexFailed, "order index repair exhausted retries", map[string]interface{}{
		"orderID": rec.OrderID,
	})
}

// Close waits for the repair worker to stop. The owning context must be
// canceled first.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		m.wg.Wait()
	})
}

// cancelOrderWarn cancels an order and logs failures instead of returning
// them. Used on cleanup paths where the original error matters more, and
// tolerates orders the exchange no longer knows.
func (m *Manager) cancelOrderWarn(ctx context.Context, op, symbol string, orderID int64) {
	if err := m.client.CancelOrder(ctx, symbol, orderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		m.logger.Warn(ctx, op+": failed to cancel order", map[string]interface{}{
			"symbol":  symbol,
			"orderID": orderID,
			"error":   err.Error(),
		})
	}
}
