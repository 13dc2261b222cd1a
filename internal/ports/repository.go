package ports

import (
	"context"
	"time"

	"macdTraderBot/internal/domain"
)

// OrderRepository is the primary (authoritative) order store.
type OrderRepository interface {
	// Upsert inserts the record or replaces it when the order ID already
	// exists.
	Upsert(ctx context.Context, rec *domain.OrderRecord) error

	// UpdateState sets the lifecycle state of an existing record. Returns
	// ErrNotFound when no record has the given order ID.
	UpdateState(ctx context.Context, orderID int64, state domain.OrderState) error

	// FindActiveBySymbol returns all records for the symbol in the ACTIVE
	// state. More than one result signals a broken invariant; callers decide
	// how loudly to fail.
	FindActiveBySymbol(ctx context.Context, symbol string) ([]*domain.OrderRecord, error)

	// FindByOrderID returns the record with the given exchange order ID, or
	// ErrNotFound.
	FindByOrderID(ctx context.Context, orderID int64) (*domain.OrderRecord, error)

	// FindByParentOrderID returns the bracket children of an entry order.
	FindByParentOrderID(ctx context.Context, parentID int64) ([]*domain.OrderRecord, error)

	// Close releases the underlying store.
	Close() error
}

// OrderIndex is the secondary store, a search index kept eventually
// consistent with the repository. Index failures never fail the write path;
// the lifecycle manager queues them for repair instead.
type OrderIndex interface {
	// Index writes or replaces the document for the record.
	Index(ctx context.Context, rec *domain.OrderRecord) error

	// Delete removes the document for the order ID. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, orderID int64) error

	// Close releases the underlying index.
	Close() error
}

// OrderNotification describes one order write outcome, including the
// secondary-store error when the index write failed.
type OrderNotification struct {
	Record     *domain.OrderRecord
	Err        string // Empty when both stores succeeded
	OccurredAt time.Time
}

// OrderNotifier receives a notification for every completed order write.
type OrderNotifier interface {
	OrderWritten(ctx context.Context, n OrderNotification)
}
