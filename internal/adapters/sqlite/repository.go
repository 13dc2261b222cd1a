package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

// Repository implements ports.OrderRepository backed by SQLite. Prices and
// quantities are stored as their exact decimal string representation; the
// float affinity of SQLite would silently round them.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// NewRepository opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewRepository(ctx context.Context, dbPath string, logger ports.Logger) (*Repository, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database at %s: %v", ports.ErrDBConnection, dbPath, err)
	}

	// SQLite allows a single writer; a pool larger than one just trades
	// lock contention for SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ports.ErrDBConnection, err)
	}

	repo := &Repository{db: db, logger: logger}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info(ctx, "order repository ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id        INTEGER PRIMARY KEY,
		parent_order_id INTEGER,
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL,
		type            TEXT NOT NULL,
		price           TEXT NOT NULL,
		quantity        TEXT NOT NULL,
		state           TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL,
		working_time    TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol_state ON orders (symbol, state);
	CREATE INDEX IF NOT EXISTS idx_orders_parent ON orders (parent_order_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: initializing schema: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// Upsert inserts the record or replaces all mutable columns when the order
// already exists.
func (r *Repository) Upsert(ctx context.Context, rec *domain.OrderRecord) error {
	query := `
	INSERT INTO orders (order_id, parent_order_id, symbol, side, type, price, quantity, state, created_at, working_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET
		parent_order_id = excluded.parent_order_id,
		side            = excluded.side,
		type            = excluded.type,
		price           = excluded.price,
		quantity        = excluded.quantity,
		state           = excluded.state,
		working_time    = excluded.working_time
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.OrderID,
		rec.ParentOrderID,
		rec.Symbol,
		string(rec.Side),
		string(rec.Type),
		rec.Price.String(),
		rec.Quantity.String(),
		string(rec.State),
		rec.CreatedAt,
		rec.WorkingTime,
	)
	if err != nil {
		return fmt.Errorf("%w: upserting order %d: %v", ports.ErrUpdateFailed, rec.OrderID, err)
	}
	return nil
}

// UpdateState sets the lifecycle state of an existing record.
func (r *Repository) UpdateState(ctx context.Context, orderID int64, state domain.OrderState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET state = ? WHERE order_id = ?`, string(state), orderID)
	if err != nil {
		return fmt.Errorf("%w: updating state of order %d: %v", ports.ErrUpdateFailed, orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: checking update of order %d: %v", ports.ErrUpdateFailed, orderID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %d", ports.ErrNotFound, orderID)
	}
	return nil
}

const selectColumns = `order_id, parent_order_id, symbol, side, type, price, quantity, state, created_at, working_time`

// FindActiveBySymbol returns all records for the symbol in the ACTIVE state.
func (r *Repository) FindActiveBySymbol(ctx context.Context, symbol string) ([]*domain.OrderRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orders WHERE symbol = ? AND state = ? ORDER BY order_id`
	rows, err := r.db.QueryContext(ctx, query, symbol, string(domain.OrderStateActive))
	if err != nil {
		return nil, fmt.Errorf("%w: querying active orders for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// FindByOrderID returns the record with the given order ID.
func (r *Repository) FindByOrderID(ctx context.Context, orderID int64) (*domain.OrderRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orders WHERE order_id = ?`
	rec, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", ports.ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("%w: querying order %d: %v", ports.ErrQueryFailed, orderID, err)
	}
	return rec, nil
}

// FindByParentOrderID returns the bracket children of an entry order.
func (r *Repository) FindByParentOrderID(ctx context.Context, parentID int64) ([]*domain.OrderRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orders WHERE parent_order_id = ? ORDER BY order_id`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying children of order %d: %v", ports.ErrQueryFailed, parentID, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*domain.OrderRecord, error) {
	var (
		rec       domain.OrderRecord
		parentID  sql.NullInt64
		priceStr  string
		qtyStr    string
		side      string
		orderType string
		state     string
	)
	err := s.Scan(
		&rec.OrderID,
		&parentID,
		&rec.Symbol,
		&side,
		&orderType,
		&priceStr,
		&qtyStr,
		&state,
		&rec.CreatedAt,
		&rec.WorkingTime,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		rec.ParentOrderID = &parentID.Int64
	}
	rec.Side = domain.OrderSide(side)
	rec.Type = domain.OrderType(orderType)
	rec.State = domain.OrderState(state)

	if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parsing price %q of order %d: %v", priceStr, rec.OrderID, err)
	}
	if rec.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return nil, fmt.Errorf("parsing quantity %q of order %d: %v", qtyStr, rec.OrderID, err)
	}
	return &rec, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.OrderRecord, error) {
	var out []*domain.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning order row: %v", ports.ErrQueryFailed, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order rows: %v", ports.ErrQueryFailed, err)
	}
	return out, nil
}
