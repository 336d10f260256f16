package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/stockledger/internal/apperr"
)

// TxOptions bounds the unit of work.
type TxOptions struct {
	// MaxConcurrent caps write transactions waiting on or holding the database.
	MaxConcurrent int64
	// AcquireTimeout is how long a caller waits for a slot.
	AcquireTimeout time.Duration
	// MaxDuration bounds a whole unit, including its statements.
	MaxDuration time.Duration
}

// DefaultTxOptions are used for zero fields of TxOptions.
var DefaultTxOptions = TxOptions{
	MaxConcurrent:  4,
	AcquireTimeout: 5 * time.Second,
	MaxDuration:    10 * time.Second,
}

// Transactor runs units of work against the ledger database. Every mutation of
// stock, prices, products or warehouses goes through WithinTx.
type Transactor struct {
	db    *sqlx.DB
	slots *semaphore.Weighted
	opts  TxOptions
}

// NewTransactor creates a Transactor for db.
func NewTransactor(db *sqlx.DB, opts TxOptions) *Transactor {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultTxOptions.MaxConcurrent
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultTxOptions.AcquireTimeout
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultTxOptions.MaxDuration
	}
	return &Transactor{
		db:    db,
		slots: semaphore.NewWeighted(opts.MaxConcurrent),
		opts:  opts,
	}
}

// DB returns the underlying pool for reads outside a unit of work.
func (t *Transactor) DB() *sqlx.DB {
	return t.db
}

// WithinTx runs fn in a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Connections begin IMMEDIATE, so fn
// holds the write lock from its first statement.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, t.opts.AcquireTimeout)
	err := t.slots.Acquire(acquireCtx, 1)
	cancelAcquire()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Wrap(apperr.TransactionTimeout, err, "waiting for a transaction slot")
	}
	defer t.slots.Release(1)

	txCtx, cancel := context.WithTimeout(ctx, t.opts.MaxDuration)
	defer cancel()

	tx, err := t.db.BeginTxx(txCtx, nil)
	if err != nil {
		return translate(ctx, txCtx, err, "beginning transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return translate(ctx, txCtx, err, "running transaction")
	}

	if err := tx.Commit(); err != nil {
		return translate(ctx, txCtx, err, "committing transaction")
	}
	return nil
}

// translate maps driver errors to the error taxonomy. Already classified
// errors pass through untouched.
func translate(parent, txCtx context.Context, err error, action string) error {
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}

	if parent.Err() == nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(apperr.TransactionTimeout, err, "%s", action)
	}

	if kind, msg, ok := classify(err); ok {
		return apperr.Wrap(kind, err, "%s", msg)
	}

	return fmt.Errorf("%s: %w", action, err)
}

// classify inspects a SQLite error. Constraint messages look like
// "UNIQUE constraint failed: products.organization_id, products.sku".
func classify(err error) (apperr.Kind, string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, "", false
	}

	text := se.Error()
	switch code := se.Code(); {
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return apperr.TransactionTimeout, "database is busy", true
	case code&0xff != sqlite3.SQLITE_CONSTRAINT:
		return 0, "", false
	}

	switch {
	case strings.Contains(text, "products.organization_id, products.sku"):
		return apperr.DuplicateSKU, "sku already exists in this organization", true
	case strings.Contains(text, "FOREIGN KEY constraint failed"):
		return apperr.Conflict, "referenced row is missing or still in use", true
	case strings.Contains(text, "CHECK constraint failed") && strings.Contains(text, "quantity"):
		return apperr.InsufficientStock, "stock cannot go below zero", true
	case strings.Contains(text, "CHECK constraint failed"):
		return apperr.Validation, "value out of range", true
	case strings.Contains(text, "UNIQUE constraint failed"):
		return apperr.Conflict, "row already exists", true
	}
	return apperr.Internal, "constraint violation", true
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}
