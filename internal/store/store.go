// Package store holds the ledger statements. Functions take a sqlx.ExtContext
// so the same statement runs against the pool or inside a unit of work.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Queryer is satisfied by *sqlx.DB and *sqlx.Tx.
type Queryer = sqlx.ExtContext

// NewID returns a time-ordered identifier for a new row.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// now is the timestamp written to created_at and updated_at columns.
func now() time.Time {
	return time.Now().UTC()
}
