package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

// EnsureUser maps a verified principal to a user row, creating it on first
// sight and refreshing the email otherwise.
func EnsureUser(ctx context.Context, q Queryer, externalID, email string) (*model.User, error) {
	ts := now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, external_id, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET email = excluded.email, updated_at = excluded.updated_at
		 WHERE users.email <> excluded.email`,
		NewID(), externalID, email, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	return GetUserByExternalID(ctx, q, externalID)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q Queryer, id string) (*model.User, error) {
	return getUser(ctx, q, `SELECT id, external_id, email, created_at, updated_at FROM users WHERE id = ?`, id)
}

// GetUserByExternalID returns the user for an identity provider subject.
func GetUserByExternalID(ctx context.Context, q Queryer, externalID string) (*model.User, error) {
	return getUser(ctx, q, `SELECT id, external_id, email, created_at, updated_at FROM users WHERE external_id = ?`, externalID)
}

func getUser(ctx context.Context, q Queryer, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := sqlx.GetContext(ctx, q, u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}
