package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Setting keys.
const (
	SettingTokenSecret = "token_secret"
)

// GetOrCreateSecret returns the random secret stored under key, generating
// and storing one on first use. INSERT OR IGNORE followed by a read keeps
// concurrent first calls agreeing on one value.
func GetOrCreateSecret(ctx context.Context, q Queryer, key string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", key, err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, hex.EncodeToString(buf),
	); err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	var secret string
	if err := sqlx.GetContext(ctx, q, &secret,
		`SELECT value FROM settings WHERE key = ?`, key,
	); err != nil {
		return "", fmt.Errorf("querying %s: %w", key, err)
	}
	return secret, nil
}
