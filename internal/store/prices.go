package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const priceColumns = `id, product_id, retail_price, actual_price, market_price, valid_from, valid_to, created_at`

// GetOpenPrice returns the open price row of a product, the latest version.
// It may not have taken effect yet.
func GetOpenPrice(ctx context.Context, q Queryer, productID string) (*model.PriceEntry, error) {
	return getPrice(ctx, q,
		`SELECT `+priceColumns+` FROM price_history WHERE product_id = ? AND valid_to IS NULL`, productID)
}

// GetEffectivePrice returns the price row of a product in effect at the
// given time.
func GetEffectivePrice(ctx context.Context, q Queryer, productID string, at time.Time) (*model.PriceEntry, error) {
	p := &model.PriceEntry{}
	at = at.UTC()
	err := sqlx.GetContext(ctx, q, p,
		`SELECT `+priceColumns+` FROM price_history
		 WHERE product_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		 ORDER BY valid_from DESC, id DESC LIMIT 1`,
		productID, at, at,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting effective price: %w", err)
	}
	return p, nil
}

// GetLatestClosedPrice returns the most recently closed price row of a product.
func GetLatestClosedPrice(ctx context.Context, q Queryer, productID string) (*model.PriceEntry, error) {
	return getPrice(ctx, q,
		`SELECT `+priceColumns+` FROM price_history WHERE product_id = ? AND valid_to IS NOT NULL
		 ORDER BY valid_to DESC, id DESC LIMIT 1`, productID)
}

func getPrice(ctx context.Context, q Queryer, query string, productID string) (*model.PriceEntry, error) {
	p := &model.PriceEntry{}
	err := sqlx.GetContext(ctx, q, p, query, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting price: %w", err)
	}
	return p, nil
}

// ClosePrice ends the open price row of a product at validTo. It reports
// whether a row was open.
func ClosePrice(ctx context.Context, q Queryer, productID string, validTo time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE price_history SET valid_to = ? WHERE product_id = ? AND valid_to IS NULL`,
		validTo.UTC(), productID,
	)
	if err != nil {
		return false, fmt.Errorf("closing price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("closing price: %w", err)
	}
	return n > 0, nil
}

// InsertPrice appends an open price row, filling in its ID and timestamps.
// The previous open row must be closed first.
func InsertPrice(ctx context.Context, q Queryer, p *model.PriceEntry) error {
	p.ID = NewID()
	p.ValidFrom = p.ValidFrom.UTC()
	p.ValidTo = nil
	p.CreatedAt = now()

	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO price_history (`+priceColumns+`)
		 VALUES (:id, :product_id, :retail_price, :actual_price, :market_price, :valid_from, :valid_to, :created_at)`,
		p,
	)
	if err != nil {
		return fmt.Errorf("inserting price: %w", err)
	}
	return nil
}

// ListPrices returns a product's price history, newest first.
func ListPrices(ctx context.Context, q Queryer, productID string) ([]model.PriceEntry, error) {
	var prices []model.PriceEntry
	err := sqlx.SelectContext(ctx, q, &prices,
		`SELECT `+priceColumns+` FROM price_history WHERE product_id = ? ORDER BY valid_from DESC, id DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing prices: %w", err)
	}
	return prices, nil
}
