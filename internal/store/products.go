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

const productColumns = `id, organization_id, sku, name, description, image_ref, status,
	created_by, updated_by, created_at, updated_at`

// CreateProduct inserts p, filling in its ID, status and timestamps.
func CreateProduct(ctx context.Context, q Queryer, p *model.Product) error {
	ts := now()
	p.ID = NewID()
	if p.Status == "" {
		p.Status = model.ProductStatusActive
	}
	p.UpdatedBy = p.CreatedBy
	p.CreatedAt, p.UpdatedAt = ts, ts

	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO products (`+productColumns+`)
		 VALUES (:id, :organization_id, :sku, :name, :description, :image_ref, :status,
		         :created_by, :updated_by, :created_at, :updated_at)`,
		p,
	)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

// GetProduct returns a product of orgID by ID. A product of another
// organization is reported as missing.
func GetProduct(ctx context.Context, q Queryer, orgID, id string) (*model.Product, error) {
	p := &model.Product{}
	err := sqlx.GetContext(ctx, q, p,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND organization_id = ?`, id, orgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// SKUTaken reports whether another product of orgID already uses sku.
func SKUTaken(ctx context.Context, q Queryer, orgID, sku, exceptID string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM products WHERE organization_id = ? AND sku = ? AND id <> ?`,
		orgID, sku, exceptID,
	)
	if err != nil {
		return false, fmt.Errorf("checking sku: %w", err)
	}
	return n > 0, nil
}

// UpdateProduct writes the descriptive fields of p. Status is left alone.
func UpdateProduct(ctx context.Context, q Queryer, p *model.Product) error {
	p.UpdatedAt = now()
	_, err := sqlx.NamedExecContext(ctx, q,
		`UPDATE products
		 SET sku = :sku, name = :name, description = :description, image_ref = :image_ref,
		     updated_by = :updated_by, updated_at = :updated_at
		 WHERE id = :id AND organization_id = :organization_id`,
		p,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return nil
}

// SetProductStatus changes only the status of a product.
func SetProductStatus(ctx context.Context, q Queryer, orgID, id, status string, updatedBy *string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE products SET status = ?, updated_by = ?, updated_at = ? WHERE id = ? AND organization_id = ?`,
		status, updatedBy, now(), id, orgID,
	)
	if err != nil {
		return fmt.Errorf("setting product status: %w", err)
	}
	return nil
}

// DeleteProduct removes a product with its stock, prices and image. Stock
// movements stay behind as audit history.
func DeleteProduct(ctx context.Context, q Queryer, orgID, id string) error {
	steps := []struct {
		what  string
		query string
	}{
		{"stock", `DELETE FROM stock WHERE product_id = ?`},
		{"price history", `DELETE FROM price_history WHERE product_id = ?`},
		{"product image", `DELETE FROM product_images WHERE product_id = ?`},
	}
	for _, step := range steps {
		if _, err := q.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("deleting %s: %w", step.what, err)
		}
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM products WHERE id = ? AND organization_id = ?`, id, orgID,
	); err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// SetProductImage stores or replaces a product's image.
func SetProductImage(ctx context.Context, q Queryer, productID string, data []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO product_images (product_id, data, mime, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET data = excluded.data, mime = excluded.mime, updated_at = excluded.updated_at`,
		productID, data, mime, now(),
	)
	if err != nil {
		return fmt.Errorf("setting product image: %w", err)
	}
	return nil
}

// GetProductImage returns a product's image data and MIME type.
func GetProductImage(ctx context.Context, q Queryer, productID string) ([]byte, string, error) {
	var data []byte
	var mime string
	err := q.QueryRowxContext(ctx,
		`SELECT data, mime FROM product_images WHERE product_id = ?`, productID,
	).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting product image: %w", err)
	}
	return data, mime, nil
}

// ListProductSummaries returns the products of orgID with their total stock
// and the retail price in effect at the given time, optionally filtered by
// status.
func ListProductSummaries(ctx context.Context, q Queryer, orgID, status string, at time.Time) ([]model.ProductSummary, error) {
	at = at.UTC()
	query := `SELECT p.id, p.organization_id, p.sku, p.name, p.description, p.image_ref, p.status,
	                 p.created_by, p.updated_by, p.created_at, p.updated_at,
	                 COALESCE((SELECT SUM(s.quantity) FROM stock s WHERE s.product_id = p.id), 0) AS total_stock,
	                 (SELECT ph.retail_price FROM price_history ph
	                  WHERE ph.product_id = p.id AND ph.valid_from <= ?
	                    AND (ph.valid_to IS NULL OR ph.valid_to > ?)
	                  ORDER BY ph.valid_from DESC LIMIT 1) AS retail_price
	          FROM products p
	          WHERE p.organization_id = ?`
	args := []any{at, at, orgID}

	if status != "" {
		query += ` AND p.status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY p.name, p.sku`

	var products []model.ProductSummary
	if err := sqlx.SelectContext(ctx, q, &products, query, args...); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}
