package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const warehouseColumns = `id, organization_id, name, address, is_default, created_at, updated_at`

// CreateWarehouse inserts a warehouse. At most one warehouse per organization
// may be the default.
func CreateWarehouse(ctx context.Context, q Queryer, orgID, name, address string, isDefault bool) (*model.Warehouse, error) {
	ts := now()
	w := &model.Warehouse{
		ID:             NewID(),
		OrganizationID: orgID,
		Name:           name,
		Address:        address,
		IsDefault:      isDefault,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO warehouses (`+warehouseColumns+`)
		 VALUES (:id, :organization_id, :name, :address, :is_default, :created_at, :updated_at)`,
		w,
	)
	if err != nil {
		return nil, fmt.Errorf("creating warehouse: %w", err)
	}
	return w, nil
}

// GetWarehouse returns a warehouse of orgID by ID. A warehouse of another
// organization is reported as missing.
func GetWarehouse(ctx context.Context, q Queryer, orgID, id string) (*model.Warehouse, error) {
	w := &model.Warehouse{}
	err := sqlx.GetContext(ctx, q, w,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE id = ? AND organization_id = ?`, id, orgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting warehouse: %w", err)
	}
	return w, nil
}

// GetDefaultWarehouse returns the default warehouse of orgID.
func GetDefaultWarehouse(ctx context.Context, q Queryer, orgID string) (*model.Warehouse, error) {
	w := &model.Warehouse{}
	err := sqlx.GetContext(ctx, q, w,
		`SELECT `+warehouseColumns+` FROM warehouses WHERE organization_id = ? AND is_default = 1`, orgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting default warehouse: %w", err)
	}
	return w, nil
}

// UpdateWarehouse updates a warehouse's name and address.
func UpdateWarehouse(ctx context.Context, q Queryer, orgID, id, name, address string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE warehouses SET name = ?, address = ?, updated_at = ? WHERE id = ? AND organization_id = ?`,
		name, address, now(), id, orgID,
	)
	if err != nil {
		return fmt.Errorf("updating warehouse: %w", err)
	}
	return nil
}

// SetDefaultWarehouse moves the default flag of orgID to id.
func SetDefaultWarehouse(ctx context.Context, q Queryer, orgID, id string) error {
	ts := now()
	if _, err := q.ExecContext(ctx,
		`UPDATE warehouses SET is_default = 0, updated_at = ? WHERE organization_id = ? AND is_default = 1`,
		ts, orgID,
	); err != nil {
		return fmt.Errorf("clearing default warehouse: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE warehouses SET is_default = 1, updated_at = ? WHERE id = ? AND organization_id = ?`,
		ts, id, orgID,
	); err != nil {
		return fmt.Errorf("setting default warehouse: %w", err)
	}
	return nil
}

// CountWarehouses returns the number of warehouses of orgID.
func CountWarehouses(ctx context.Context, q Queryer, orgID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM warehouses WHERE organization_id = ?`, orgID,
	); err != nil {
		return 0, fmt.Errorf("counting warehouses: %w", err)
	}
	return n, nil
}

// StockedProducts returns the SKUs of products holding a positive quantity in
// the warehouse.
func StockedProducts(ctx context.Context, q Queryer, warehouseID string) ([]string, error) {
	var skus []string
	err := sqlx.SelectContext(ctx, q, &skus,
		`SELECT p.sku FROM stock s
		 JOIN products p ON p.id = s.product_id
		 WHERE s.warehouse_id = ? AND s.quantity > 0
		 ORDER BY p.sku`, warehouseID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stocked products: %w", err)
	}
	return skus, nil
}

// DeleteWarehouse removes a warehouse together with its empty stock rows.
// Positive stock rows make the delete fail on the foreign key.
func DeleteWarehouse(ctx context.Context, q Queryer, orgID, id string) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM stock WHERE warehouse_id = ? AND quantity = 0`, id,
	); err != nil {
		return fmt.Errorf("deleting empty stock rows: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM warehouses WHERE id = ? AND organization_id = ?`, id, orgID,
	); err != nil {
		return fmt.Errorf("deleting warehouse: %w", err)
	}
	return nil
}

// ListWarehouseSummaries returns the warehouses of orgID with the number of
// products stocked and the total units held. The default warehouse is first.
func ListWarehouseSummaries(ctx context.Context, q Queryer, orgID string) ([]model.WarehouseSummary, error) {
	var ws []model.WarehouseSummary
	err := sqlx.SelectContext(ctx, q, &ws,
		`SELECT w.id, w.organization_id, w.name, w.address, w.is_default, w.created_at, w.updated_at,
		        COUNT(CASE WHEN s.quantity > 0 THEN 1 END) AS product_count,
		        COALESCE(SUM(s.quantity), 0) AS total_units
		 FROM warehouses w
		 LEFT JOIN stock s ON s.warehouse_id = w.id
		 WHERE w.organization_id = ?
		 GROUP BY w.id
		 ORDER BY w.is_default DESC, w.name, w.id`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing warehouses: %w", err)
	}
	return ws, nil
}
