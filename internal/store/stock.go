package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/model"
)

// Delta is one signed quantity change of a (product, warehouse) pair.
type Delta struct {
	OrganizationID string
	ProductID      string
	WarehouseID    string
	Amount         int
	Reason         string
	Reference      string
	ActorID        *string
}

// GetQuantity returns the quantity of a product in a warehouse. A missing
// stock row is zero.
func GetQuantity(ctx context.Context, q Queryer, productID, warehouseID string) (int, bool, error) {
	var qty int
	err := sqlx.GetContext(ctx, q, &qty,
		`SELECT quantity FROM stock WHERE product_id = ? AND warehouse_id = ?`,
		productID, warehouseID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checking available quantity: %w", err)
	}
	return qty, true, nil
}

// ApplyDelta changes a stock quantity and appends the matching movement. It
// must run inside a unit of work so the row and the ledger move together.
// The result may not go below zero.
func ApplyDelta(ctx context.Context, tx *sqlx.Tx, d Delta) (*model.StockMovement, error) {
	if d.Amount == 0 {
		return nil, apperr.E(apperr.Validation, "quantity change must not be zero")
	}

	current, exists, err := GetQuantity(ctx, tx, d.ProductID, d.WarehouseID)
	if err != nil {
		return nil, err
	}

	next := current + d.Amount
	if next < 0 {
		return nil, apperr.E(apperr.InsufficientStock,
			"insufficient quantity: have %d, need %d", current, -d.Amount)
	}

	ts := now()
	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE stock SET quantity = ?, updated_at = ? WHERE product_id = ? AND warehouse_id = ?`,
			next, ts, d.ProductID, d.WarehouseID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stock (product_id, warehouse_id, quantity, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			d.ProductID, d.WarehouseID, next, ts, ts,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("updating stock: %w", err)
	}

	m := &model.StockMovement{
		ID:             NewID(),
		OrganizationID: d.OrganizationID,
		ProductID:      d.ProductID,
		WarehouseID:    d.WarehouseID,
		Direction:      model.DirectionIn,
		Magnitude:      d.Amount,
		Reason:         d.Reason,
		Reference:      d.Reference,
		ActorID:        d.ActorID,
		CreatedAt:      ts,
	}
	if d.Amount < 0 {
		m.Direction = model.DirectionOut
		m.Magnitude = -d.Amount
	}
	if err := InsertMovement(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// EnsureStockRow creates an empty stock row for a pair if none exists.
func EnsureStockRow(ctx context.Context, q Queryer, productID, warehouseID string) error {
	ts := now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO stock (product_id, warehouse_id, quantity, created_at, updated_at) VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (product_id, warehouse_id) DO NOTHING`,
		productID, warehouseID, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("creating stock row: %w", err)
	}
	return nil
}

// InsertMovement appends a movement to the ledger.
func InsertMovement(ctx context.Context, q Queryer, m *model.StockMovement) error {
	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO stock_movements
		 (id, organization_id, product_id, warehouse_id, direction, magnitude, reason, reference, actor_id, created_at)
		 VALUES (:id, :organization_id, :product_id, :warehouse_id, :direction, :magnitude, :reason, :reference, :actor_id, :created_at)`,
		m,
	)
	if err != nil {
		return fmt.Errorf("recording movement: %w", err)
	}
	return nil
}

// ListProductStock returns the stock rows of a product with warehouse names.
func ListProductStock(ctx context.Context, q Queryer, productID string) ([]model.Stock, error) {
	var stock []model.Stock
	err := sqlx.SelectContext(ctx, q, &stock,
		`SELECT s.product_id, s.warehouse_id, s.quantity, s.created_at, s.updated_at, w.name AS warehouse_name
		 FROM stock s
		 JOIN warehouses w ON w.id = s.warehouse_id
		 WHERE s.product_id = ?
		 ORDER BY w.is_default DESC, w.name, w.id`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing product stock: %w", err)
	}
	return stock, nil
}

// MovementFilter narrows ListMovements. Zero fields match everything.
type MovementFilter struct {
	ProductID   string
	WarehouseID string
	Since       time.Time
	Limit       int
}

// ListMovements returns ledger rows of orgID, newest first.
func ListMovements(ctx context.Context, q Queryer, orgID string, f MovementFilter) ([]model.StockMovement, error) {
	query := `SELECT id, organization_id, product_id, warehouse_id, direction, magnitude, reason, reference, actor_id, created_at
	          FROM stock_movements
	          WHERE organization_id = ?`
	args := []any{orgID}

	if f.ProductID != "" {
		query += ` AND product_id = ?`
		args = append(args, f.ProductID)
	}
	if f.WarehouseID != "" {
		query += ` AND warehouse_id = ?`
		args = append(args, f.WarehouseID)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}

	query += ` ORDER BY id DESC`

	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var movements []model.StockMovement
	if err := sqlx.SelectContext(ctx, q, &movements, query, args...); err != nil {
		return nil, fmt.Errorf("listing movements: %w", err)
	}
	return movements, nil
}

// ReconcileStock compares every stock row of orgID's live products with the
// signed sum of its movements and returns the pairs that disagree.
func ReconcileStock(ctx context.Context, q Queryer, orgID string) ([]model.StockMismatch, error) {
	var mismatches []model.StockMismatch
	err := sqlx.SelectContext(ctx, q, &mismatches,
		`SELECT s.product_id, s.warehouse_id, s.quantity,
		        COALESCE((SELECT SUM(CASE m.direction WHEN 'in' THEN m.magnitude ELSE -m.magnitude END)
		                  FROM stock_movements m
		                  WHERE m.product_id = s.product_id AND m.warehouse_id = s.warehouse_id), 0) AS ledger_sum
		 FROM stock s
		 JOIN products p ON p.id = s.product_id
		 WHERE p.organization_id = ?
		   AND s.quantity <> COALESCE((SELECT SUM(CASE m.direction WHEN 'in' THEN m.magnitude ELSE -m.magnitude END)
		                               FROM stock_movements m
		                               WHERE m.product_id = s.product_id AND m.warehouse_id = s.warehouse_id), 0)
		 ORDER BY s.product_id, s.warehouse_id`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("reconciling stock: %w", err)
	}
	return mismatches, nil
}
