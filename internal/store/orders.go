package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/erazemk/stockledger/internal/model"
)

// CreateOrder inserts an order header, filling in its ID and timestamps.
func CreateOrder(ctx context.Context, q Queryer, o *model.Order) error {
	ts := now()
	o.ID = NewID()
	o.CreatedAt, o.UpdatedAt = ts, ts

	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO orders (id, organization_id, reference, placed_by, created_at, updated_at)
		 VALUES (:id, :organization_id, :reference, :placed_by, :created_at, :updated_at)`,
		o,
	)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// InsertOrderItem appends a line to an order.
func InsertOrderItem(ctx context.Context, q Queryer, item *model.OrderItem) error {
	item.ID = NewID()
	item.CreatedAt = now()

	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO order_items (id, order_id, product_id, warehouse_id, quantity, price_at_order, created_at)
		 VALUES (:id, :order_id, :product_id, :warehouse_id, :quantity, :price_at_order, :created_at)`,
		item,
	)
	if err != nil {
		return fmt.Errorf("adding order item: %w", err)
	}
	return nil
}

// GetOrder returns an order of orgID with its items.
func GetOrder(ctx context.Context, q Queryer, orgID, id string) (*model.Order, error) {
	o := &model.Order{}
	err := sqlx.GetContext(ctx, q, o,
		`SELECT id, organization_id, reference, placed_by, created_at, updated_at
		 FROM orders WHERE id = ? AND organization_id = ?`, id, orgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	if err := sqlx.SelectContext(ctx, q, &o.Items,
		`SELECT id, order_id, product_id, warehouse_id, quantity, price_at_order, created_at
		 FROM order_items WHERE order_id = ? ORDER BY id`, o.ID,
	); err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	o.Total = orderTotal(o.Items)
	return o, nil
}

// ListOrders returns the orders of orgID with their items, newest first.
func ListOrders(ctx context.Context, q Queryer, orgID string) ([]model.Order, error) {
	var orders []model.Order
	if err := sqlx.SelectContext(ctx, q, &orders,
		`SELECT id, organization_id, reference, placed_by, created_at, updated_at
		 FROM orders WHERE organization_id = ? ORDER BY id DESC`, orgID,
	); err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	var items []model.OrderItem
	if err := sqlx.SelectContext(ctx, q, &items,
		`SELECT i.id, i.order_id, i.product_id, i.warehouse_id, i.quantity, i.price_at_order, i.created_at
		 FROM order_items i
		 JOIN orders o ON o.id = i.order_id
		 WHERE o.organization_id = ?
		 ORDER BY i.id`, orgID,
	); err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}

	byOrder := make(map[string][]model.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		orders[i].Total = orderTotal(orders[i].Items)
	}
	return orders, nil
}

// OrdersReferencingProduct returns the IDs of orders with a line for productID.
func OrdersReferencingProduct(ctx context.Context, q Queryer, productID string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT DISTINCT order_id FROM order_items WHERE product_id = ? ORDER BY order_id`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing referencing orders: %w", err)
	}
	return ids, nil
}

// RecentOrderLines returns the latest order lines of a product.
func RecentOrderLines(ctx context.Context, q Queryer, productID string, limit int) ([]model.OrderLine, error) {
	var lines []model.OrderLine
	err := sqlx.SelectContext(ctx, q, &lines,
		`SELECT o.id AS order_id, o.reference, i.quantity, i.price_at_order, o.created_at
		 FROM order_items i
		 JOIN orders o ON o.id = i.order_id
		 WHERE i.product_id = ?
		 ORDER BY o.id DESC, i.id DESC
		 LIMIT ?`, productID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent order lines: %w", err)
	}
	return lines, nil
}

func orderTotal(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
