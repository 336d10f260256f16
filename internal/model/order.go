package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a consumption of stock by an organization.
type Order struct {
	ID             string          `db:"id" json:"id"`
	OrganizationID string          `db:"organization_id" json:"organization_id"`
	Reference      string          `db:"reference" json:"reference,omitempty"`
	PlacedBy       *string         `db:"placed_by" json:"placed_by,omitempty"`
	Total          decimal.Decimal `db:"-" json:"total"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Items          []OrderItem     `db:"-" json:"items,omitempty"`
}

// OrderItem captures quantity and the price in effect when the order was placed.
type OrderItem struct {
	ID           string          `db:"id" json:"id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	WarehouseID  string          `db:"warehouse_id" json:"warehouse_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	PriceAtOrder decimal.Decimal `db:"price_at_order" json:"price_at_order"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Subtotal is quantity times the captured price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLine is an order item joined with its order, used in product detail.
type OrderLine struct {
	OrderID      string          `db:"order_id" json:"order_id"`
	Reference    string          `db:"reference" json:"reference,omitempty"`
	Quantity     int             `db:"quantity" json:"quantity"`
	PriceAtOrder decimal.Decimal `db:"price_at_order" json:"price_at_order"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
