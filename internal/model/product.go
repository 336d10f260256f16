package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses.
const (
	ProductStatusActive       = "active"
	ProductStatusInactive     = "inactive"
	ProductStatusDiscontinued = "discontinued"
)

// ValidProductStatus reports whether s is a known product status.
func ValidProductStatus(s string) bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusDiscontinued:
		return true
	}
	return false
}

// Product is a catalog record. SKU is unique within an organization only.
type Product struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	SKU            string    `db:"sku" json:"sku"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description,omitempty"`
	ImageRef       string    `db:"image_ref" json:"image_ref,omitempty"`
	Status         string    `db:"status" json:"status"`
	CreatedBy      *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ProductSummary is one row of the product-list read view.
type ProductSummary struct {
	Product
	TotalStock  int                 `db:"total_stock" json:"total_stock"`
	RetailPrice decimal.NullDecimal `db:"retail_price" json:"retail_price"`
}

// ProductDetail is the product-detail read view.
type ProductDetail struct {
	Product      Product     `json:"product"`
	Stock        []Stock     `json:"stock"`
	TotalStock   int         `json:"total_stock"`
	Price        *PriceEntry `json:"price,omitempty"`
	RecentOrders []OrderLine `json:"recent_orders"`
}

// Result is returned by every mutation entry point.
type Result struct {
	Success    bool   `json:"success"`
	ResourceID string `json:"resource_id,omitempty"`
	Message    string `json:"message"`
}
