package model

import "time"

// Warehouse is a stock location owned by an organization.
type Warehouse struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Address        string    `db:"address" json:"address,omitempty"`
	IsDefault      bool      `db:"is_default" json:"is_default"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// WarehouseSummary is the warehouse-list read view with aggregated stock.
type WarehouseSummary struct {
	Warehouse
	ProductCount int `db:"product_count" json:"product_count"`
	TotalUnits   int `db:"total_units" json:"total_units"`
}
