package model

import "time"

// Stock is the current quantity of a product held in a warehouse.
// A missing row means zero.
type Stock struct {
	ProductID   string    `db:"product_id" json:"product_id"`
	WarehouseID string    `db:"warehouse_id" json:"warehouse_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not always populated).
	WarehouseName string `db:"warehouse_name" json:"warehouse_name,omitempty"`
}

// Movement directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Movement reasons written by the engine itself.
const (
	ReasonInitial     = "initial"
	ReasonAdjustment  = "adjustment"
	ReasonTransferIn  = "transfer-in"
	ReasonTransferOut = "transfer-out"
	ReasonOrder       = "order"
)

// StockMovement is one immutable ledger row.
type StockMovement struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	WarehouseID    string    `db:"warehouse_id" json:"warehouse_id"`
	Direction      string    `db:"direction" json:"direction"`
	Magnitude      int       `db:"magnitude" json:"magnitude"`
	Reason         string    `db:"reason" json:"reason"`
	Reference      string    `db:"reference" json:"reference,omitempty"`
	ActorID        *string   `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Signed returns the magnitude with the direction applied.
func (m StockMovement) Signed() int {
	if m.Direction == DirectionOut {
		return -m.Magnitude
	}
	return m.Magnitude
}

// StockMismatch reports a (product, warehouse) pair whose stock row disagrees
// with the sum of its movements.
type StockMismatch struct {
	ProductID   string `db:"product_id" json:"product_id"`
	WarehouseID string `db:"warehouse_id" json:"warehouse_id"`
	Quantity    int    `db:"quantity" json:"quantity"`
	LedgerSum   int    `db:"ledger_sum" json:"ledger_sum"`
}
