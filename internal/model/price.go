package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceEntry is one version of a product's price. ValidTo is nil for the
// currently effective (open) row.
type PriceEntry struct {
	ID          string              `db:"id" json:"id"`
	ProductID   string              `db:"product_id" json:"product_id"`
	RetailPrice decimal.Decimal     `db:"retail_price" json:"retail_price"`
	ActualPrice decimal.NullDecimal `db:"actual_price" json:"actual_price"`
	MarketPrice decimal.NullDecimal `db:"market_price" json:"market_price"`
	ValidFrom   time.Time           `db:"valid_from" json:"valid_from"`
	ValidTo     *time.Time          `db:"valid_to" json:"valid_to,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// Open reports whether the entry is currently effective.
func (p PriceEntry) Open() bool {
	return p.ValidTo == nil
}

// SellingPrice is the price captured on an order line: the actual price when
// set, the retail price otherwise.
func (p PriceEntry) SellingPrice() decimal.Decimal {
	if p.ActualPrice.Valid {
		return p.ActualPrice.Decimal
	}
	return p.RetailPrice
}
