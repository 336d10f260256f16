package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
)

// fixture is an organization with one user and its default warehouse.
type fixture struct {
	db        *sqlx.DB
	tx        *Transactor
	user      *model.User
	org       *model.Organization
	warehouse *model.Warehouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := EnsureUser(ctx, database, "ext-1", "owner@example.com")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	org, err := CreateOrganization(ctx, database, "Acme", user.ID)
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if err := AddMember(ctx, database, org.ID, user.ID, model.RoleAdmin); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	w, err := CreateWarehouse(ctx, database, org.ID, "Main", "", true)
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}

	return &fixture{
		db:        database,
		tx:        NewTransactor(database, TxOptions{}),
		user:      user,
		org:       org,
		warehouse: w,
	}
}

func (f *fixture) product(t *testing.T, sku string) *model.Product {
	t.Helper()
	p := &model.Product{OrganizationID: f.org.ID, SKU: sku, Name: "Product " + sku}
	if err := CreateProduct(context.Background(), f.db, p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func (f *fixture) adjust(t *testing.T, productID, warehouseID string, amount int) error {
	t.Helper()
	return f.tx.WithinTx(context.Background(), func(tx *sqlx.Tx) error {
		_, err := ApplyDelta(context.Background(), tx, Delta{
			OrganizationID: f.org.ID,
			ProductID:      productID,
			WarehouseID:    warehouseID,
			Amount:         amount,
			Reason:         model.ReasonAdjustment,
		})
		return err
	})
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parsing decimal %q: %v", s, err)
	}
	return d
}
