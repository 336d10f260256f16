package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/model"
)

func TestDeleteLastWarehouse(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.DeleteWarehouse(context.Background(), e.admin, e.orgID, e.warehouse)
	requireKind(t, err, apperr.LastWarehouse)
}

func TestDeleteDefaultWarehouse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.warehouseNamed(t, "Annex")

	_, err := e.svc.DeleteWarehouse(ctx, e.admin, e.orgID, e.warehouse)
	requireKind(t, err, apperr.DefaultWarehouseProtected)

	_, err = e.svc.SetDefaultWarehouse(ctx, e.admin, e.orgID, other)
	require.NoError(t, err)

	_, err = e.svc.DeleteWarehouse(ctx, e.admin, e.orgID, e.warehouse)
	require.NoError(t, err)

	warehouses, err := e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, warehouses, 1)
	assert.Equal(t, other, warehouses[0].ID)
	assert.True(t, warehouses[0].IsDefault)
}

func TestDeleteWarehouseWithStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.warehouseNamed(t, "Annex")
	pid := e.product(t, "WH-1", 0, "1.00")

	_, err := e.svc.AdjustStock(ctx, e.admin, AdjustStockInput{OrgID: e.orgID, ProductID: pid, WarehouseID: other, Delta: 2})
	require.NoError(t, err)

	_, err = e.svc.DeleteWarehouse(ctx, e.admin, e.orgID, other)
	requireKind(t, err, apperr.WarehouseHasStock)
	assert.Contains(t, err.Error(), "WH-1")

	_, err = e.svc.AdjustStock(ctx, e.admin, AdjustStockInput{OrgID: e.orgID, ProductID: pid, WarehouseID: other, Delta: -2})
	require.NoError(t, err)

	_, err = e.svc.DeleteWarehouse(ctx, e.admin, e.orgID, other)
	require.NoError(t, err)

	// The ledger still balances for the remaining stock rows.
	e.requireReconciled(t)
}

func TestCreateWarehouseAsDefault(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.CreateWarehouse(ctx, e.admin, CreateWarehouseInput{OrgID: e.orgID, Name: "New HQ", MakeDefault: true})
	require.NoError(t, err)

	warehouses, err := e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, warehouses, 2)
	defaults := 0
	for _, w := range warehouses {
		if w.IsDefault {
			defaults++
			assert.Equal(t, res.ResourceID, w.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	_, err = e.svc.CreateWarehouse(ctx, e.admin, CreateWarehouseInput{OrgID: e.orgID})
	requireKind(t, err, apperr.Validation)
}

func TestWarehouseListTotals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.product(t, "WL-1", 4, "1.00")
	e.product(t, "WL-2", 6, "1.00")

	warehouses, err := e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, warehouses, 1)
	assert.Equal(t, 2, warehouses[0].ProductCount)
	assert.Equal(t, 10, warehouses[0].TotalUnits)

	pid := e.product(t, "WL-3", 1, "1.00")
	warehouses, err = e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	assert.Equal(t, 11, warehouses[0].TotalUnits)

	_, err = e.svc.DeleteProduct(ctx, e.admin, e.orgID, pid)
	require.NoError(t, err)
	warehouses, err = e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	assert.Equal(t, 10, warehouses[0].TotalUnits)
}

func TestUpdateWarehouse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	employee := e.member(t, "employee", model.RoleEmployee)

	_, err := e.svc.UpdateWarehouse(ctx, employee, UpdateWarehouseInput{OrgID: e.orgID, WarehouseID: e.warehouse, Name: "Nope"})
	requireKind(t, err, apperr.Forbidden)

	_, err = e.svc.UpdateWarehouse(ctx, e.admin, UpdateWarehouseInput{OrgID: e.orgID, WarehouseID: e.warehouse, Name: "Central", Address: "Main St 1"})
	require.NoError(t, err)

	warehouses, err := e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	assert.Equal(t, "Central", warehouses[0].Name)
	assert.Equal(t, "Main St 1", warehouses[0].Address)
}
