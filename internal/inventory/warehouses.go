package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// CreateWarehouseInput describes a new warehouse.
type CreateWarehouseInput struct {
	OrgID       string
	Name        string
	Address     string
	MakeDefault bool
}

// CreateWarehouse adds a warehouse, optionally moving the default flag to it.
func (s *Service) CreateWarehouse(ctx context.Context, p model.Principal, in CreateWarehouseInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "CreateWarehouse", orgAttr(in.OrgID))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID); err != nil {
		return res, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return res, apperr.E(apperr.Validation, "warehouse name is required")
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermWarehouseWrite); err != nil {
		return res, err
	}

	var w *model.Warehouse
	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		created, err := store.CreateWarehouse(ctx, tx, in.OrgID, name, strings.TrimSpace(in.Address), false)
		if err != nil {
			return err
		}
		w = created
		if in.MakeDefault {
			return store.SetDefaultWarehouse(ctx, tx, in.OrgID, w.ID)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, cache.Target{Resource: cache.WarehouseList})
	s.log.Info("warehouse created", zap.String("organization_id", in.OrgID), zap.String("warehouse_id", w.ID))

	return model.Result{Success: true, ResourceID: w.ID, Message: fmt.Sprintf("warehouse %q created", name)}, nil
}

// UpdateWarehouseInput renames or re-addresses a warehouse.
type UpdateWarehouseInput struct {
	OrgID       string
	WarehouseID string
	Name        string
	Address     string
}

// UpdateWarehouse changes a warehouse's descriptive fields.
func (s *Service) UpdateWarehouse(ctx context.Context, p model.Principal, in UpdateWarehouseInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "UpdateWarehouse", orgAttr(in.OrgID))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID, in.WarehouseID); err != nil {
		return res, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return res, apperr.E(apperr.Validation, "warehouse name is required")
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermWarehouseWrite); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireWarehouse(ctx, tx, in.OrgID, in.WarehouseID); err != nil {
			return err
		}
		return store.UpdateWarehouse(ctx, tx, in.OrgID, in.WarehouseID, name, strings.TrimSpace(in.Address))
	})
	if err != nil {
		return res, err
	}

	// Warehouse names are embedded in every product detail.
	s.invalidate(ctx, in.OrgID, cache.Target{Resource: cache.WarehouseList}, cache.Target{Resource: cache.ProductDetail})

	return model.Result{Success: true, ResourceID: in.WarehouseID, Message: "warehouse updated"}, nil
}

// SetDefaultWarehouse makes warehouseID the organization's default.
func (s *Service) SetDefaultWarehouse(ctx context.Context, p model.Principal, orgID, warehouseID string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "SetDefaultWarehouse", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, warehouseID); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermWarehouseWrite); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireWarehouse(ctx, tx, orgID, warehouseID); err != nil {
			return err
		}
		return store.SetDefaultWarehouse(ctx, tx, orgID, warehouseID)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, orgID, cache.Target{Resource: cache.WarehouseList}, cache.Target{Resource: cache.ProductDetail})

	return model.Result{Success: true, ResourceID: warehouseID, Message: "default warehouse changed"}, nil
}

// DeleteWarehouse removes a warehouse. The last warehouse, the default
// warehouse and warehouses still holding stock are refused.
func (s *Service) DeleteWarehouse(ctx context.Context, p model.Principal, orgID, warehouseID string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "DeleteWarehouse", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, warehouseID); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermWarehouseDelete); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		w, err := store.GetWarehouse(ctx, tx, orgID, warehouseID)
		if err != nil {
			return err
		}
		if w == nil {
			return apperr.E(apperr.NotFound, "warehouse %s not found", warehouseID)
		}

		n, err := store.CountWarehouses(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return apperr.E(apperr.LastWarehouse, "warehouse %q is the organization's only warehouse", w.Name)
		}
		if w.IsDefault {
			return apperr.E(apperr.DefaultWarehouseProtected,
				"warehouse %q is the default warehouse; make another warehouse the default first", w.Name)
		}

		skus, err := store.StockedProducts(ctx, tx, warehouseID)
		if err != nil {
			return err
		}
		if len(skus) > 0 {
			return apperr.E(apperr.WarehouseHasStock,
				"warehouse %q still holds stock of %d product(s): %s", w.Name, len(skus), summarize(skus, 10))
		}

		return store.DeleteWarehouse(ctx, tx, orgID, warehouseID)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, orgID, cache.Target{Resource: cache.WarehouseList}, cache.Target{Resource: cache.ProductDetail})
	s.log.Info("warehouse deleted", zap.String("organization_id", orgID), zap.String("warehouse_id", warehouseID))

	return model.Result{Success: true, ResourceID: warehouseID, Message: "warehouse deleted"}, nil
}

// ListWarehouses returns the warehouse-list view: every warehouse with the
// number of stocked products and total units.
func (s *Service) ListWarehouses(ctx context.Context, p model.Principal, orgID string) (_ []model.WarehouseSummary, err error) {
	ctx, span := s.start(ctx, "ListWarehouses", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}

	return cache.ReadThrough(ctx, s.cache, cache.WarehouseList, orgID, "", func(ctx context.Context) ([]model.WarehouseSummary, error) {
		return store.ListWarehouseSummaries(ctx, s.db, orgID)
	})
}

// summarize joins up to limit items and counts the rest.
func summarize(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:limit], ", "), len(items)-limit)
}
