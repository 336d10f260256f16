package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// AdjustStockInput changes the quantity of a product in one warehouse.
type AdjustStockInput struct {
	OrgID       string
	ProductID   string
	WarehouseID string
	Delta       int
	Reason      string
	Reference   string
}

// AdjustStock applies a signed delta and appends the matching movement in
// one unit of work. A delta that would take the quantity below zero fails
// with InsufficientStock and changes nothing.
func (s *Service) AdjustStock(ctx context.Context, p model.Principal, in AdjustStockInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "AdjustStock", orgAttr(in.OrgID), productAttr(in.ProductID), attribute.Int("delta", in.Delta))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID, in.ProductID, in.WarehouseID); err != nil {
		return res, err
	}
	if in.Delta == 0 {
		return res, apperr.E(apperr.Validation, "quantity change must not be zero")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = model.ReasonAdjustment
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermStockAdjust); err != nil {
		return res, err
	}

	var movement *model.StockMovement
	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireProduct(ctx, tx, in.OrgID, in.ProductID); err != nil {
			return err
		}
		if err := requireWarehouse(ctx, tx, in.OrgID, in.WarehouseID); err != nil {
			return err
		}
		m, err := store.ApplyDelta(ctx, tx, store.Delta{
			OrganizationID: in.OrgID,
			ProductID:      in.ProductID,
			WarehouseID:    in.WarehouseID,
			Amount:         in.Delta,
			Reason:         reason,
			Reference:      in.Reference,
			ActorID:        actor(p),
		})
		movement = m
		return err
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, append(productTargets(in.ProductID), cache.Target{Resource: cache.WarehouseList})...)
	s.log.Info("stock adjusted",
		zap.String("organization_id", in.OrgID),
		zap.String("product_id", in.ProductID),
		zap.String("warehouse_id", in.WarehouseID),
		zap.Int("delta", in.Delta),
	)

	return model.Result{
		Success:    true,
		ResourceID: movement.ID,
		Message:    fmt.Sprintf("stock adjusted by %+d", in.Delta),
	}, nil
}

// TransferStockInput moves a quantity of a product between two warehouses of
// the same organization.
type TransferStockInput struct {
	OrgID           string
	ProductID       string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        int
	Reference       string
}

// TransferStock debits the source and credits the destination in one unit
// of work, writing exactly two movements. Legs are applied in ascending
// warehouse ID order.
func (s *Service) TransferStock(ctx context.Context, p model.Principal, in TransferStockInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "TransferStock", orgAttr(in.OrgID), productAttr(in.ProductID), attribute.Int("quantity", in.Quantity))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID, in.ProductID, in.FromWarehouseID, in.ToWarehouseID); err != nil {
		return res, err
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return res, apperr.E(apperr.Validation, "cannot transfer to the same warehouse")
	}
	if in.Quantity <= 0 {
		return res, apperr.E(apperr.Validation, "quantity must be positive")
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermStockTransfer); err != nil {
		return res, err
	}

	reference := in.Reference
	if reference == "" {
		reference = store.NewID()
	}

	legs := []store.Delta{
		{WarehouseID: in.FromWarehouseID, Amount: -in.Quantity, Reason: model.ReasonTransferOut},
		{WarehouseID: in.ToWarehouseID, Amount: in.Quantity, Reason: model.ReasonTransferIn},
	}
	if legs[1].WarehouseID < legs[0].WarehouseID {
		legs[0], legs[1] = legs[1], legs[0]
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireProduct(ctx, tx, in.OrgID, in.ProductID); err != nil {
			return err
		}
		for _, leg := range legs {
			if err := requireWarehouse(ctx, tx, in.OrgID, leg.WarehouseID); err != nil {
				return err
			}
		}
		for _, leg := range legs {
			leg.OrganizationID = in.OrgID
			leg.ProductID = in.ProductID
			leg.Reference = reference
			leg.ActorID = actor(p)
			if _, err := store.ApplyDelta(ctx, tx, leg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, append(productTargets(in.ProductID), cache.Target{Resource: cache.WarehouseList})...)
	s.log.Info("stock transferred",
		zap.String("organization_id", in.OrgID),
		zap.String("product_id", in.ProductID),
		zap.String("from", in.FromWarehouseID),
		zap.String("to", in.ToWarehouseID),
		zap.Int("quantity", in.Quantity),
	)

	return model.Result{
		Success:    true,
		ResourceID: reference,
		Message:    fmt.Sprintf("transferred %d units", in.Quantity),
	}, nil
}

// MovementFilter narrows ListMovements.
type MovementFilter = store.MovementFilter

// ListMovements returns the audit ledger of an organization, newest first.
func (s *Service) ListMovements(ctx context.Context, p model.Principal, orgID string, f MovementFilter) (_ []model.StockMovement, err error) {
	ctx, span := s.start(ctx, "ListMovements", orgAttr(orgID))
	defer func() { end(span, err) }()

	ids := []string{orgID}
	if f.ProductID != "" {
		ids = append(ids, f.ProductID)
	}
	if f.WarehouseID != "" {
		ids = append(ids, f.WarehouseID)
	}
	if err := validateIDs(ids...); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}

	return store.ListMovements(ctx, s.db, orgID, f)
}

// Reconcile compares every stock row of the organization with the signed
// sum of its movements. An empty result means the ledger is consistent.
func (s *Service) Reconcile(ctx context.Context, p model.Principal, orgID string) (_ []model.StockMismatch, err error) {
	ctx, span := s.start(ctx, "Reconcile", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermStockAdjust); err != nil {
		return nil, err
	}

	mismatches, err := store.ReconcileStock(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if len(mismatches) > 0 {
		s.log.Error("stock ledger mismatch",
			zap.String("organization_id", orgID),
			zap.Int("pairs", len(mismatches)),
		)
	}
	return mismatches, nil
}

func requireProduct(ctx context.Context, q store.Queryer, orgID, productID string) error {
	_, err := loadProduct(ctx, q, orgID, productID)
	return err
}

func loadProduct(ctx context.Context, q store.Queryer, orgID, productID string) (*model.Product, error) {
	prod, err := store.GetProduct(ctx, q, orgID, productID)
	if err != nil {
		return nil, err
	}
	if prod == nil {
		return nil, apperr.E(apperr.NotFound, "product %s not found", productID)
	}
	return prod, nil
}

func requireWarehouse(ctx context.Context, q store.Queryer, orgID, warehouseID string) error {
	w, err := store.GetWarehouse(ctx, q, orgID, warehouseID)
	if err != nil {
		return err
	}
	if w == nil {
		return apperr.E(apperr.NotFound, "warehouse %s not found", warehouseID)
	}
	return nil
}

func actor(p model.Principal) *string {
	if p.UserID == "" {
		return nil
	}
	id := p.UserID
	return &id
}
