package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// OrderItemInput is one line of an order. An empty WarehouseID ships from
// the default warehouse.
type OrderItemInput struct {
	ProductID   string
	WarehouseID string
	Quantity    int
}

// PlaceOrderInput describes an order to place.
type PlaceOrderInput struct {
	OrgID     string
	Reference string
	Items     []OrderItemInput
}

// PlaceOrder records an order, snapshots each line's selling price and
// consumes its stock. Any failing line aborts the whole order.
func (s *Service) PlaceOrder(ctx context.Context, p model.Principal, in PlaceOrderInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "PlaceOrder", orgAttr(in.OrgID), attribute.Int("items", len(in.Items)))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID); err != nil {
		return res, err
	}
	if len(in.Items) == 0 {
		return res, apperr.E(apperr.Validation, "an order needs at least one item")
	}
	for i, item := range in.Items {
		ids := []string{item.ProductID}
		if item.WarehouseID != "" {
			ids = append(ids, item.WarehouseID)
		}
		if err := validateIDs(ids...); err != nil {
			return res, itemError(i, item.ProductID, err)
		}
		if item.Quantity <= 0 {
			return res, itemError(i, item.ProductID, apperr.E(apperr.Validation, "quantity must be positive"))
		}
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermOrderWrite); err != nil {
		return res, err
	}

	order := &model.Order{
		OrganizationID: in.OrgID,
		Reference:      strings.TrimSpace(in.Reference),
		PlacedBy:       actor(p),
	}
	productIDs := make([]string, 0, len(in.Items))
	placedAt := s.now()

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		for i, item := range in.Items {
			line, err := s.placeLine(ctx, tx, p, order, item, placedAt)
			if err != nil {
				return itemError(i, item.ProductID, err)
			}
			order.Items = append(order.Items, *line)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	targets := []cache.Target{{Resource: cache.OrderList}, {Resource: cache.WarehouseList}}
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
		order.Total = order.Total.Add(item.Subtotal())
	}
	s.invalidate(ctx, in.OrgID, append(targets, productTargets(productIDs...)...)...)
	s.log.Info("order placed",
		zap.String("organization_id", in.OrgID),
		zap.String("order_id", order.ID),
		zap.Int("items", len(order.Items)),
	)

	return model.Result{
		Success:    true,
		ResourceID: order.ID,
		Message:    fmt.Sprintf("order placed, total %s", order.Total.StringFixed(2)),
	}, nil
}

// placeLine consumes one line's stock and snapshots the price in effect at
// placedAt.
func (s *Service) placeLine(ctx context.Context, tx *sqlx.Tx, p model.Principal, order *model.Order, item OrderItemInput, placedAt time.Time) (*model.OrderItem, error) {
	prod, err := loadProduct(ctx, tx, order.OrganizationID, item.ProductID)
	if err != nil {
		return nil, err
	}
	if prod.Status != model.ProductStatusActive {
		return nil, apperr.E(apperr.Validation, "product %q is %s and cannot be ordered", prod.SKU, prod.Status)
	}

	w, err := targetWarehouse(ctx, tx, order.OrganizationID, item.WarehouseID)
	if err != nil {
		return nil, err
	}

	price, err := currentPrice(ctx, tx, prod.ID, placedAt)
	if err != nil {
		return nil, err
	}

	if _, err := store.ApplyDelta(ctx, tx, store.Delta{
		OrganizationID: order.OrganizationID,
		ProductID:      prod.ID,
		WarehouseID:    w.ID,
		Amount:         -item.Quantity,
		Reason:         model.ReasonOrder,
		Reference:      order.ID,
		ActorID:        actor(p),
	}); err != nil {
		return nil, err
	}

	line := &model.OrderItem{
		OrderID:      order.ID,
		ProductID:    prod.ID,
		WarehouseID:  w.ID,
		Quantity:     item.Quantity,
		PriceAtOrder: price.SellingPrice(),
	}
	if err := store.InsertOrderItem(ctx, tx, line); err != nil {
		return nil, err
	}
	return line, nil
}

// ListOrders returns an organization's orders with their lines, newest
// first.
func (s *Service) ListOrders(ctx context.Context, p model.Principal, orgID string) (_ []model.Order, err error) {
	ctx, span := s.start(ctx, "ListOrders", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermOrderRead); err != nil {
		return nil, err
	}

	return cache.ReadThrough(ctx, s.cache, cache.OrderList, orgID, "", func(ctx context.Context) ([]model.Order, error) {
		return store.ListOrders(ctx, s.db, orgID)
	})
}

// GetOrder returns one order with its lines.
func (s *Service) GetOrder(ctx context.Context, p model.Principal, orgID, orderID string) (_ *model.Order, err error) {
	ctx, span := s.start(ctx, "GetOrder", orgAttr(orgID), attribute.String("order.id", orderID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, orderID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermOrderRead); err != nil {
		return nil, err
	}

	o, err := store.GetOrder(ctx, s.db, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.E(apperr.NotFound, "order %s not found", orderID)
	}
	return o, nil
}
