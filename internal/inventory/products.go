package inventory

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/imaging"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// CreateProductInput describes a new product with its opening stock and
// price.
type CreateProductInput struct {
	OrgID       string
	SKU         string
	Name        string
	Description string
	ImageRef    string
	// WarehouseID receives the initial quantity. Empty means the default
	// warehouse.
	WarehouseID     string
	InitialQuantity int
	Retail          decimal.Decimal
	Actual          decimal.NullDecimal
	Market          decimal.NullDecimal
}

// CreateProduct creates an active product, its stock row and its first open
// price in one unit of work.
func (s *Service) CreateProduct(ctx context.Context, p model.Principal, in CreateProductInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "CreateProduct", orgAttr(in.OrgID), attribute.String("product.sku", in.SKU))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID); err != nil {
		return res, err
	}
	if in.WarehouseID != "" {
		if err := validateIDs(in.WarehouseID); err != nil {
			return res, err
		}
	}
	sku, name := strings.TrimSpace(in.SKU), strings.TrimSpace(in.Name)
	if sku == "" || name == "" {
		return res, apperr.E(apperr.Validation, "sku and name are required")
	}
	if in.InitialQuantity < 0 {
		return res, apperr.E(apperr.Validation, "initial quantity must not be negative")
	}
	if err := validatePrices(in.Retail, in.Actual, in.Market); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermProductWrite); err != nil {
		return res, err
	}

	prod := &model.Product{
		OrganizationID: in.OrgID,
		SKU:            sku,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		ImageRef:       in.ImageRef,
		Status:         model.ProductStatusActive,
		CreatedBy:      actor(p),
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		w, err := targetWarehouse(ctx, tx, in.OrgID, in.WarehouseID)
		if err != nil {
			return err
		}

		taken, err := store.SKUTaken(ctx, tx, in.OrgID, sku, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.E(apperr.DuplicateSKU, "sku %q already exists in this organization", sku)
		}

		if err := store.CreateProduct(ctx, tx, prod); err != nil {
			return err
		}

		if in.InitialQuantity > 0 {
			if _, err := store.ApplyDelta(ctx, tx, store.Delta{
				OrganizationID: in.OrgID,
				ProductID:      prod.ID,
				WarehouseID:    w.ID,
				Amount:         in.InitialQuantity,
				Reason:         model.ReasonInitial,
				ActorID:        actor(p),
			}); err != nil {
				return err
			}
		} else if err := store.EnsureStockRow(ctx, tx, prod.ID, w.ID); err != nil {
			return err
		}

		return setPrice(ctx, tx, &model.PriceEntry{
			ProductID:   prod.ID,
			RetailPrice: in.Retail,
			ActualPrice: in.Actual,
			MarketPrice: in.Market,
			ValidFrom:   s.now(),
		})
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, cache.Target{Resource: cache.ProductList}, cache.Target{Resource: cache.WarehouseList})
	s.log.Info("product created",
		zap.String("organization_id", in.OrgID),
		zap.String("product_id", prod.ID),
		zap.String("sku", sku),
	)

	return model.Result{Success: true, ResourceID: prod.ID, Message: fmt.Sprintf("product %q created", sku)}, nil
}

// targetWarehouse returns the named warehouse or the organization's default.
func targetWarehouse(ctx context.Context, q store.Queryer, orgID, warehouseID string) (*model.Warehouse, error) {
	if warehouseID != "" {
		w, err := store.GetWarehouse(ctx, q, orgID, warehouseID)
		if err != nil {
			return nil, err
		}
		if w == nil {
			return nil, apperr.E(apperr.NotFound, "warehouse %s not found", warehouseID)
		}
		return w, nil
	}

	w, err := store.GetDefaultWarehouse(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, apperr.E(apperr.DataIntegrity, "organization %s has no default warehouse", orgID)
	}
	return w, nil
}

// ProductChanges lists the fields of a product update. Nil fields are left
// unchanged. A non-nil Actual or Market with Valid false clears that price.
type ProductChanges struct {
	SKU         *string
	Name        *string
	Description *string
	ImageRef    *string
	Retail      *decimal.Decimal
	Actual      *decimal.NullDecimal
	Market      *decimal.NullDecimal
}

func (c ProductChanges) touchesPrice() bool {
	return c.Retail != nil || c.Actual != nil || c.Market != nil
}

func (c ProductChanges) validate() error {
	if c.SKU != nil && strings.TrimSpace(*c.SKU) == "" {
		return apperr.E(apperr.Validation, "sku must not be empty")
	}
	if c.Name != nil && strings.TrimSpace(*c.Name) == "" {
		return apperr.E(apperr.Validation, "name must not be empty")
	}
	if c.Retail != nil && c.Retail.IsNegative() {
		return apperr.E(apperr.Validation, "retail price must not be negative")
	}
	if c.Actual != nil && c.Actual.Valid && c.Actual.Decimal.IsNegative() {
		return apperr.E(apperr.Validation, "actual price must not be negative")
	}
	if c.Market != nil && c.Market.Valid && c.Market.Decimal.IsNegative() {
		return apperr.E(apperr.Validation, "market price must not be negative")
	}
	return nil
}

// UpdateProductInput changes a product's descriptive fields and, when price
// fields differ from the open price, appends a new price version.
type UpdateProductInput struct {
	OrgID     string
	ProductID string
	ProductChanges
}

// UpdateProduct applies the changes in one unit of work. Status is never
// changed here.
func (s *Service) UpdateProduct(ctx context.Context, p model.Principal, in UpdateProductInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "UpdateProduct", orgAttr(in.OrgID), productAttr(in.ProductID))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID, in.ProductID); err != nil {
		return res, err
	}
	if err := in.validate(); err != nil {
		return res, err
	}
	perms := []model.Permission{model.PermProductWrite}
	if in.touchesPrice() {
		perms = append(perms, model.PermPriceWrite)
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, perms...); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return s.applyChanges(ctx, tx, p, in.OrgID, in.ProductID, in.ProductChanges)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, productTargets(in.ProductID)...)

	return model.Result{Success: true, ResourceID: in.ProductID, Message: "product updated"}, nil
}

// applyChanges updates one product inside tx.
func (s *Service) applyChanges(ctx context.Context, tx *sqlx.Tx, p model.Principal, orgID, productID string, c ProductChanges) error {
	prod, err := loadProduct(ctx, tx, orgID, productID)
	if err != nil {
		return err
	}

	if c.SKU != nil {
		sku := strings.TrimSpace(*c.SKU)
		if sku != prod.SKU {
			taken, err := store.SKUTaken(ctx, tx, orgID, sku, productID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.E(apperr.DuplicateSKU, "sku %q already exists in this organization", sku)
			}
			prod.SKU = sku
		}
	}
	if c.Name != nil {
		prod.Name = strings.TrimSpace(*c.Name)
	}
	if c.Description != nil {
		prod.Description = strings.TrimSpace(*c.Description)
	}
	if c.ImageRef != nil {
		prod.ImageRef = *c.ImageRef
	}
	prod.UpdatedBy = actor(p)

	if err := store.UpdateProduct(ctx, tx, prod); err != nil {
		return err
	}

	if !c.touchesPrice() {
		return nil
	}
	return s.applyPriceChanges(ctx, tx, productID, c)
}

// applyPriceChanges appends a price version when the merged price differs
// from the open one.
func (s *Service) applyPriceChanges(ctx context.Context, tx *sqlx.Tx, productID string, c ProductChanges) error {
	open, err := store.GetOpenPrice(ctx, tx, productID)
	if err != nil {
		return err
	}

	next := model.PriceEntry{ProductID: productID, ValidFrom: s.now()}
	if open != nil {
		next.RetailPrice, next.ActualPrice, next.MarketPrice = open.RetailPrice, open.ActualPrice, open.MarketPrice
	} else if c.Retail == nil {
		return apperr.E(apperr.Validation, "product %s has no price; a retail price is required", productID)
	}
	if c.Retail != nil {
		next.RetailPrice = *c.Retail
	}
	if c.Actual != nil {
		next.ActualPrice = *c.Actual
	}
	if c.Market != nil {
		next.MarketPrice = *c.Market
	}

	if open != nil && samePrice(*open, next) {
		return nil
	}
	return setPrice(ctx, tx, &next)
}

func samePrice(a, b model.PriceEntry) bool {
	return a.RetailPrice.Equal(b.RetailPrice) &&
		sameNull(a.ActualPrice, b.ActualPrice) &&
		sameNull(a.MarketPrice, b.MarketPrice)
}

func sameNull(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// SetProductStatus moves a product to status. It has no ledger side effects
// and is allowed regardless of order references.
func (s *Service) SetProductStatus(ctx context.Context, p model.Principal, orgID, productID, status string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "SetProductStatus", orgAttr(orgID), productAttr(productID), attribute.String("product.status", status))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return res, err
	}
	if !model.ValidProductStatus(status) {
		return res, apperr.E(apperr.Validation, "unknown product status %q", status)
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductWrite); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireProduct(ctx, tx, orgID, productID); err != nil {
			return err
		}
		return store.SetProductStatus(ctx, tx, orgID, productID, status, actor(p))
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, orgID, productTargets(productID)...)

	return model.Result{Success: true, ResourceID: productID, Message: "product is now " + status}, nil
}

// ActivateProduct sets a product's status to active.
func (s *Service) ActivateProduct(ctx context.Context, p model.Principal, orgID, productID string) (model.Result, error) {
	return s.SetProductStatus(ctx, p, orgID, productID, model.ProductStatusActive)
}

// DeactivateProduct sets a product's status to inactive.
func (s *Service) DeactivateProduct(ctx context.Context, p model.Principal, orgID, productID string) (model.Result, error) {
	return s.SetProductStatus(ctx, p, orgID, productID, model.ProductStatusInactive)
}

// DeleteProduct hard-deletes a product with its stock, prices and image. A
// product referenced by any order line is refused; deactivate it instead.
func (s *Service) DeleteProduct(ctx context.Context, p model.Principal, orgID, productID string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "DeleteProduct", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductDelete); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		prod, err := loadProduct(ctx, tx, orgID, productID)
		if err != nil {
			return err
		}

		orders, err := store.OrdersReferencingProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if len(orders) > 0 {
			return apperr.E(apperr.ProductReferenced,
				"product %q is referenced by %d order(s): %s; deactivate it instead",
				prod.SKU, len(orders), summarize(orders, 5))
		}

		return store.DeleteProduct(ctx, tx, orgID, productID)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, orgID, append(productTargets(productID), cache.Target{Resource: cache.WarehouseList})...)
	s.log.Info("product deleted", zap.String("organization_id", orgID), zap.String("product_id", productID))

	return model.Result{Success: true, ResourceID: productID, Message: "product deleted"}, nil
}

// ImageRef is the path a product image is served from.
func ImageRef(orgID, productID string) string {
	return fmt.Sprintf("/api/orgs/%s/products/%s/image", orgID, productID)
}

// SetProductImage normalises an uploaded image, stores it and points the
// product's image reference at it.
func (s *Service) SetProductImage(ctx context.Context, p model.Principal, orgID, productID string, r io.Reader) (res model.Result, err error) {
	ctx, span := s.start(ctx, "SetProductImage", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductWrite); err != nil {
		return res, err
	}

	img, err := imaging.Normalize(r, s.opts.Images)
	if err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		prod, err := loadProduct(ctx, tx, orgID, productID)
		if err != nil {
			return err
		}
		if err := store.SetProductImage(ctx, tx, productID, img.Data, img.MIME); err != nil {
			return err
		}
		prod.ImageRef = ImageRef(orgID, productID)
		prod.UpdatedBy = actor(p)
		return store.UpdateProduct(ctx, tx, prod)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, orgID, productTargets(productID)...)

	return model.Result{
		Success:    true,
		ResourceID: productID,
		Message:    fmt.Sprintf("image stored (%dx%d)", img.Width, img.Height),
	}, nil
}

// GetProductImage returns the stored image of a product.
func (s *Service) GetProductImage(ctx context.Context, p model.Principal, orgID, productID string) (_ []byte, _ string, err error) {
	ctx, span := s.start(ctx, "GetProductImage", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return nil, "", err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, "", err
	}
	if err := requireProduct(ctx, s.db, orgID, productID); err != nil {
		return nil, "", err
	}

	data, mime, err := store.GetProductImage(ctx, s.db, productID)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", apperr.E(apperr.NotFound, "product %s has no image", productID)
	}
	return data, mime, nil
}

// BulkItem is one product update of a batch. Status, when set, is applied
// as a plain status transition.
type BulkItem struct {
	ProductID string
	Status    *string
	ProductChanges
}

// BulkUpdate applies every item in one unit of work. The first failing item
// aborts the whole batch and is named in the error. Invalidation runs once
// for the batch.
func (s *Service) BulkUpdate(ctx context.Context, p model.Principal, orgID string, items []BulkItem) (res model.Result, err error) {
	ctx, span := s.start(ctx, "BulkUpdate", orgAttr(orgID), attribute.Int("items", len(items)))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return res, err
	}
	if len(items) == 0 {
		return res, apperr.E(apperr.Validation, "no items to update")
	}

	perms := []model.Permission{model.PermProductWrite}
	for i, item := range items {
		if err := validateIDs(item.ProductID); err != nil {
			return res, itemError(i, item.ProductID, err)
		}
		if err := item.validate(); err != nil {
			return res, itemError(i, item.ProductID, err)
		}
		if item.Status != nil && !model.ValidProductStatus(*item.Status) {
			return res, itemError(i, item.ProductID, apperr.E(apperr.Validation, "unknown product status %q", *item.Status))
		}
		if item.touchesPrice() && len(perms) == 1 {
			perms = append(perms, model.PermPriceWrite)
		}
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, perms...); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		for i, item := range items {
			if err := s.applyChanges(ctx, tx, p, orgID, item.ProductID, item.ProductChanges); err != nil {
				return itemError(i, item.ProductID, err)
			}
			if item.Status != nil {
				if err := store.SetProductStatus(ctx, tx, orgID, item.ProductID, *item.Status, actor(p)); err != nil {
					return itemError(i, item.ProductID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	s.invalidate(ctx, orgID, productTargets(ids...)...)
	s.log.Info("bulk update applied", zap.String("organization_id", orgID), zap.Int("items", len(items)))

	return model.Result{Success: true, Message: fmt.Sprintf("updated %d products", len(items))}, nil
}

// itemError names the failing batch item and keeps the error's kind.
func itemError(i int, productID string, err error) error {
	if kind := apperr.KindOf(err); kind != apperr.Internal {
		return apperr.Wrap(kind, err, "item %d (%s)", i, productID)
	}
	return fmt.Errorf("item %d (%s): %w", i, productID, err)
}

// ListProducts returns the product-list view, optionally filtered by status.
func (s *Service) ListProducts(ctx context.Context, p model.Principal, orgID, status string) (_ []model.ProductSummary, err error) {
	ctx, span := s.start(ctx, "ListProducts", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if status != "" && !model.ValidProductStatus(status) {
		return nil, apperr.E(apperr.Validation, "unknown product status %q", status)
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}

	return cache.ReadThrough(ctx, s.cache, cache.ProductList, orgID, status, func(ctx context.Context) ([]model.ProductSummary, error) {
		return store.ListProductSummaries(ctx, s.db, orgID, status, s.now())
	})
}

// GetProductDetail returns the product-detail view: the product, its stock
// per warehouse, its current price and its most recent order lines.
func (s *Service) GetProductDetail(ctx context.Context, p model.Principal, orgID, productID string) (_ *model.ProductDetail, err error) {
	ctx, span := s.start(ctx, "GetProductDetail", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}

	return cache.ReadThrough(ctx, s.cache, cache.ProductDetail, orgID, productID, func(ctx context.Context) (*model.ProductDetail, error) {
		return s.loadProductDetail(ctx, orgID, productID)
	})
}

func (s *Service) loadProductDetail(ctx context.Context, orgID, productID string) (*model.ProductDetail, error) {
	prod, err := loadProduct(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}

	stock, err := store.ListProductStock(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, st := range stock {
		total += st.Quantity
	}

	price, err := currentPrice(ctx, s.db, productID, s.now())
	switch {
	case apperr.Is(err, apperr.NotFound):
		price = nil
	case err != nil:
		return nil, err
	}

	lines, err := store.RecentOrderLines(ctx, s.db, productID, recentOrderLines)
	if err != nil {
		return nil, err
	}

	return &model.ProductDetail{
		Product:      *prod,
		Stock:        stock,
		TotalStock:   total,
		Price:        price,
		RecentOrders: lines,
	}, nil
}
