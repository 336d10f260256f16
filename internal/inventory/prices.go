package inventory

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// SetPriceInput opens a new price version for a product.
type SetPriceInput struct {
	OrgID     string
	ProductID string
	Retail    decimal.Decimal
	Actual    decimal.NullDecimal
	Market    decimal.NullDecimal
	// EffectiveFrom defaults to now.
	EffectiveFrom time.Time
}

func validatePrices(retail decimal.Decimal, actual, market decimal.NullDecimal) error {
	if retail.IsNegative() {
		return apperr.E(apperr.Validation, "retail price must not be negative")
	}
	if actual.Valid && actual.Decimal.IsNegative() {
		return apperr.E(apperr.Validation, "actual price must not be negative")
	}
	if market.Valid && market.Decimal.IsNegative() {
		return apperr.E(apperr.Validation, "market price must not be negative")
	}
	return nil
}

// SetPrice closes the open price row at EffectiveFrom and opens a new one in
// the same unit of work. A future EffectiveFrom schedules the version; reads
// and orders keep using the version in effect until then.
func (s *Service) SetPrice(ctx context.Context, p model.Principal, in SetPriceInput) (res model.Result, err error) {
	ctx, span := s.start(ctx, "SetPrice", orgAttr(in.OrgID), productAttr(in.ProductID))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID, in.ProductID); err != nil {
		return res, err
	}
	if err := validatePrices(in.Retail, in.Actual, in.Market); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermPriceWrite); err != nil {
		return res, err
	}

	from := in.EffectiveFrom
	if from.IsZero() {
		from = s.now()
	}
	entry := &model.PriceEntry{
		ProductID:   in.ProductID,
		RetailPrice: in.Retail,
		ActualPrice: in.Actual,
		MarketPrice: in.Market,
		ValidFrom:   from,
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireProduct(ctx, tx, in.OrgID, in.ProductID); err != nil {
			return err
		}
		return setPrice(ctx, tx, entry)
	})
	if err != nil {
		return res, err
	}

	s.invalidate(ctx, in.OrgID, productTargets(in.ProductID)...)
	s.log.Info("price set",
		zap.String("organization_id", in.OrgID),
		zap.String("product_id", in.ProductID),
		zap.String("retail", in.Retail.String()),
	)

	return model.Result{Success: true, ResourceID: entry.ID, Message: "price set to " + in.Retail.StringFixed(2)}, nil
}

// setPrice closes the open row, if any, at entry.ValidFrom and inserts entry
// as the new open row. A version may not start before the one it replaces.
func setPrice(ctx context.Context, tx *sqlx.Tx, entry *model.PriceEntry) error {
	open, err := store.GetOpenPrice(ctx, tx, entry.ProductID)
	if err != nil {
		return err
	}
	if open != nil {
		if entry.ValidFrom.Before(open.ValidFrom) {
			return apperr.E(apperr.Validation, "price cannot take effect before the latest version (%s)",
				open.ValidFrom.Format(time.RFC3339))
		}
		if _, err := store.ClosePrice(ctx, tx, entry.ProductID, entry.ValidFrom); err != nil {
			return err
		}
	}
	return store.InsertPrice(ctx, tx, entry)
}

// currentPrice returns the price version of a product in effect at the
// given time. Versions scheduled for later are ignored. A product with
// versions but none in effect is a data integrity failure; one with none is
// NotFound.
func currentPrice(ctx context.Context, q store.Queryer, productID string, at time.Time) (*model.PriceEntry, error) {
	entry, err := store.GetEffectivePrice(ctx, q, productID, at)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	open, err := store.GetOpenPrice(ctx, q, productID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperr.E(apperr.DataIntegrity,
			"product %s has no price in effect at %s; next version %s starts at %s",
			productID, at.Format(time.RFC3339), open.ID, open.ValidFrom.Format(time.RFC3339))
	}

	closed, err := store.GetLatestClosedPrice(ctx, q, productID)
	if err != nil {
		return nil, err
	}
	if closed != nil {
		return nil, apperr.E(apperr.DataIntegrity,
			"product %s has no open price; latest version %s closed at %s",
			productID, closed.ID, closed.ValidTo.Format(time.RFC3339))
	}
	return nil, apperr.E(apperr.NotFound, "product %s has no price", productID)
}

// CurrentPrice returns the price version in effect for a product.
func (s *Service) CurrentPrice(ctx context.Context, p model.Principal, orgID, productID string) (_ *model.PriceEntry, err error) {
	ctx, span := s.start(ctx, "CurrentPrice", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}
	if err := requireProduct(ctx, s.db, orgID, productID); err != nil {
		return nil, err
	}

	entry, err := currentPrice(ctx, s.db, productID, s.now())
	if apperr.Is(err, apperr.DataIntegrity) {
		s.log.Error("price history integrity", zap.String("product_id", productID), zap.Error(err))
	}
	return entry, err
}

// PriceHistory returns every price version of a product, newest first.
func (s *Service) PriceHistory(ctx context.Context, p model.Principal, orgID, productID string) (_ []model.PriceEntry, err error) {
	ctx, span := s.start(ctx, "PriceHistory", orgAttr(orgID), productAttr(productID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID, productID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermProductRead); err != nil {
		return nil, err
	}
	if err := requireProduct(ctx, s.db, orgID, productID); err != nil {
		return nil, err
	}

	return store.ListPrices(ctx, s.db, productID)
}
