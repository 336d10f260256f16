package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
)

// maxUpload bounds multipart image uploads.
const maxUpload = 8 << 20

// ProductsHandler handles product, price and image endpoints.
type ProductsHandler struct {
	Svc *inventory.Service
}

type createProductRequest struct {
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	WarehouseID     string           `json:"warehouse_id"`
	InitialQuantity int              `json:"initial_quantity"`
	RetailPrice     decimal.Decimal  `json:"retail_price"`
	ActualPrice     *decimal.Decimal `json:"actual_price"`
	MarketPrice     *decimal.Decimal `json:"market_price"`
}

// productChanges is the JSON form of inventory.ProductChanges. Absent fields
// are unchanged; the clear flags remove an optional price.
type productChanges struct {
	SKU              *string          `json:"sku"`
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	RetailPrice      *decimal.Decimal `json:"retail_price"`
	ActualPrice      *decimal.Decimal `json:"actual_price"`
	MarketPrice      *decimal.Decimal `json:"market_price"`
	ClearActualPrice bool             `json:"clear_actual_price"`
	ClearMarketPrice bool             `json:"clear_market_price"`
}

func (c productChanges) toChanges() inventory.ProductChanges {
	out := inventory.ProductChanges{
		SKU:         c.SKU,
		Name:        c.Name,
		Description: c.Description,
		Retail:      c.RetailPrice,
		Actual:      optionalPrice(c.ActualPrice, c.ClearActualPrice),
		Market:      optionalPrice(c.MarketPrice, c.ClearMarketPrice),
	}
	return out
}

func optionalPrice(v *decimal.Decimal, clear bool) *decimal.NullDecimal {
	switch {
	case clear:
		return &decimal.NullDecimal{}
	case v != nil:
		n := decimal.NewNullDecimal(*v)
		return &n
	}
	return nil
}

func nullPrice(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}

type bulkItemRequest struct {
	ProductID string  `json:"product_id"`
	Status    *string `json:"status"`
	productChanges
}

type statusRequest struct {
	Status string `json:"status"`
}

type setPriceRequest struct {
	RetailPrice   decimal.Decimal  `json:"retail_price"`
	ActualPrice   *decimal.Decimal `json:"actual_price"`
	MarketPrice   *decimal.Decimal `json:"market_price"`
	EffectiveFrom *time.Time       `json:"effective_from"`
}

// List handles GET /api/orgs/{org}/products?status=.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.Svc.ListProducts(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if products == nil {
		products = []model.ProductSummary{}
	}
	jsonResponse(w, http.StatusOK, products)
}

// Create handles POST /api/orgs/{org}/products.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.CreateProduct(r.Context(), PrincipalFrom(r.Context()), inventory.CreateProductInput{
		OrgID:           r.PathValue("org"),
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		WarehouseID:     req.WarehouseID,
		InitialQuantity: req.InitialQuantity,
		Retail:          req.RetailPrice,
		Actual:          nullPrice(req.ActualPrice),
		Market:          nullPrice(req.MarketPrice),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Get handles GET /api/orgs/{org}/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Svc.GetProductDetail(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// Update handles PUT /api/orgs/{org}/products/{id}.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req productChanges
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.UpdateProduct(r.Context(), PrincipalFrom(r.Context()), inventory.UpdateProductInput{
		OrgID:          r.PathValue("org"),
		ProductID:      r.PathValue("id"),
		ProductChanges: req.toChanges(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Bulk handles PATCH /api/orgs/{org}/products.
func (h *ProductsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req []bulkItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]inventory.BulkItem, 0, len(req))
	for _, item := range req {
		items = append(items, inventory.BulkItem{
			ProductID:      item.ProductID,
			Status:         item.Status,
			ProductChanges: item.toChanges(),
		})
	}

	res, err := h.Svc.BulkUpdate(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Delete handles DELETE /api/orgs/{org}/products/{id}.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.DeleteProduct(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// SetStatus handles PUT /api/orgs/{org}/products/{id}/status.
func (h *ProductsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.SetProductStatus(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// UploadImage handles PUT /api/orgs/{org}/products/{id}/image with a
// multipart "image" field.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	res, err := h.Svc.SetProductImage(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// GetImage handles GET /api/orgs/{org}/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := h.Svc.GetProductImage(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// CurrentPrice handles GET /api/orgs/{org}/products/{id}/price.
func (h *ProductsHandler) CurrentPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.Svc.CurrentPrice(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, price)
}

// PriceHistory handles GET /api/orgs/{org}/products/{id}/prices.
func (h *ProductsHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	prices, err := h.Svc.PriceHistory(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if prices == nil {
		prices = []model.PriceEntry{}
	}
	jsonResponse(w, http.StatusOK, prices)
}

// SetPrice handles POST /api/orgs/{org}/products/{id}/prices.
func (h *ProductsHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := inventory.SetPriceInput{
		OrgID:     r.PathValue("org"),
		ProductID: r.PathValue("id"),
		Retail:    req.RetailPrice,
		Actual:    nullPrice(req.ActualPrice),
		Market:    nullPrice(req.MarketPrice),
	}
	if req.EffectiveFrom != nil {
		if req.EffectiveFrom.IsZero() {
			writeError(w, r, apperr.E(apperr.Validation, "effective_from must be a time"))
			return
		}
		in.EffectiveFrom = req.EffectiveFrom.UTC()
	}

	res, err := h.Svc.SetPrice(r.Context(), PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}
