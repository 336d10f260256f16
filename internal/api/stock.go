package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
)

// StockHandler handles the stock ledger endpoints.
type StockHandler struct {
	Svc *inventory.Service
}

type adjustRequest struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
	Reference   string `json:"reference"`
}

type transferRequest struct {
	ProductID       string `json:"product_id"`
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	Quantity        int    `json:"quantity"`
	Reference       string `json:"reference"`
}

// Adjust handles POST /api/orgs/{org}/stock/adjust.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.AdjustStock(r.Context(), PrincipalFrom(r.Context()), inventory.AdjustStockInput{
		OrgID:       r.PathValue("org"),
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		Reference:   req.Reference,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Transfer handles POST /api/orgs/{org}/stock/transfer.
func (h *StockHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.TransferStock(r.Context(), PrincipalFrom(r.Context()), inventory.TransferStockInput{
		OrgID:           r.PathValue("org"),
		ProductID:       req.ProductID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		Reference:       req.Reference,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Movements handles GET /api/orgs/{org}/movements with optional
// product_id, warehouse_id, since (RFC 3339) and limit filters.
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := inventory.MovementFilter{
		ProductID:   q.Get("product_id"),
		WarehouseID: q.Get("warehouse_id"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid since")
			return
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = limit
	}

	movements, err := h.Svc.ListMovements(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if movements == nil {
		movements = []model.StockMovement{}
	}
	jsonResponse(w, http.StatusOK, movements)
}

// Reconcile handles GET /api/orgs/{org}/reconcile.
func (h *StockHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.Svc.Reconcile(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mismatches == nil {
		mismatches = []model.StockMismatch{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}
