package api

import (
	"net/http"

	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
)

// WarehousesHandler handles warehouse endpoints.
type WarehousesHandler struct {
	Svc *inventory.Service
}

type warehouseRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	MakeDefault bool   `json:"make_default"`
}

// List handles GET /api/orgs/{org}/warehouses.
func (h *WarehousesHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.Svc.ListWarehouses(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if warehouses == nil {
		warehouses = []model.WarehouseSummary{}
	}
	jsonResponse(w, http.StatusOK, warehouses)
}

// Create handles POST /api/orgs/{org}/warehouses.
func (h *WarehousesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.CreateWarehouse(r.Context(), PrincipalFrom(r.Context()), inventory.CreateWarehouseInput{
		OrgID:       r.PathValue("org"),
		Name:        req.Name,
		Address:     req.Address,
		MakeDefault: req.MakeDefault,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Update handles PUT /api/orgs/{org}/warehouses/{id}.
func (h *WarehousesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Svc.UpdateWarehouse(r.Context(), PrincipalFrom(r.Context()), inventory.UpdateWarehouseInput{
		OrgID:       r.PathValue("org"),
		WarehouseID: r.PathValue("id"),
		Name:        req.Name,
		Address:     req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// MakeDefault handles PUT /api/orgs/{org}/warehouses/{id}/default.
func (h *WarehousesHandler) MakeDefault(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.SetDefaultWarehouse(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Delete handles DELETE /api/orgs/{org}/warehouses/{id}.
func (h *WarehousesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.DeleteWarehouse(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
