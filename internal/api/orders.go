package api

import (
	"net/http"

	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
)

// OrdersHandler handles order endpoints.
type OrdersHandler struct {
	Svc *inventory.Service
}

type orderItemRequest struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
}

type createOrderRequest struct {
	Reference string             `json:"reference"`
	Items     []orderItemRequest `json:"items"`
}

// List handles GET /api/orgs/{org}/orders.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Svc.ListOrders(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// Create handles POST /api/orgs/{org}/orders.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := inventory.PlaceOrderInput{OrgID: r.PathValue("org"), Reference: req.Reference}
	for _, item := range req.Items {
		in.Items = append(in.Items, inventory.OrderItemInput{
			ProductID:   item.ProductID,
			WarehouseID: item.WarehouseID,
			Quantity:    item.Quantity,
		})
	}

	res, err := h.Svc.PlaceOrder(r.Context(), PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Get handles GET /api/orgs/{org}/orders/{id}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.Svc.GetOrder(r.Context(), PrincipalFrom(r.Context()), r.PathValue("org"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, order)
}
