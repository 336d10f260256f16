package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/inventory"
)

// NewRouter creates the API router with all endpoints registered.
// Authorization is decided by the engine per organization; the router only
// requires a verified principal.
func NewRouter(svc *inventory.Service, jwtSecret string, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	orgs := &OrganizationsHandler{Svc: svc}
	warehouses := &WarehousesHandler{Svc: svc}
	products := &ProductsHandler{Svc: svc}
	stock := &StockHandler{Svc: svc}
	orders := &OrdersHandler{Svc: svc}

	authMW := AuthMiddleware(jwtSecret, svc)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Principal and organizations.
	mux.Handle("GET /api/me", authed(orgs.Me))
	mux.Handle("GET /api/orgs", authed(orgs.List))
	mux.Handle("POST /api/orgs", authed(orgs.Create))
	mux.Handle("DELETE /api/orgs/{org}", authed(orgs.Delete))
	mux.Handle("GET /api/orgs/{org}/members", authed(orgs.Members))
	mux.Handle("GET /api/orgs/{org}/invites", authed(orgs.Invites))
	mux.Handle("POST /api/orgs/{org}/invites", authed(orgs.Invite))
	mux.Handle("POST /api/invites/accept", authed(orgs.Accept))

	// Warehouses.
	mux.Handle("GET /api/orgs/{org}/warehouses", authed(warehouses.List))
	mux.Handle("POST /api/orgs/{org}/warehouses", authed(warehouses.Create))
	mux.Handle("PUT /api/orgs/{org}/warehouses/{id}", authed(warehouses.Update))
	mux.Handle("PUT /api/orgs/{org}/warehouses/{id}/default", authed(warehouses.MakeDefault))
	mux.Handle("DELETE /api/orgs/{org}/warehouses/{id}", authed(warehouses.Delete))

	// Products, prices and images.
	mux.Handle("GET /api/orgs/{org}/products", authed(products.List))
	mux.Handle("POST /api/orgs/{org}/products", authed(products.Create))
	mux.Handle("PATCH /api/orgs/{org}/products", authed(products.Bulk))
	mux.Handle("GET /api/orgs/{org}/products/{id}", authed(products.Get))
	mux.Handle("PUT /api/orgs/{org}/products/{id}", authed(products.Update))
	mux.Handle("DELETE /api/orgs/{org}/products/{id}", authed(products.Delete))
	mux.Handle("PUT /api/orgs/{org}/products/{id}/status", authed(products.SetStatus))
	mux.Handle("PUT /api/orgs/{org}/products/{id}/image", authed(products.UploadImage))
	mux.Handle("GET /api/orgs/{org}/products/{id}/image", authed(products.GetImage))
	mux.Handle("GET /api/orgs/{org}/products/{id}/price", authed(products.CurrentPrice))
	mux.Handle("GET /api/orgs/{org}/products/{id}/prices", authed(products.PriceHistory))
	mux.Handle("POST /api/orgs/{org}/products/{id}/prices", authed(products.SetPrice))

	// Stock ledger.
	mux.Handle("POST /api/orgs/{org}/stock/adjust", authed(stock.Adjust))
	mux.Handle("POST /api/orgs/{org}/stock/transfer", authed(stock.Transfer))
	mux.Handle("GET /api/orgs/{org}/movements", authed(stock.Movements))
	mux.Handle("GET /api/orgs/{org}/reconcile", authed(stock.Reconcile))

	// Orders.
	mux.Handle("GET /api/orgs/{org}/orders", authed(orders.List))
	mux.Handle("POST /api/orgs/{org}/orders", authed(orders.Create))
	mux.Handle("GET /api/orgs/{org}/orders/{id}", authed(orders.Get))

	return RecoverMiddleware(log)(LoggingMiddleware(log)(mux))
}
