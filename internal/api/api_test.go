package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/auth"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/inventory"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	database := db.NewTestDB(t)
	svc := inventory.New(store.NewTransactor(database, store.TxOptions{}), inventory.Options{
		Logger:     zap.NewNop(),
		InviteCost: bcrypt.MinCost,
	})
	server := httptest.NewServer(NewRouter(svc, testJWTSecret, zap.NewNop()))
	t.Cleanup(server.Close)
	return server
}

func tokenFor(t *testing.T, name string) string {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, "idp|"+name, name+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call sends an authenticated JSON request, decodes the response into out
// when given and returns the status code.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// createOrg creates an organization and returns its ID and default warehouse.
func createOrg(t *testing.T, server *httptest.Server, token string) (string, string) {
	t.Helper()
	var res model.Result
	if code := call(t, "POST", server.URL+"/api/orgs", token, map[string]string{"name": "Acme"}, &res); code != http.StatusCreated {
		t.Fatalf("expected 201 creating org, got %d", code)
	}

	var warehouses []model.WarehouseSummary
	if code := call(t, "GET", server.URL+"/api/orgs/"+res.ResourceID+"/warehouses", token, nil, &warehouses); code != http.StatusOK {
		t.Fatalf("expected 200 listing warehouses, got %d", code)
	}
	if len(warehouses) != 1 {
		t.Fatalf("expected 1 warehouse, got %d", len(warehouses))
	}
	return res.ResourceID, warehouses[0].ID
}

func TestHealth(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	server := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/orgs")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if code := call(t, "GET", server.URL+"/api/orgs", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", code)
	}

	wrong, _ := auth.GenerateToken("other-secret", "idp|x", "x@example.com", time.Hour)
	if code := call(t, "GET", server.URL+"/api/orgs", wrong, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for token signed with another secret, got %d", code)
	}
}

func TestMe(t *testing.T) {
	server := setupTestServer(t)
	token := tokenFor(t, "ana")

	var me map[string]string
	if code := call(t, "GET", server.URL+"/api/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if me["email"] != "ana@example.com" || me["user_id"] == "" {
		t.Errorf("unexpected principal %v", me)
	}
}

func TestStockAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	token := tokenFor(t, "admin")
	org, warehouse := createOrg(t, server, token)
	base := server.URL + "/api/orgs/" + org

	var created model.Result
	code := call(t, "POST", base+"/products", token, map[string]any{
		"sku":              "W-100",
		"name":             "Widget",
		"initial_quantity": 10,
		"retail_price":     "4.20",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 creating product, got %d", code)
	}
	product := created.ResourceID

	var errBody errorBody
	code = call(t, "POST", base+"/stock/adjust", token, map[string]any{
		"product_id": product, "warehouse_id": warehouse, "delta": -11,
	}, &errBody)
	if code != http.StatusConflict || errBody.Kind != "insufficient_stock" {
		t.Errorf("expected 409 insufficient_stock, got %d %+v", code, errBody)
	}

	var second model.Result
	call(t, "POST", base+"/warehouses", token, map[string]string{"name": "Annex"}, &second)

	code = call(t, "POST", base+"/stock/transfer", token, map[string]any{
		"product_id": product, "from_warehouse_id": warehouse, "to_warehouse_id": second.ResourceID, "quantity": 4,
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 transferring, got %d", code)
	}

	var detail model.ProductDetail
	if code := call(t, "GET", base+"/products/"+product, token, nil, &detail); code != http.StatusOK {
		t.Fatalf("expected 200 getting product, got %d", code)
	}
	if detail.TotalStock != 10 || len(detail.Stock) != 2 {
		t.Errorf("expected 10 units over 2 warehouses, got %d over %d", detail.TotalStock, len(detail.Stock))
	}

	var movements []model.StockMovement
	call(t, "GET", base+"/movements?product_id="+product+"&limit=2", token, nil, &movements)
	if len(movements) != 2 {
		t.Errorf("expected 2 movements, got %d", len(movements))
	}

	var reconcile struct {
		Consistent bool `json:"consistent"`
	}
	call(t, "GET", base+"/reconcile", token, nil, &reconcile)
	if !reconcile.Consistent {
		t.Error("expected a consistent ledger")
	}

	if code := call(t, "DELETE", base+"/warehouses/"+warehouse, token, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 deleting default warehouse, got %d", code)
	}
}

func TestOrderAndProductDeletion(t *testing.T) {
	server := setupTestServer(t)
	token := tokenFor(t, "admin")
	org, _ := createOrg(t, server, token)
	base := server.URL + "/api/orgs/" + org

	var created model.Result
	call(t, "POST", base+"/products", token, map[string]any{
		"sku": "O-1", "name": "Thing", "initial_quantity": 3, "retail_price": 5,
	}, &created)

	var order model.Result
	code := call(t, "POST", base+"/orders", token, map[string]any{
		"reference": "PO-1",
		"items":     []map[string]any{{"product_id": created.ResourceID, "quantity": 2}},
	}, &order)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 placing order, got %d", code)
	}

	var orders []model.Order
	call(t, "GET", base+"/orders", token, nil, &orders)
	if len(orders) != 1 || len(orders[0].Items) != 1 {
		t.Fatalf("expected 1 order with 1 item, got %+v", orders)
	}

	var errBody errorBody
	code = call(t, "DELETE", base+"/products/"+created.ResourceID, token, nil, &errBody)
	if code != http.StatusConflict || errBody.Kind != "product_referenced" {
		t.Errorf("expected 409 product_referenced, got %d %+v", code, errBody)
	}

	code = call(t, "PUT", base+"/products/"+created.ResourceID+"/status", token, map[string]string{"status": "inactive"}, nil)
	if code != http.StatusOK {
		t.Errorf("expected 200 deactivating, got %d", code)
	}
}

func TestProductUpdatesAndPrices(t *testing.T) {
	server := setupTestServer(t)
	token := tokenFor(t, "admin")
	org, _ := createOrg(t, server, token)
	base := server.URL + "/api/orgs/" + org

	var created model.Result
	call(t, "POST", base+"/products", token, map[string]any{
		"sku": "P-1", "name": "Priced", "retail_price": "10", "actual_price": "9",
	}, &created)
	product := base + "/products/" + created.ResourceID

	code := call(t, "PUT", product, token, map[string]any{"name": "Renamed", "clear_actual_price": true}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 updating, got %d", code)
	}

	var price model.PriceEntry
	call(t, "GET", product+"/price", token, nil, &price)
	if price.ActualPrice.Valid {
		t.Error("expected actual price to be cleared")
	}

	code = call(t, "POST", product+"/prices", token, map[string]any{"retail_price": "12.5"}, nil)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 setting price, got %d", code)
	}

	var history []model.PriceEntry
	call(t, "GET", product+"/prices", token, nil, &history)
	if len(history) != 3 {
		t.Errorf("expected 3 price versions, got %d", len(history))
	}

	code = call(t, "PATCH", base+"/products", token, []map[string]any{
		{"product_id": created.ResourceID, "status": "discontinued"},
	}, nil)
	if code != http.StatusOK {
		t.Errorf("expected 200 for bulk update, got %d", code)
	}

	var list []model.ProductSummary
	call(t, "GET", base+"/products?status=discontinued", token, nil, &list)
	if len(list) != 1 || list[0].Name != "Renamed" {
		t.Errorf("unexpected product list %+v", list)
	}
}

func TestProductImageUpload(t *testing.T) {
	server := setupTestServer(t)
	token := tokenFor(t, "admin")
	org, _ := createOrg(t, server, token)

	var created model.Result
	call(t, "POST", server.URL+"/api/orgs/"+org+"/products", token, map[string]any{
		"sku": "IMG", "name": "Pictured", "retail_price": 1,
	}, &created)
	url := server.URL + "/api/orgs/" + org + "/products/" + created.ResourceID + "/image"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "pixel.png")
	png.Encode(part, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	mw.Close()

	req, _ := http.NewRequest("PUT", url, &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 uploading image, got %d", resp.StatusCode)
	}

	req, _ = authRequest("GET", url, token, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}

func TestTenantIsolation(t *testing.T) {
	server := setupTestServer(t)
	admin := tokenFor(t, "admin")
	outsider := tokenFor(t, "outsider")
	org, _ := createOrg(t, server, admin)

	if code := call(t, "GET", server.URL+"/api/orgs/"+org+"/products", outsider, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for non-member, got %d", code)
	}
	if code := call(t, "GET", server.URL+"/api/orgs/not-a-uuid/products", admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", code)
	}
}

func TestInviteAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	admin := tokenFor(t, "admin")
	guest := tokenFor(t, "guest")
	org, _ := createOrg(t, server, admin)

	var invite struct {
		Token string `json:"token"`
	}
	code := call(t, "POST", server.URL+"/api/orgs/"+org+"/invites", admin, map[string]string{
		"email": "guest@example.com", "role": "reader", "ttl": "1h",
	}, &invite)
	if code != http.StatusCreated || !strings.Contains(invite.Token, ".") {
		t.Fatalf("expected 201 with token, got %d %q", code, invite.Token)
	}

	if code := call(t, "POST", server.URL+"/api/invites/accept", guest, map[string]string{"token": invite.Token}, nil); code != http.StatusOK {
		t.Fatalf("expected 200 accepting, got %d", code)
	}
	if code := call(t, "POST", server.URL+"/api/invites/accept", guest, map[string]string{"token": invite.Token}, nil); code != http.StatusConflict {
		t.Errorf("expected 409 reusing invite, got %d", code)
	}

	var members []model.Member
	call(t, "GET", server.URL+"/api/orgs/"+org+"/members", guest, nil, &members)
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}

	// Viewers may read but not write.
	if code := call(t, "POST", server.URL+"/api/orgs/"+org+"/warehouses", guest, map[string]string{"name": "x"}, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer, got %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.Unauthorized, http.StatusUnauthorized},
		{apperr.Forbidden, http.StatusForbidden},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.InvalidIdentifier, http.StatusBadRequest},
		{apperr.DuplicateSKU, http.StatusConflict},
		{apperr.InviteExpired, http.StatusGone},
		{apperr.TransactionTimeout, http.StatusServiceUnavailable},
		{apperr.DataIntegrity, http.StatusInternalServerError},
		{apperr.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	writeError(rec, req, apperr.Wrap(apperr.Internal, http.ErrHandlerTimeout, "disk on fire"))

	var body errorBody
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusInternalServerError || body.Error != "internal error" {
		t.Errorf("unexpected response %d %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	writeError(rec, req, apperr.E(apperr.TransactionTimeout, "busy"))
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("expected Retry-After on retryable errors")
	}
}
