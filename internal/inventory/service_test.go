package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/events"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// env is an organization administered by admin, backed by a Redis cache.
type env struct {
	svc       *Service
	db        *sqlx.DB
	redis     *miniredis.Miniredis
	events    *recordingPublisher
	admin     model.Principal
	orgID     string
	warehouse string
}

type recordingPublisher struct {
	events []events.InvalidationEvent
}

func (r *recordingPublisher) PublishInvalidation(_ context.Context, ev events.InvalidationEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := zaptest.NewLogger(t)
	pub := &recordingPublisher{}
	svc := New(store.NewTransactor(database, store.TxOptions{}), Options{
		Cache:      cache.New(cache.NewRedis(client), cache.Options{Version: "test"}, log),
		Publisher:  pub,
		Logger:     log,
		InviteCost: bcrypt.MinCost,
	})

	e := &env{svc: svc, db: database, redis: mr, events: pub}
	e.admin = e.user(t, "admin")

	res, err := svc.CreateOrganization(context.Background(), e.admin, "Acme")
	require.NoError(t, err)
	e.orgID = res.ResourceID

	w, err := store.GetDefaultWarehouse(context.Background(), database, e.orgID)
	require.NoError(t, err)
	require.NotNil(t, w)
	e.warehouse = w.ID

	return e
}

// user creates a user named name and returns its principal.
func (e *env) user(t *testing.T, name string) model.Principal {
	t.Helper()
	u, err := e.svc.EnsureUser(context.Background(), "ext-"+name, name+"@example.com")
	require.NoError(t, err)
	return model.Principal{UserID: u.ID, Email: u.Email}
}

// member creates a user with role in the env's organization.
func (e *env) member(t *testing.T, name string, role model.Role) model.Principal {
	t.Helper()
	p := e.user(t, name)
	require.NoError(t, store.AddMember(context.Background(), e.db, e.orgID, p.UserID, role))
	return p
}

func (e *env) warehouseNamed(t *testing.T, name string) string {
	t.Helper()
	res, err := e.svc.CreateWarehouse(context.Background(), e.admin, CreateWarehouseInput{OrgID: e.orgID, Name: name})
	require.NoError(t, err)
	return res.ResourceID
}

// product creates a product priced at retail with qty units in the default
// warehouse.
func (e *env) product(t *testing.T, sku string, qty int, retail string) string {
	t.Helper()
	res, err := e.svc.CreateProduct(context.Background(), e.admin, CreateProductInput{
		OrgID:           e.orgID,
		SKU:             sku,
		Name:            "Product " + sku,
		InitialQuantity: qty,
		Retail:          decimal.RequireFromString(retail),
	})
	require.NoError(t, err)
	return res.ResourceID
}

func (e *env) quantity(t *testing.T, productID, warehouseID string) int {
	t.Helper()
	qty, _, err := store.GetQuantity(context.Background(), e.db, productID, warehouseID)
	require.NoError(t, err)
	return qty
}

func (e *env) requireReconciled(t *testing.T) {
	t.Helper()
	mismatches, err := e.svc.Reconcile(context.Background(), e.admin, e.orgID)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestValidateIDs(t *testing.T) {
	require.NoError(t, validateIDs(store.NewID(), store.NewID()))
	requireKind(t, validateIDs(store.NewID(), "not-a-uuid"), apperr.InvalidIdentifier)
}

func TestMalformedIdentifierRejectedBeforeStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AdjustStock(ctx, e.admin, AdjustStockInput{OrgID: e.orgID, ProductID: "42", WarehouseID: e.warehouse, Delta: 1})
	requireKind(t, err, apperr.InvalidIdentifier)

	_, err = e.svc.GetProductDetail(ctx, e.admin, "acme", store.NewID())
	requireKind(t, err, apperr.InvalidIdentifier)
}

func TestWritesPublishInvalidationEvents(t *testing.T) {
	e := newEnv(t)
	e.product(t, "EV-1", 0, "1.00")

	require.NotEmpty(t, e.events.events)
	last := e.events.events[len(e.events.events)-1]
	require.Equal(t, e.orgID, last.OrganizationID)
	require.ElementsMatch(t, []string{string(cache.ProductList), string(cache.WarehouseList)}, last.Resources)
	require.WithinDuration(t, time.Now(), last.At, time.Minute)
}

func TestCacheOutageDoesNotFailWrites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pid := e.product(t, "DOWN-1", 3, "1.00")

	e.redis.Close()

	_, err := e.svc.AdjustStock(ctx, e.admin, AdjustStockInput{OrgID: e.orgID, ProductID: pid, WarehouseID: e.warehouse, Delta: 2})
	require.NoError(t, err)

	detail, err := e.svc.GetProductDetail(ctx, e.admin, e.orgID, pid)
	require.NoError(t, err)
	require.Equal(t, 5, detail.TotalStock)
}
