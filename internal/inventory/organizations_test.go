package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

func TestCreateOrganizationSetsUpAdminAndDefaultWarehouse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	members, err := e.svc.ListMembers(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, model.RoleAdmin, members[0].Role)

	warehouses, err := e.svc.ListWarehouses(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, warehouses, 1)
	assert.Equal(t, DefaultWarehouseName, warehouses[0].Name)
	assert.True(t, warehouses[0].IsDefault)

	orgs, err := e.svc.ListOrganizations(ctx, e.admin)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Acme", orgs[0].Name)

	_, err = e.svc.CreateOrganization(ctx, model.Principal{}, "Ghost")
	requireKind(t, err, apperr.Unauthorized)
}

func TestDeleteOrganization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pid := e.product(t, "ORG-1", 3, "1.00")
	manager := e.member(t, "manager", model.RoleManager)

	_, err := e.svc.PlaceOrder(ctx, e.admin, PlaceOrderInput{OrgID: e.orgID, Items: []OrderItemInput{{ProductID: pid, Quantity: 1}}})
	require.NoError(t, err)

	_, err = e.svc.DeleteOrganization(ctx, manager, e.orgID, true)
	requireKind(t, err, apperr.Forbidden)

	_, err = e.svc.DeleteOrganization(ctx, e.admin, e.orgID, false)
	requireKind(t, err, apperr.OrganizationNotEmpty)
	assert.Contains(t, err.Error(), "1 warehouse(s), 1 product(s) and 1 order(s)")

	_, err = e.svc.DeleteOrganization(ctx, e.admin, e.orgID, true)
	require.NoError(t, err)

	org, err := store.GetOrganization(ctx, e.db, e.orgID)
	require.NoError(t, err)
	assert.Nil(t, org)

	var movements int
	require.NoError(t, e.db.Get(&movements, `SELECT COUNT(*) FROM stock_movements`))
	assert.Zero(t, movements)

	_, err = e.svc.ListProducts(ctx, e.admin, e.orgID, "")
	requireKind(t, err, apperr.Forbidden)
}

func TestInviteFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	guest := e.user(t, "guest")

	inv, token, err := e.svc.CreateInvite(ctx, e.admin, CreateInviteInput{OrgID: e.orgID, Email: "Guest@Example.com", Role: model.RoleEmployee})
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", inv.Email)
	assert.True(t, strings.HasPrefix(token, inv.ID+"."))
	assert.NotContains(t, inv.TokenHash, strings.TrimPrefix(token, inv.ID+"."))

	_, err = e.svc.AcceptInvite(ctx, guest, inv.ID+".wrong")
	requireKind(t, err, apperr.NotFound)

	_, err = e.svc.AcceptInvite(ctx, e.user(t, "someone"), token)
	requireKind(t, err, apperr.Forbidden)

	res, err := e.svc.AcceptInvite(ctx, guest, token)
	require.NoError(t, err)
	assert.Equal(t, e.orgID, res.ResourceID)

	_, err = e.svc.AcceptInvite(ctx, guest, token)
	requireKind(t, err, apperr.InviteConsumed)

	role, err := e.svc.gate.ResolveRole(ctx, guest, e.orgID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEmployee, role)

	invites, err := e.svc.ListInvites(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, model.InviteStatusAccepted, invites[0].Status)
}

func TestExpiredInviteIsMarked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	guest := e.user(t, "late")

	inv, token, err := e.svc.CreateInvite(ctx, e.admin, CreateInviteInput{OrgID: e.orgID, Email: guest.Email, Role: model.RoleViewer, TTL: time.Hour})
	require.NoError(t, err)

	e.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	_, err = e.svc.AcceptInvite(ctx, guest, token)
	requireKind(t, err, apperr.InviteExpired)

	stored, err := store.GetInvite(ctx, e.db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InviteStatusExpired, stored.Status)

	_, err = e.svc.AcceptInvite(ctx, guest, token)
	requireKind(t, err, apperr.InviteExpired)

	_, err = e.svc.gate.ResolveRole(ctx, guest, e.orgID)
	requireKind(t, err, apperr.Forbidden)
}

func TestInviteRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	manager := e.member(t, "manager", model.RoleManager)
	employee := e.member(t, "employee", model.RoleEmployee)

	_, _, err := e.svc.CreateInvite(ctx, manager, CreateInviteInput{OrgID: e.orgID, Email: "boss@example.com", Role: model.RoleAdmin})
	requireKind(t, err, apperr.Forbidden)

	_, _, err = e.svc.CreateInvite(ctx, employee, CreateInviteInput{OrgID: e.orgID, Email: "x@example.com", Role: model.RoleViewer})
	requireKind(t, err, apperr.Forbidden)

	_, _, err = e.svc.CreateInvite(ctx, manager, CreateInviteInput{OrgID: e.orgID, Email: "not-an-email", Role: model.RoleViewer})
	requireKind(t, err, apperr.Validation)

	_, _, err = e.svc.CreateInvite(ctx, manager, CreateInviteInput{OrgID: e.orgID, Email: "x@example.com", Role: "owner"})
	requireKind(t, err, apperr.Validation)

	_, err = e.svc.AcceptInvite(ctx, employee, "garbage")
	requireKind(t, err, apperr.InvalidIdentifier)

	_, err = e.svc.AcceptInvite(ctx, model.Principal{}, "garbage")
	requireKind(t, err, apperr.Unauthorized)
}

func TestAcceptInviteNeverDowngrades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, token, err := e.svc.CreateInvite(ctx, e.admin, CreateInviteInput{OrgID: e.orgID, Email: e.admin.Email, Role: model.RoleViewer})
	require.NoError(t, err)

	_, err = e.svc.AcceptInvite(ctx, e.admin, token)
	require.NoError(t, err)

	role, err := e.svc.gate.ResolveRole(ctx, e.admin, e.orgID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)
}

func TestKnownUserAuthenticatesWhileWritesAreBusy(t *testing.T) {
	database := db.NewTestDB(t)
	svc := New(store.NewTransactor(database, store.TxOptions{
		MaxConcurrent:  1,
		AcquireTimeout: 100 * time.Millisecond,
	}), Options{})
	ctx := context.Background()

	known, err := svc.EnsureUser(ctx, "ext-known", "known@example.com")
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- svc.tx.WithinTx(ctx, func(*sqlx.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	u, err := svc.EnsureUser(ctx, "ext-known", "Known@Example.com")
	require.NoError(t, err)
	assert.Equal(t, known.ID, u.ID)

	// New users and email changes still need the write slot.
	_, err = svc.EnsureUser(ctx, "ext-new", "new@example.com")
	requireKind(t, err, apperr.TransactionTimeout)
	_, err = svc.EnsureUser(ctx, "ext-known", "moved@example.com")
	requireKind(t, err, apperr.TransactionTimeout)

	close(release)
	require.NoError(t, <-done)

	u, err = svc.EnsureUser(ctx, "ext-known", "moved@example.com")
	require.NoError(t, err)
	assert.Equal(t, known.ID, u.ID)
	assert.Equal(t, "moved@example.com", u.Email)
}
