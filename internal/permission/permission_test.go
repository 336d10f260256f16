package permission

import (
	"context"
	"testing"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/db"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

func TestGate(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	owner, _ := store.EnsureUser(ctx, database, "ext-owner", "owner@example.com")
	viewer, _ := store.EnsureUser(ctx, database, "ext-viewer", "viewer@example.com")
	stranger, _ := store.EnsureUser(ctx, database, "ext-stranger", "stranger@example.com")
	org, _ := store.CreateOrganization(ctx, database, "Acme", owner.ID)
	store.AddMember(ctx, database, org.ID, owner.ID, model.RoleAdmin)
	store.AddMember(ctx, database, org.ID, viewer.ID, model.RoleViewer)

	employee, _ := store.EnsureUser(ctx, database, "ext-employee", "employee@example.com")
	store.AddMember(ctx, database, org.ID, employee.ID, model.RoleEmployee)

	gate := NewGate(database)

	tests := []struct {
		name      string
		principal model.Principal
		perms     []model.Permission
		wantRole  model.Role
		wantKind  apperr.Kind
		wantErr   bool
	}{
		{"admin manages", model.Principal{UserID: owner.ID}, []model.Permission{model.PermOrgManage}, model.RoleAdmin, 0, false},
		{"viewer reads", model.Principal{UserID: viewer.ID}, []model.Permission{model.PermProductRead}, model.RoleViewer, 0, false},
		{"viewer cannot adjust", model.Principal{UserID: viewer.ID}, []model.Permission{model.PermStockAdjust}, "", apperr.Forbidden, true},
		{"employee adjusts", model.Principal{UserID: employee.ID}, []model.Permission{model.PermStockAdjust}, model.RoleEmployee, 0, false},
		{"non-member", model.Principal{UserID: stranger.ID}, []model.Permission{model.PermProductRead}, "", apperr.Forbidden, true},
		{"anonymous", model.Principal{}, []model.Permission{model.PermProductRead}, "", apperr.Unauthorized, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := gate.Authorize(ctx, tt.principal, org.ID, tt.perms...)
			if tt.wantErr {
				if !apperr.Is(err, tt.wantKind) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if role != tt.wantRole {
				t.Errorf("expected role %q, got %q", tt.wantRole, role)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	if !HasPermission(model.RoleManager, model.PermPriceWrite, model.PermWarehouseDelete) {
		t.Error("manager should write prices and delete warehouses")
	}
	if HasPermission(model.RoleEmployee, model.PermProductDelete) {
		t.Error("employee should not delete products")
	}
}
