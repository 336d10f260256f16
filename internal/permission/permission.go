// Package permission resolves a principal's role in an organization and
// checks it against the permission table.
package permission

import (
	"context"
	"fmt"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// Gate answers membership and permission questions. It never writes.
type Gate struct {
	q store.Queryer
}

// NewGate creates a Gate reading memberships through q.
func NewGate(q store.Queryer) *Gate {
	return &Gate{q: q}
}

// ResolveRole returns the role of p in orgID. A principal that is not a
// member gets Forbidden, never an empty role.
func (g *Gate) ResolveRole(ctx context.Context, p model.Principal, orgID string) (model.Role, error) {
	if p.Anonymous() {
		return "", apperr.E(apperr.Unauthorized, "no verified principal")
	}

	raw, ok, err := store.GetMemberRole(ctx, g.q, orgID, p.UserID)
	if err != nil {
		return "", fmt.Errorf("resolving role: %w", err)
	}
	if !ok {
		return "", apperr.E(apperr.Forbidden, "not a member of this organization")
	}

	role, ok := model.ParseRole(raw)
	if !ok {
		return "", apperr.E(apperr.Forbidden, "unknown role %q", raw)
	}
	return role, nil
}

// HasPermission reports whether role grants every permission in perms.
func HasPermission(role model.Role, perms ...model.Permission) bool {
	return role.Can(perms...)
}

// Authorize resolves the role of p in orgID and requires perms. It returns
// the resolved role.
func (g *Gate) Authorize(ctx context.Context, p model.Principal, orgID string, perms ...model.Permission) (model.Role, error) {
	role, err := g.ResolveRole(ctx, p, orgID)
	if err != nil {
		return "", err
	}
	if !HasPermission(role, perms...) {
		return "", apperr.E(apperr.Forbidden, "role %s lacks %s", role, missing(role, perms))
	}
	return role, nil
}

func missing(role model.Role, perms []model.Permission) model.Permission {
	for _, p := range perms {
		if !role.Can(p) {
			return p
		}
	}
	return ""
}
