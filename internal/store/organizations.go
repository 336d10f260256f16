package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

// CreateOrganization inserts an organization created by userID.
func CreateOrganization(ctx context.Context, q Queryer, name, createdBy string) (*model.Organization, error) {
	ts := now()
	org := &model.Organization{
		ID:        NewID(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.CreatedBy, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return org, nil
}

// GetOrganization returns an organization by ID.
func GetOrganization(ctx context.Context, q Queryer, id string) (*model.Organization, error) {
	org := &model.Organization{}
	err := sqlx.GetContext(ctx, q, org,
		`SELECT id, name, created_by, created_at, updated_at FROM organizations WHERE id = ?`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting organization: %w", err)
	}
	return org, nil
}

// ListOrganizationsForUser returns the organizations userID is a member of.
func ListOrganizationsForUser(ctx context.Context, q Queryer, userID string) ([]model.Organization, error) {
	var orgs []model.Organization
	err := sqlx.SelectContext(ctx, q, &orgs,
		`SELECT o.id, o.name, o.created_by, o.created_at, o.updated_at
		 FROM organizations o
		 JOIN organization_members m ON m.organization_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.name, o.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return orgs, nil
}

// AddMember adds userID to an organization with role, or changes the role of
// an existing member.
func AddMember(ctx context.Context, q Queryer, orgID, userID string, role model.Role) error {
	ts := now()
	_, err := q.ExecContext(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		orgID, userID, role, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// GetMemberRole returns the stored role of userID in orgID. The boolean is
// false when the user is not a member.
func GetMemberRole(ctx context.Context, q Queryer, orgID, userID string) (string, bool, error) {
	var role string
	err := sqlx.GetContext(ctx, q, &role,
		`SELECT role FROM organization_members WHERE organization_id = ? AND user_id = ?`,
		orgID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting member role: %w", err)
	}
	return role, true, nil
}

// ListMembers returns the members of an organization with their email.
func ListMembers(ctx context.Context, q Queryer, orgID string) ([]model.Member, error) {
	var members []model.Member
	err := sqlx.SelectContext(ctx, q, &members,
		`SELECT m.organization_id, m.user_id, m.role, m.created_at, m.updated_at, u.email
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.organization_id = ?
		 ORDER BY u.email`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// OrganizationContents counts the rows that block a non-force delete.
type OrganizationContents struct {
	Warehouses int `db:"warehouses"`
	Products   int `db:"products"`
	Orders     int `db:"orders"`
}

// Empty reports whether nothing blocks deletion.
func (c OrganizationContents) Empty() bool {
	return c.Warehouses == 0 && c.Products == 0 && c.Orders == 0
}

// CountOrganizationContents counts warehouses, products and orders of orgID.
func CountOrganizationContents(ctx context.Context, q Queryer, orgID string) (OrganizationContents, error) {
	var c OrganizationContents
	err := sqlx.GetContext(ctx, q, &c,
		`SELECT
		   (SELECT COUNT(*) FROM warehouses WHERE organization_id = ?) AS warehouses,
		   (SELECT COUNT(*) FROM products WHERE organization_id = ?) AS products,
		   (SELECT COUNT(*) FROM orders WHERE organization_id = ?) AS orders`,
		orgID, orgID, orgID,
	)
	if err != nil {
		return c, fmt.Errorf("counting organization contents: %w", err)
	}
	return c, nil
}

// purgeSteps delete an organization's rows children first.
var purgeSteps = []struct {
	what  string
	query string
}{
	{"order items", `DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE organization_id = ?)`},
	{"orders", `DELETE FROM orders WHERE organization_id = ?`},
	{"price history", `DELETE FROM price_history WHERE product_id IN (SELECT id FROM products WHERE organization_id = ?)`},
	{"stock movements", `DELETE FROM stock_movements WHERE organization_id = ?`},
	{"stock", `DELETE FROM stock WHERE product_id IN (SELECT id FROM products WHERE organization_id = ?)`},
	{"product images", `DELETE FROM product_images WHERE product_id IN (SELECT id FROM products WHERE organization_id = ?)`},
	{"products", `DELETE FROM products WHERE organization_id = ?`},
	{"warehouses", `DELETE FROM warehouses WHERE organization_id = ?`},
	{"invites", `DELETE FROM organization_invites WHERE organization_id = ?`},
	{"members", `DELETE FROM organization_members WHERE organization_id = ?`},
	{"organization", `DELETE FROM organizations WHERE id = ?`},
}

// DeleteOrganization removes an organization and every row it owns. Callers
// decide whether a non-empty organization may be deleted.
func DeleteOrganization(ctx context.Context, q Queryer, orgID string) error {
	for _, step := range purgeSteps {
		if _, err := q.ExecContext(ctx, step.query, orgID); err != nil {
			return fmt.Errorf("deleting %s: %w", step.what, err)
		}
	}
	return nil
}
