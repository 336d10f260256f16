package inventory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/model"
	"github.com/erazemk/stockledger/internal/store"
)

// DefaultWarehouseName is the name of the warehouse every new organization
// starts with.
const DefaultWarehouseName = "Main"

// EnsureUser maps a verified external identity to a user, creating it on
// first sight and refreshing its email when it changed.
func (s *Service) EnsureUser(ctx context.Context, externalID, email string) (_ *model.User, err error) {
	ctx, span := s.start(ctx, "EnsureUser")
	defer func() { end(span, err) }()

	externalID = strings.TrimSpace(externalID)
	email = normalizeEmail(email)
	if externalID == "" {
		return nil, apperr.E(apperr.Unauthorized, "missing subject")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.E(apperr.Validation, "invalid email %q", email)
	}

	// Known users with an unchanged email are served without a write
	// transaction.
	u, err := store.GetUserByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}
	if u != nil && u.Email == email {
		return u, nil
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = store.EnsureUser(ctx, tx, externalID, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateOrganization creates an organization with the principal as its
// admin and a default warehouse.
func (s *Service) CreateOrganization(ctx context.Context, p model.Principal, name string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "CreateOrganization")
	defer func() { end(span, err) }()

	if p.Anonymous() {
		return res, apperr.E(apperr.Unauthorized, "authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return res, apperr.E(apperr.Validation, "organization name is required")
	}

	var org *model.Organization
	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if org, err = store.CreateOrganization(ctx, tx, name, p.UserID); err != nil {
			return err
		}
		if err := store.AddMember(ctx, tx, org.ID, p.UserID, model.RoleAdmin); err != nil {
			return err
		}
		_, err = store.CreateWarehouse(ctx, tx, org.ID, DefaultWarehouseName, "", true)
		return err
	})
	if err != nil {
		return res, err
	}

	s.log.Info("organization created", zap.String("organization_id", org.ID), zap.String("user_id", p.UserID))

	return model.Result{Success: true, ResourceID: org.ID, Message: fmt.Sprintf("organization %q created", name)}, nil
}

// ListOrganizations returns the organizations the principal belongs to.
func (s *Service) ListOrganizations(ctx context.Context, p model.Principal) (_ []model.Organization, err error) {
	ctx, span := s.start(ctx, "ListOrganizations")
	defer func() { end(span, err) }()

	if p.Anonymous() {
		return nil, apperr.E(apperr.Unauthorized, "authentication required")
	}
	return store.ListOrganizationsForUser(ctx, s.db, p.UserID)
}

// DeleteOrganization removes an organization. Without force it refuses
// while the organization still owns warehouses, products or orders.
func (s *Service) DeleteOrganization(ctx context.Context, p model.Principal, orgID string, force bool) (res model.Result, err error) {
	ctx, span := s.start(ctx, "DeleteOrganization", orgAttr(orgID), attribute.Bool("force", force))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return res, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermOrgManage); err != nil {
		return res, err
	}

	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		contents, err := store.CountOrganizationContents(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !force && !contents.Empty() {
			return apperr.E(apperr.OrganizationNotEmpty,
				"organization has %d warehouse(s), %d product(s) and %d order(s); delete with force to erase them",
				contents.Warehouses, contents.Products, contents.Orders)
		}
		return store.DeleteOrganization(ctx, tx, orgID)
	})
	if err != nil {
		return res, err
	}

	targets := make([]cache.Target, 0, len(cache.Resources))
	for _, r := range cache.Resources {
		targets = append(targets, cache.Target{Resource: r})
	}
	s.invalidate(ctx, orgID, targets...)
	s.log.Warn("organization deleted", zap.String("organization_id", orgID), zap.Bool("force", force))

	return model.Result{Success: true, ResourceID: orgID, Message: "organization deleted"}, nil
}

// ListMembers returns an organization's members. Any member may list them.
func (s *Service) ListMembers(ctx context.Context, p model.Principal, orgID string) (_ []model.Member, err error) {
	ctx, span := s.start(ctx, "ListMembers", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if _, err := s.gate.ResolveRole(ctx, p, orgID); err != nil {
		return nil, err
	}
	return store.ListMembers(ctx, s.db, orgID)
}

// CreateInviteInput invites an email address into an organization.
type CreateInviteInput struct {
	OrgID string
	Email string
	Role  model.Role
	// TTL overrides the service's invite lifetime when positive.
	TTL time.Duration
}

// CreateInvite stores a pending invite and returns it with its one-time
// token. The token is not recoverable afterwards.
func (s *Service) CreateInvite(ctx context.Context, p model.Principal, in CreateInviteInput) (_ *model.Invite, token string, err error) {
	ctx, span := s.start(ctx, "CreateInvite", orgAttr(in.OrgID), attribute.String("role", string(in.Role)))
	defer func() { end(span, err) }()

	if err := validateIDs(in.OrgID); err != nil {
		return nil, "", err
	}
	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, "", apperr.E(apperr.Validation, "invalid email %q", in.Email)
	}
	if !in.Role.Valid() {
		return nil, "", apperr.E(apperr.Validation, "unknown role %q", in.Role)
	}
	role, err := s.gate.Authorize(ctx, p, in.OrgID, model.PermMemberInvite)
	if err != nil {
		return nil, "", err
	}
	if !model.RoleAtLeast(role, in.Role) {
		return nil, "", apperr.E(apperr.Forbidden, "role %s cannot invite a %s", role, in.Role)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.inviteCost())
	if err != nil {
		return nil, "", fmt.Errorf("hashing invite secret: %w", err)
	}

	ttl := s.opts.InviteTTL
	if in.TTL > 0 {
		ttl = in.TTL
	}
	id := store.NewID()

	var inv *model.Invite
	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inv, err = store.CreateInvite(ctx, tx, id, in.OrgID, email, in.Role, string(hash), s.now().Add(ttl))
		return err
	})
	if err != nil {
		return nil, "", err
	}

	s.log.Info("invite created",
		zap.String("organization_id", in.OrgID),
		zap.String("invite_id", id),
		zap.String("role", string(in.Role)),
	)
	return inv, id + "." + secret, nil
}

// ListInvites returns an organization's invites.
func (s *Service) ListInvites(ctx context.Context, p model.Principal, orgID string) (_ []model.Invite, err error) {
	ctx, span := s.start(ctx, "ListInvites", orgAttr(orgID))
	defer func() { end(span, err) }()

	if err := validateIDs(orgID); err != nil {
		return nil, err
	}
	if _, err := s.gate.Authorize(ctx, p, orgID, model.PermMemberInvite); err != nil {
		return nil, err
	}
	return store.ListInvites(ctx, s.db, orgID)
}

// AcceptInvite consumes an invite token and makes the principal a member.
// An expired invite is marked expired and fails with InviteExpired; a used
// one fails with InviteConsumed.
func (s *Service) AcceptInvite(ctx context.Context, p model.Principal, token string) (res model.Result, err error) {
	ctx, span := s.start(ctx, "AcceptInvite")
	defer func() { end(span, err) }()

	if p.Anonymous() {
		return res, apperr.E(apperr.Unauthorized, "authentication required")
	}
	id, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return res, apperr.E(apperr.InvalidIdentifier, "malformed invite token")
	}
	if err := validateIDs(id); err != nil {
		return res, err
	}

	inv, err := store.GetInvite(ctx, s.db, id)
	if err != nil {
		return res, err
	}
	if inv == nil || bcrypt.CompareHashAndPassword([]byte(inv.TokenHash), []byte(secret)) != nil {
		return res, apperr.E(apperr.NotFound, "invite not found")
	}
	if !strings.EqualFold(inv.Email, normalizeEmail(p.Email)) {
		return res, apperr.E(apperr.Forbidden, "invite was issued to a different email")
	}

	expired := false
	err = s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := store.GetInvite(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.E(apperr.NotFound, "invite not found")
		}

		switch {
		case cur.Status == model.InviteStatusAccepted:
			return apperr.E(apperr.InviteConsumed, "invite has already been used")
		case cur.Status == model.InviteStatusExpired:
			return apperr.E(apperr.InviteExpired, "invite has expired")
		case !s.now().Before(cur.ExpiresAt):
			// Committed so the expiry sticks.
			expired = true
			return store.ExpireInvite(ctx, tx, id)
		}

		accepted, err := store.AcceptInvite(ctx, tx, id, p.UserID)
		if err != nil {
			return err
		}
		if !accepted {
			return apperr.E(apperr.InviteConsumed, "invite has already been used")
		}

		current, member, err := store.GetMemberRole(ctx, tx, cur.OrganizationID, p.UserID)
		if err != nil {
			return err
		}
		if member && model.RoleAtLeast(model.Role(current), cur.Role) {
			return nil
		}
		return store.AddMember(ctx, tx, cur.OrganizationID, p.UserID, cur.Role)
	})
	if err != nil {
		return res, err
	}
	if expired {
		return res, apperr.E(apperr.InviteExpired, "invite has expired")
	}

	s.log.Info("invite accepted",
		zap.String("organization_id", inv.OrganizationID),
		zap.String("invite_id", id),
		zap.String("user_id", p.UserID),
	)
	return model.Result{Success: true, ResourceID: inv.OrganizationID, Message: "joined organization as " + string(inv.Role)}, nil
}

func (s *Service) inviteCost() int {
	if s.opts.InviteCost > 0 {
		return s.opts.InviteCost
	}
	return bcrypt.DefaultCost
}

func newSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating invite secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
