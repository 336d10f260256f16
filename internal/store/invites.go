package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/stockledger/internal/model"
)

const inviteColumns = `id, organization_id, email, role, token_hash, status, expires_at,
	accepted_by, accepted_at, created_at, updated_at`

// CreateInvite stores a pending invite. Only the hash of the secret is kept.
func CreateInvite(ctx context.Context, q Queryer, id, orgID, email string, role model.Role, tokenHash string, expiresAt time.Time) (*model.Invite, error) {
	ts := now()
	inv := &model.Invite{
		ID:             id,
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		TokenHash:      tokenHash,
		Status:         model.InviteStatusPending,
		ExpiresAt:      expiresAt.UTC(),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	_, err := sqlx.NamedExecContext(ctx, q,
		`INSERT INTO organization_invites (`+inviteColumns+`)
		 VALUES (:id, :organization_id, :email, :role, :token_hash, :status, :expires_at,
		         :accepted_by, :accepted_at, :created_at, :updated_at)`,
		inv,
	)
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	return inv, nil
}

// GetInvite returns an invite by ID.
func GetInvite(ctx context.Context, q Queryer, id string) (*model.Invite, error) {
	inv := &model.Invite{}
	err := sqlx.GetContext(ctx, q, inv,
		`SELECT `+inviteColumns+` FROM organization_invites WHERE id = ?`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting invite: %w", err)
	}
	return inv, nil
}

// ListInvites returns an organization's invites, newest first.
func ListInvites(ctx context.Context, q Queryer, orgID string) ([]model.Invite, error) {
	var invites []model.Invite
	err := sqlx.SelectContext(ctx, q, &invites,
		`SELECT `+inviteColumns+` FROM organization_invites
		 WHERE organization_id = ? ORDER BY created_at DESC, id DESC`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return invites, nil
}

// AcceptInvite marks a pending invite accepted by userID. It reports false
// when the invite was no longer pending.
func AcceptInvite(ctx context.Context, q Queryer, id, userID string) (bool, error) {
	ts := now()
	res, err := q.ExecContext(ctx,
		`UPDATE organization_invites
		 SET status = ?, accepted_by = ?, accepted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.InviteStatusAccepted, userID, ts, ts, id, model.InviteStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("accepting invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accepting invite: %w", err)
	}
	return n == 1, nil
}

// ExpireInvite marks a pending invite expired.
func ExpireInvite(ctx context.Context, q Queryer, id string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE organization_invites SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.InviteStatusExpired, now(), id, model.InviteStatusPending,
	)
	if err != nil {
		return fmt.Errorf("expiring invite: %w", err)
	}
	return nil
}
