package model

import "time"

// Organization is the tenancy boundary. Every inventory row belongs to exactly one.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Member is a user's membership in an organization.
type Member struct {
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           Role      `db:"role" json:"role"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not always populated).
	Email string `db:"email" json:"email,omitempty"`
}

// Invite statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusExpired  = "expired"
)

// Invite is a single-use invitation into an organization.
type Invite struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Email          string     `db:"email" json:"email"`
	Role           Role       `db:"role" json:"role"`
	TokenHash      string     `db:"token_hash" json:"-"`
	Status         string     `db:"status" json:"status"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedBy     *string    `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt     *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
