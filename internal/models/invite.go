package models

import (
	"time"

	"github.com/google/uuid"
)

// InviteStatus represents the stored state of an invite. Expiry is derived
// from time, not stored.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
)

// DefaultInviteTTL is the default validity window for a new invite.
const DefaultInviteTTL = 7 * 24 * time.Hour

// Invite is a single-use, time-bounded token granting a role to a named
// email address within one organization.
type Invite struct {
	InviteID   uuid.UUID // UUIDv7
	OrgID      uuid.UUID
	Email      string // lowercased
	Role       Role
	Token      string // unique, base58
	Status     InviteStatus
	ExpiresAt  time.Time
	CreatedBy  uuid.UUID
	AcceptedBy *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired returns true if the invite's validity window has passed.
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// RowOrgID implements policy.Row.
func (i *Invite) RowOrgID() uuid.UUID { return i.OrgID }

// RowDeleted implements policy.Row.
func (i *Invite) RowDeleted() bool { return false }
