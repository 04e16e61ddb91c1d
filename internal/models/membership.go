package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership links a principal to an organization with a role.
// Unique per (organization, principal).
type Membership struct {
	MembershipID uuid.UUID // UUIDv7
	OrgID        uuid.UUID
	PrincipalID  uuid.UUID
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RowOrgID implements policy.Row.
func (m *Membership) RowOrgID() uuid.UUID { return m.OrgID }

// RowDeleted implements policy.Row.
func (m *Membership) RowDeleted() bool { return false }
