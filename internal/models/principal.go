package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal represents an authenticated identity, independent of any tenant.
// A profile row is created automatically on first authentication; the
// identity provider is trusted to supply a verified subject and email.
type Principal struct {
	PrincipalID uuid.UUID // UUIDv7
	Subject     string    // identity provider subject, unique
	Email       string    // registered email, lowercased
	Name        string    // display name
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RowOrgID implements policy.Row. Profiles are not owned by any tenant.
func (p *Principal) RowOrgID() uuid.UUID { return uuid.Nil }

// RowDeleted implements policy.Row.
func (p *Principal) RowDeleted() bool { return false }
