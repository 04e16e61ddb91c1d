package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant in the system. Every governed entity
// belongs to exactly one organization.
type Organization struct {
	OrgID     uuid.UUID // UUIDv7
	Name      string
	Slug      string // unique, URL-safe
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // soft delete marker
}

// IsDeleted returns true if the organization has been soft-deleted.
func (o *Organization) IsDeleted() bool {
	return o.DeletedAt != nil
}

// RowOrgID implements policy.Row.
func (o *Organization) RowOrgID() uuid.UUID { return o.OrgID }

// RowDeleted implements policy.Row.
func (o *Organization) RowDeleted() bool { return o.IsDeleted() }
