package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// InviteStore defines read access to invites. Invite state transitions
// happen only through privileged procedures.
type InviteStore interface {
	// GetInvite retrieves an invite by ID.
	GetInvite(ctx context.Context, inviteID uuid.UUID) (*models.Invite, error)

	// ListInvites returns an organization's invites, newest first. When
	// pendingOnly is set, accepted and revoked invites are omitted.
	ListInvites(ctx context.Context, orgID uuid.UUID, pendingOnly bool) ([]*models.Invite, error)
}

// AuditStore defines read access to the audit log. Entries are written only
// inside governed mutations, never through this interface.
type AuditStore interface {
	// ListAuditEntries returns an organization's audit entries, newest
	// first, capped at limit.
	ListAuditEntries(ctx context.Context, orgID uuid.UUID, limit int32) ([]*models.AuditEntry, error)
}
