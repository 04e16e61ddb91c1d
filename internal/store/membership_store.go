package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// MembershipStore defines read access to the membership relation. It also
// backs the policy engine's membership lookups; memberships are only ever
// written by privileged procedures.
type MembershipStore interface {
	// LiveRolesForPrincipal returns the principal's role per organization,
	// excluding soft-deleted organizations.
	LiveRolesForPrincipal(ctx context.Context, principalID uuid.UUID) (map[uuid.UUID]models.Role, error)

	// SharedOrganization reports whether two principals share at least one
	// live organization.
	SharedOrganization(ctx context.Context, a, b uuid.UUID) (bool, error)

	// GetMembership retrieves the membership of a principal in an
	// organization.
	GetMembership(ctx context.Context, orgID, principalID uuid.UUID) (*models.Membership, error)

	// ListMemberships returns all memberships of an organization.
	ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)
}
