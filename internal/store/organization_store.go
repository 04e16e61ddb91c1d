package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// OrganizationWithRole pairs an organization with the caller's role in it.
type OrganizationWithRole struct {
	Organization *models.Organization
	Role         models.Role
}

// OrganizationStore defines read access to organizations. All mutations of
// organizations happen through privileged procedures, never through this
// interface.
type OrganizationStore interface {
	// GetOrganization retrieves an organization by ID, including
	// soft-deleted ones. Callers are responsible for policy filtering.
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetOrganizationBySlug retrieves a live organization by slug.
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// ListForPrincipal returns the live organizations a principal belongs
	// to, with the principal's role in each.
	ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*OrganizationWithRole, error)
}
