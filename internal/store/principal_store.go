package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// PrincipalStore defines storage operations for principal profiles.
type PrincipalStore interface {
	// Upsert creates the profile for a subject on first authentication, or
	// refreshes email and name on subsequent ones.
	Upsert(ctx context.Context, subject, email, name string) (*models.Principal, error)

	// GetPrincipal retrieves a principal by ID.
	GetPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetBySubject retrieves a principal by identity provider subject.
	GetBySubject(ctx context.Context, subject string) (*models.Principal, error)

	// ListColleagues returns principals who share at least one live
	// organization with the given principal.
	ListColleagues(ctx context.Context, principalID uuid.UUID) ([]*models.Principal, error)
}
