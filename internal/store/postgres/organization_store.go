package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// GetOrganization retrieves an organization by ID, including soft-deleted ones.
func (s *OrganizationStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, slug, created_at, updated_at, deleted_at
		FROM organizations
		WHERE org_id = $1
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.CreatedAt,
		&org.UpdatedAt,
		&org.DeletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// GetOrganizationBySlug retrieves a live organization by slug.
func (s *OrganizationStore) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `
		SELECT org_id, name, slug, created_at, updated_at, deleted_at
		FROM organizations
		WHERE slug = $1 AND deleted_at IS NULL
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, slug).Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.CreatedAt,
		&org.UpdatedAt,
		&org.DeletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization by slug: %w", err)
	}

	return &org, nil
}

// ListForPrincipal returns the live organizations a principal belongs to,
// with the principal's role in each, newest membership first.
func (s *OrganizationStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*store.OrganizationWithRole, error) {
	query := `
		SELECT o.org_id, o.name, o.slug, o.created_at, o.updated_at, o.deleted_at, m.role
		FROM organizations o
		JOIN memberships m ON m.org_id = o.org_id
		WHERE m.principal_id = $1 AND o.deleted_at IS NULL
		ORDER BY m.created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var results []*store.OrganizationWithRole
	for rows.Next() {
		var org models.Organization
		var role models.Role
		err := rows.Scan(
			&org.OrgID,
			&org.Name,
			&org.Slug,
			&org.CreatedAt,
			&org.UpdatedAt,
			&org.DeletedAt,
			&role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		results = append(results, &store.OrganizationWithRole{Organization: &org, Role: role})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return results, nil
}
