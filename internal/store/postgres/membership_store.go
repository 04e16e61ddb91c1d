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

// MembershipStore implements store.MembershipStore using PostgreSQL. It
// also serves as the policy engine's membership source.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a new PostgreSQL-backed membership store.
// It shares the connection pool with other stores.
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{
		pool: pool,
	}
}

// LiveRolesForPrincipal returns the principal's role per organization.
// Soft-deleted organizations are excluded, which keeps them and everything
// they own out of reach of every policy predicate.
func (s *MembershipStore) LiveRolesForPrincipal(ctx context.Context, principalID uuid.UUID) (map[uuid.UUID]models.Role, error) {
	query := `
		SELECT m.org_id, m.role
		FROM memberships m
		JOIN organizations o ON o.org_id = m.org_id
		WHERE m.principal_id = $1 AND o.deleted_at IS NULL
	`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := make(map[uuid.UUID]models.Role)
	for rows.Next() {
		var orgID uuid.UUID
		var role models.Role
		if err := rows.Scan(&orgID, &role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles[orgID] = role
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}

// SharedOrganization reports whether two principals share at least one live
// organization.
func (s *MembershipStore) SharedOrganization(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM memberships ma
			JOIN memberships mb ON mb.org_id = ma.org_id
			JOIN organizations o ON o.org_id = ma.org_id
			WHERE ma.principal_id = $1
			  AND mb.principal_id = $2
			  AND o.deleted_at IS NULL
		)
	`

	var shared bool
	if err := s.pool.QueryRow(ctx, query, a, b).Scan(&shared); err != nil {
		return false, fmt.Errorf("failed to check shared organization: %w", err)
	}

	return shared, nil
}

// GetMembership retrieves the membership of a principal in an organization.
func (s *MembershipStore) GetMembership(ctx context.Context, orgID, principalID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT membership_id, org_id, principal_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = $1 AND principal_id = $2
	`

	var m models.Membership
	err := s.pool.QueryRow(ctx, query, orgID, principalID).Scan(
		&m.MembershipID,
		&m.OrgID,
		&m.PrincipalID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}

// ListMemberships returns all memberships of an organization, oldest first.
func (s *MembershipStore) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	query := `
		SELECT membership_id, org_id, principal_id, role, created_at, updated_at
		FROM memberships
		WHERE org_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		var m models.Membership
		err := rows.Scan(
			&m.MembershipID,
			&m.OrgID,
			&m.PrincipalID,
			&m.Role,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return memberships, nil
}
