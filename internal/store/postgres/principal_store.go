package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/store"
)

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
// It shares the connection pool with other stores.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{
		pool: pool,
	}
}

// Upsert creates the profile for a subject on first authentication, or
// refreshes email and name on subsequent ones. Emails are stored lowercased
// so invite matching is case-insensitive.
func (s *PrincipalStore) Upsert(ctx context.Context, subject, email, name string) (*models.Principal, error) {
	principalID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate principal id: %w", err)
	}

	query := `
		INSERT INTO profiles (principal_id, subject, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			updated_at = NOW()
		RETURNING principal_id, subject, email, name, created_at, updated_at
	`

	var p models.Principal
	err = s.pool.QueryRow(ctx, query,
		principalID,
		subject,
		strings.ToLower(email),
		name,
	).Scan(
		&p.PrincipalID,
		&p.Subject,
		&p.Email,
		&p.Name,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert principal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", p.PrincipalID.String()).
		Str("subject", subject).
		Msg("Upserted principal")

	return &p, nil
}

// GetPrincipal retrieves a principal by ID.
func (s *PrincipalStore) GetPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	query := `
		SELECT principal_id, subject, email, name, created_at, updated_at
		FROM profiles
		WHERE principal_id = $1
	`

	var p models.Principal
	err := s.pool.QueryRow(ctx, query, principalID).Scan(
		&p.PrincipalID,
		&p.Subject,
		&p.Email,
		&p.Name,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return &p, nil
}

// GetBySubject retrieves a principal by identity provider subject.
func (s *PrincipalStore) GetBySubject(ctx context.Context, subject string) (*models.Principal, error) {
	query := `
		SELECT principal_id, subject, email, name, created_at, updated_at
		FROM profiles
		WHERE subject = $1
	`

	var p models.Principal
	err := s.pool.QueryRow(ctx, query, subject).Scan(
		&p.PrincipalID,
		&p.Subject,
		&p.Email,
		&p.Name,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by subject: %w", err)
	}

	return &p, nil
}

// ListColleagues returns principals who share at least one live
// organization with the given principal.
func (s *PrincipalStore) ListColleagues(ctx context.Context, principalID uuid.UUID) ([]*models.Principal, error) {
	query := `
		SELECT DISTINCT p.principal_id, p.subject, p.email, p.name, p.created_at, p.updated_at
		FROM profiles p
		JOIN memberships m ON m.principal_id = p.principal_id
		JOIN organizations o ON o.org_id = m.org_id
		WHERE o.deleted_at IS NULL
		  AND p.principal_id <> $1
		  AND m.org_id IN (
			SELECT org_id FROM memberships WHERE principal_id = $1
		  )
		ORDER BY p.name
	`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list colleagues: %w", err)
	}
	defer rows.Close()

	var principals []*models.Principal
	for rows.Next() {
		var p models.Principal
		err := rows.Scan(
			&p.PrincipalID,
			&p.Subject,
			&p.Email,
			&p.Name,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan colleague: %w", err)
		}
		principals = append(principals, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating colleagues: %w", err)
	}

	return principals, nil
}
