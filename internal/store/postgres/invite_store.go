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

// InviteStore implements store.InviteStore using PostgreSQL.
type InviteStore struct {
	pool *pgxpool.Pool
}

// NewInviteStore creates a new PostgreSQL-backed invite store.
// It shares the connection pool with other stores.
func NewInviteStore(pool *pgxpool.Pool) *InviteStore {
	return &InviteStore{
		pool: pool,
	}
}

// GetInvite retrieves an invite by ID.
func (s *InviteStore) GetInvite(ctx context.Context, inviteID uuid.UUID) (*models.Invite, error) {
	query := `
		SELECT invite_id, org_id, email, role, token, status, expires_at,
		       created_by, accepted_by, created_at, updated_at
		FROM invites
		WHERE invite_id = $1
	`

	invite, err := scanInvite(s.pool.QueryRow(ctx, query, inviteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}

	return invite, nil
}

// ListInvites returns an organization's invites, newest first.
func (s *InviteStore) ListInvites(ctx context.Context, orgID uuid.UUID, pendingOnly bool) ([]*models.Invite, error) {
	query := `
		SELECT invite_id, org_id, email, role, token, status, expires_at,
		       created_by, accepted_by, created_at, updated_at
		FROM invites
		WHERE org_id = $1
	`

	if pendingOnly {
		query += " AND status = 'pending'"
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}

	return invites, nil
}

func scanInvite(row pgx.Row) (*models.Invite, error) {
	var invite models.Invite
	err := row.Scan(
		&invite.InviteID,
		&invite.OrgID,
		&invite.Email,
		&invite.Role,
		&invite.Token,
		&invite.Status,
		&invite.ExpiresAt,
		&invite.CreatedBy,
		&invite.AcceptedBy,
		&invite.CreatedAt,
		&invite.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &invite, nil
}
