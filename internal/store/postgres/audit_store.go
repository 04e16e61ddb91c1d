package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodysoft/cardstash/internal/models"
)

// AuditStore implements store.AuditStore using PostgreSQL. Entries are
// written by the audit recorder inside governed mutations; this store only
// reads them back.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new PostgreSQL-backed audit store.
// It shares the connection pool with other stores.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{
		pool: pool,
	}
}

// ListAuditEntries returns an organization's audit entries, newest first,
// capped at limit.
func (s *AuditStore) ListAuditEntries(ctx context.Context, orgID uuid.UUID, limit int32) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT audit_id, org_id, table_name, record_id, op,
		       before_image, after_image, actor_id, created_at
		FROM audit_entries
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		err := rows.Scan(
			&e.AuditID,
			&e.OrgID,
			&e.TableName,
			&e.RecordID,
			&e.Op,
			&e.Before,
			&e.After,
			&e.ActorID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
