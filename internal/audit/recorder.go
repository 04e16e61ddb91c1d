// Package audit writes the append-only change log for governed tables.
//
// Every governed mutation records one entry synchronously within the same
// transaction as the mutation itself. A failed audit write aborts the whole
// transaction; an entry is never silently dropped.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/moodysoft/cardstash/internal/models"
)

// Recorder appends audit entries inside a caller-supplied transaction.
type Recorder struct{}

// NewRecorder creates an audit recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Insert records the creation of a governed row.
func (r *Recorder) Insert(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, table string, recordID uuid.UUID, after any, actorID uuid.UUID) error {
	return r.record(ctx, tx, orgID, table, recordID, models.AuditOpInsert, nil, after, actorID)
}

// Update records a change to a governed row with its pre- and post-images.
func (r *Recorder) Update(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, table string, recordID uuid.UUID, before, after any, actorID uuid.UUID) error {
	return r.record(ctx, tx, orgID, table, recordID, models.AuditOpUpdate, before, after, actorID)
}

// Delete records the removal of a governed row with its pre-image.
func (r *Recorder) Delete(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, table string, recordID uuid.UUID, before any, actorID uuid.UUID) error {
	return r.record(ctx, tx, orgID, table, recordID, models.AuditOpDelete, before, nil, actorID)
}

func (r *Recorder) record(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, table string, recordID uuid.UUID, op models.AuditOp, before, after any, actorID uuid.UUID) error {
	auditID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate audit id: %w", err)
	}

	beforeJSON, err := marshalImage(before)
	if err != nil {
		return fmt.Errorf("failed to marshal before-image: %w", err)
	}
	afterJSON, err := marshalImage(after)
	if err != nil {
		return fmt.Errorf("failed to marshal after-image: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			audit_id, org_id, table_name, record_id, op,
			before_image, after_image, actor_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)
	`

	_, err = tx.Exec(ctx, query,
		auditID,
		orgID,
		table,
		recordID,
		op,
		beforeJSON,
		afterJSON,
		actorID,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

func marshalImage(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
