package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditOp is the kind of mutation an audit entry records.
type AuditOp string

const (
	AuditOpInsert AuditOp = "insert"
	AuditOpUpdate AuditOp = "update"
	AuditOpDelete AuditOp = "delete"
)

// AuditEntry is an immutable record of one mutation to a governed row.
// Entries are append-only and never updated or deleted by normal flows.
type AuditEntry struct {
	AuditID   uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	TableName string
	RecordID  uuid.UUID
	Op        AuditOp
	Before    json.RawMessage // pre-image, nil for insert
	After     json.RawMessage // post-image, nil for delete
	ActorID   uuid.UUID
	CreatedAt time.Time
}

// RowOrgID implements policy.Row.
func (e *AuditEntry) RowOrgID() uuid.UUID { return e.OrgID }

// RowDeleted implements policy.Row.
func (e *AuditEntry) RowDeleted() bool { return false }
