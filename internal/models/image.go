package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemImage references a stored card image by path. The core authorizes
// and audits the metadata row only, never the binary transfer.
type ItemImage struct {
	ImageID   uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	ItemID    uuid.UUID
	Path      string
	Position  int32
	CreatedAt time.Time
}

// RowOrgID implements policy.Row.
func (i *ItemImage) RowOrgID() uuid.UUID { return i.OrgID }

// RowDeleted implements policy.Row.
func (i *ItemImage) RowDeleted() bool { return false }
