package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale records the sale of an inventory item. Created exactly once per
// item transition into sold, immutable thereafter.
type Sale struct {
	SaleID    uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	ItemID    uuid.UUID // unique, at most one sale per item
	Price     decimal.Decimal
	BuyerInfo *string
	SoldBy    uuid.UUID // acting principal
	SoldAt    time.Time
}

// RowOrgID implements policy.Row.
func (s *Sale) RowOrgID() uuid.UUID { return s.OrgID }

// RowDeleted implements policy.Row.
func (s *Sale) RowDeleted() bool { return false }
