package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus represents the lifecycle status of an inventory item.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusReserved  ItemStatus = "reserved"
	ItemStatusSold      ItemStatus = "sold"
)

// Valid returns true if the status is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusAvailable, ItemStatusReserved, ItemStatusSold:
		return true
	}
	return false
}

// Item represents a card in an organization's inventory.
type Item struct {
	ItemID    uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	Name      string
	SetName   string
	Condition string
	Status    ItemStatus
	Price     decimal.Decimal // asking price
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // soft delete marker
}

// IsDeleted returns true if the item has been soft-deleted.
func (i *Item) IsDeleted() bool {
	return i.DeletedAt != nil
}

// RowOrgID implements policy.Row.
func (i *Item) RowOrgID() uuid.UUID { return i.OrgID }

// RowDeleted implements policy.Row.
func (i *Item) RowDeleted() bool { return i.IsDeleted() }
