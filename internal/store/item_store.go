package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// ItemFilter narrows item listings.
type ItemFilter struct {
	Status *models.ItemStatus
}

// ItemStore defines read access to inventory items.
type ItemStore interface {
	// GetItem retrieves an item by ID, including soft-deleted ones.
	// Callers are responsible for policy filtering.
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.Item, error)

	// ListItems returns the live items of an organization, newest first.
	ListItems(ctx context.Context, orgID uuid.UUID, filter ItemFilter) ([]*models.Item, error)
}

// SaleStore defines read access to sale records.
type SaleStore interface {
	// GetSaleForItem retrieves the sale record for an item, if any.
	GetSaleForItem(ctx context.Context, itemID uuid.UUID) (*models.Sale, error)

	// ListSales returns an organization's sale records, newest first.
	ListSales(ctx context.Context, orgID uuid.UUID) ([]*models.Sale, error)
}

// ImageStore defines read access to item image metadata.
type ImageStore interface {
	// GetImage retrieves an image row by ID.
	GetImage(ctx context.Context, imageID uuid.UUID) (*models.ItemImage, error)

	// ListImages returns an item's image rows ordered by position.
	ListImages(ctx context.Context, itemID uuid.UUID) ([]*models.ItemImage, error)
}
