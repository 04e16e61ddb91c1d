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

// ImageStore implements store.ImageStore using PostgreSQL.
type ImageStore struct {
	pool *pgxpool.Pool
}

// NewImageStore creates a new PostgreSQL-backed image metadata store.
// It shares the connection pool with other stores.
func NewImageStore(pool *pgxpool.Pool) *ImageStore {
	return &ImageStore{
		pool: pool,
	}
}

// GetImage retrieves an image row by ID.
func (s *ImageStore) GetImage(ctx context.Context, imageID uuid.UUID) (*models.ItemImage, error) {
	query := `
		SELECT image_id, org_id, item_id, path, position, created_at
		FROM item_images
		WHERE image_id = $1
	`

	var img models.ItemImage
	err := s.pool.QueryRow(ctx, query, imageID).Scan(
		&img.ImageID,
		&img.OrgID,
		&img.ItemID,
		&img.Path,
		&img.Position,
		&img.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrImageNotFound
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return &img, nil
}

// ListImages returns an item's image rows ordered by position.
func (s *ImageStore) ListImages(ctx context.Context, itemID uuid.UUID) ([]*models.ItemImage, error) {
	query := `
		SELECT image_id, org_id, item_id, path, position, created_at
		FROM item_images
		WHERE item_id = $1
		ORDER BY position ASC, created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []*models.ItemImage
	for rows.Next() {
		var img models.ItemImage
		err := rows.Scan(
			&img.ImageID,
			&img.OrgID,
			&img.ItemID,
			&img.Path,
			&img.Position,
			&img.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, &img)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}

	return images, nil
}
