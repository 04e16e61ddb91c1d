package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/store"
)

// ItemStore implements store.ItemStore using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new PostgreSQL-backed item store.
// It shares the connection pool with other stores.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{
		pool: pool,
	}
}

// GetItem retrieves an item by ID, including soft-deleted ones.
func (s *ItemStore) GetItem(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	query := `
		SELECT item_id, org_id, name, set_name, condition, status, price::text,
		       created_at, updated_at, deleted_at
		FROM items
		WHERE item_id = $1
	`

	item, err := scanItem(s.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// ListItems returns the live items of an organization, newest first.
func (s *ItemStore) ListItems(ctx context.Context, orgID uuid.UUID, filter store.ItemFilter) ([]*models.Item, error) {
	query := `
		SELECT item_id, org_id, name, set_name, condition, status, price::text,
		       created_at, updated_at, deleted_at
		FROM items
		WHERE org_id = $1 AND deleted_at IS NULL
	`

	args := []any{orgID}

	if filter.Status != nil {
		query += " AND status = $2"
		args = append(args, *filter.Status)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// scanItem scans one item row, converting the NUMERIC price from its text
// representation.
func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	var priceText string
	err := row.Scan(
		&item.ItemID,
		&item.OrgID,
		&item.Name,
		&item.SetName,
		&item.Condition,
		&item.Status,
		&priceText,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Price, err = decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse item price: %w", err)
	}

	return &item, nil
}
