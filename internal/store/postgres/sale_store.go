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

// SaleStore implements store.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a new PostgreSQL-backed sale store.
// It shares the connection pool with other stores.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{
		pool: pool,
	}
}

// GetSaleForItem retrieves the sale record for an item, if any.
func (s *SaleStore) GetSaleForItem(ctx context.Context, itemID uuid.UUID) (*models.Sale, error) {
	query := `
		SELECT sale_id, org_id, item_id, price::text, buyer_info, sold_by, sold_at
		FROM sales
		WHERE item_id = $1
	`

	sale, err := scanSale(s.pool.QueryRow(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	return sale, nil
}

// ListSales returns an organization's sale records, newest first.
func (s *SaleStore) ListSales(ctx context.Context, orgID uuid.UUID) ([]*models.Sale, error) {
	query := `
		SELECT sale_id, org_id, item_id, price::text, buyer_info, sold_by, sold_at
		FROM sales
		WHERE org_id = $1
		ORDER BY sold_at DESC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	return sales, nil
}

func scanSale(row pgx.Row) (*models.Sale, error) {
	var sale models.Sale
	var priceText string
	err := row.Scan(
		&sale.SaleID,
		&sale.OrgID,
		&sale.ItemID,
		&priceText,
		&sale.BuyerInfo,
		&sale.SoldBy,
		&sale.SoldAt,
	)
	if err != nil {
		return nil, err
	}

	sale.Price, err = decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sale price: %w", err)
	}

	return &sale, nil
}
