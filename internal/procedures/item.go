package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
)

// CreateItemParams are the caller-supplied fields for a new item.
type CreateItemParams struct {
	OrgID     uuid.UUID
	Name      string
	SetName   string
	Condition string
	Status    models.ItemStatus
	Price     decimal.Decimal
}

// CreateItem adds an item to an organization's inventory. Admissibility is
// the items insert predicate: any member may add, but nobody can create an
// item born sold.
func (p *Procedures) CreateItem(ctx context.Context, actor *policy.Actor, params CreateItemParams) (*models.Item, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, fault.Validationf("item name must not be empty")
	}
	if params.Status == "" {
		params.Status = models.ItemStatusAvailable
	}
	if !params.Status.Valid() {
		return nil, fault.Validationf("invalid item status %q", params.Status)
	}
	if params.Price.IsNegative() {
		return nil, fault.Validationf("item price must not be negative")
	}

	itemID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate item id")
	}

	var item models.Item
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		txActor, err := actorTx(ctx, tx, actor)
		if err != nil {
			return err
		}

		next := &models.Item{
			ItemID:    itemID,
			OrgID:     params.OrgID,
			Name:      params.Name,
			SetName:   params.SetName,
			Condition: params.Condition,
			Status:    params.Status,
			Price:     params.Price,
		}
		if err := p.authorize(ctx, txActor, policy.OpInsert, policy.TableItems, nil, next); err != nil {
			return err
		}

		insert := `
			INSERT INTO items (item_id, org_id, name, set_name, condition, status, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING item_id, org_id, name, set_name, condition, status, price::text,
			          created_at, updated_at, deleted_at
		`
		err = scanItemRow(tx.QueryRow(ctx, insert,
			itemID,
			params.OrgID,
			params.Name,
			params.SetName,
			params.Condition,
			params.Status,
			params.Price,
		), &item)
		if err != nil {
			return fault.Internalf(err, "failed to insert item")
		}

		if err := p.recorder.Insert(ctx, tx, params.OrgID, "items", itemID, &item, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("org_id", params.OrgID.String()).
		Str("item_id", itemID.String()).
		Msg("Created item")

	return &item, nil
}

// UpdateItemParams are the optional fields of an item update. Nil fields
// are left unchanged.
type UpdateItemParams struct {
	Name      *string
	SetName   *string
	Condition *string
	Status    *models.ItemStatus
	Price     *decimal.Decimal
}

// UpdateItem applies a partial update to an item. The items update
// predicate forbids entering or leaving the sold status and moving the
// item between organizations; selling goes through MarkItemSold.
func (p *Procedures) UpdateItem(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, params UpdateItemParams) (*models.Item, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, fault.Validationf("invalid item status %q", *params.Status)
	}
	if params.Price != nil && params.Price.IsNegative() {
		return nil, fault.Validationf("item price must not be negative")
	}
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return nil, fault.Validationf("item name must not be empty")
	}

	var item models.Item
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		before, err := lockItemTx(ctx, tx, itemID)
		if err != nil {
			return err
		}

		next := *before
		if params.Name != nil {
			next.Name = strings.TrimSpace(*params.Name)
		}
		if params.SetName != nil {
			next.SetName = *params.SetName
		}
		if params.Condition != nil {
			next.Condition = *params.Condition
		}
		if params.Status != nil {
			next.Status = *params.Status
		}
		if params.Price != nil {
			next.Price = *params.Price
		}

		txActor, err := actorTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := p.authorize(ctx, txActor, policy.OpUpdate, policy.TableItems, before, &next); err != nil {
			return err
		}

		update := `
			UPDATE items
			SET name = $2, set_name = $3, condition = $4, status = $5, price = $6,
			    updated_at = NOW()
			WHERE item_id = $1
			RETURNING item_id, org_id, name, set_name, condition, status, price::text,
			          created_at, updated_at, deleted_at
		`
		err = scanItemRow(tx.QueryRow(ctx, update,
			itemID,
			next.Name,
			next.SetName,
			next.Condition,
			next.Status,
			next.Price,
		), &item)
		if err != nil {
			return fault.Internalf(err, "failed to update item")
		}

		if err := p.recorder.Update(ctx, tx, before.OrgID, "items", itemID, before, &item, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit item update")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// SoftDeleteItem marks an item deleted. Sold items keep their sale record;
// the item simply disappears from normal reads.
func (p *Procedures) SoftDeleteItem(ctx context.Context, actor *policy.Actor, itemID uuid.UUID) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		before, err := lockItemTx(ctx, tx, itemID)
		if err != nil {
			return err
		}

		txActor, err := actorTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := p.authorize(ctx, txActor, policy.OpDelete, policy.TableItems, before, nil); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE items SET deleted_at = NOW(), updated_at = NOW() WHERE item_id = $1`,
			itemID,
		); err != nil {
			return fault.Internalf(err, "failed to delete item")
		}

		if err := p.recorder.Delete(ctx, tx, before.OrgID, "items", itemID, before, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit item delete")
		}
		return nil
	})
}

// MarkItemSold atomically transitions an item to sold and records the
// sale. The item row is locked and the UPDATE itself is guarded on the
// available status, so an item sells at most once; a second attempt
// observes the sold status and gets Conflict.
func (p *Procedures) MarkItemSold(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, price decimal.Decimal, buyerInfo *string) (*models.Sale, error) {
	if price.IsNegative() {
		return nil, fault.Validationf("sale price must not be negative")
	}

	saleID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate sale id")
	}

	var sale models.Sale
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		before, err := lockItemTx(ctx, tx, itemID)
		if err != nil {
			return err
		}

		_, member, err := roleTx(ctx, tx, before.OrgID, actor.PrincipalID)
		if err != nil {
			return err
		}
		if !member {
			return fault.NotFoundf("item not found")
		}
		if before.Status != models.ItemStatusAvailable {
			return fault.Conflictf("item is not available")
		}

		after := *before
		after.Status = models.ItemStatusSold
		update := `
			UPDATE items
			SET status = 'sold', updated_at = NOW()
			WHERE item_id = $1 AND status = 'available'
			RETURNING updated_at
		`
		err = tx.QueryRow(ctx, update, itemID).Scan(&after.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.Conflictf("item is not available")
		}
		if err != nil {
			return fault.Internalf(err, "failed to mark item sold")
		}

		insert := `
			INSERT INTO sales (sale_id, org_id, item_id, price, buyer_info, sold_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING sold_at
		`
		sale = models.Sale{
			SaleID:    saleID,
			OrgID:     before.OrgID,
			ItemID:    itemID,
			Price:     price,
			BuyerInfo: buyerInfo,
			SoldBy:    actor.PrincipalID,
		}
		err = tx.QueryRow(ctx, insert,
			sale.SaleID,
			sale.OrgID,
			sale.ItemID,
			sale.Price,
			sale.BuyerInfo,
			sale.SoldBy,
		).Scan(&sale.SoldAt)
		if err != nil {
			if uniqueViolationOn(err, "sales_item_id_key") {
				return fault.Conflictf("item has already been sold")
			}
			return fault.Internalf(err, "failed to insert sale")
		}

		if err := p.recorder.Update(ctx, tx, before.OrgID, "items", itemID, before, &after, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit item sale")
		}
		if err := p.recorder.Insert(ctx, tx, before.OrgID, "sales", saleID, &sale, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", sale.OrgID.String()).
		Str("item_id", itemID.String()).
		Str("sale_id", saleID.String()).
		Msg("Marked item sold")

	return &sale, nil
}

// AddItemImage attaches an image metadata row to an item. The binary
// itself lives outside the core; only the path is governed.
func (p *Procedures) AddItemImage(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, path string, position int32) (*models.ItemImage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fault.Validationf("image path must not be empty")
	}
	if position < 0 {
		return nil, fault.Validationf("image position must not be negative")
	}

	imageID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate image id")
	}

	var img models.ItemImage
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		item, err := lockItemTx(ctx, tx, itemID)
		if err != nil {
			return err
		}

		next := &models.ItemImage{
			ImageID:  imageID,
			OrgID:    item.OrgID,
			ItemID:   itemID,
			Path:     path,
			Position: position,
		}
		txActor, err := actorTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := p.authorize(ctx, txActor, policy.OpInsert, policy.TableItemImages, nil, next); err != nil {
			return err
		}

		insert := `
			INSERT INTO item_images (image_id, org_id, item_id, path, position)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING image_id, org_id, item_id, path, position, created_at
		`
		err = tx.QueryRow(ctx, insert, imageID, item.OrgID, itemID, path, position).Scan(
			&img.ImageID,
			&img.OrgID,
			&img.ItemID,
			&img.Path,
			&img.Position,
			&img.CreatedAt,
		)
		if err != nil {
			return fault.Internalf(err, "failed to insert image")
		}

		if err := p.recorder.Insert(ctx, tx, item.OrgID, "item_images", imageID, &img, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit image")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &img, nil
}

// RemoveItemImage deletes an image metadata row.
func (p *Procedures) RemoveItemImage(ctx context.Context, actor *policy.Actor, imageID uuid.UUID) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		lock := `
			SELECT image_id, org_id, item_id, path, position, created_at
			FROM item_images
			WHERE image_id = $1
			FOR UPDATE
		`
		var before models.ItemImage
		err := tx.QueryRow(ctx, lock, imageID).Scan(
			&before.ImageID,
			&before.OrgID,
			&before.ItemID,
			&before.Path,
			&before.Position,
			&before.CreatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFoundf("image not found")
		}
		if err != nil {
			return fault.Internalf(err, "failed to lock image")
		}

		txActor, err := actorTx(ctx, tx, actor)
		if err != nil {
			return err
		}
		if err := p.authorize(ctx, txActor, policy.OpDelete, policy.TableItemImages, &before, nil); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM item_images WHERE image_id = $1`,
			imageID,
		); err != nil {
			return fault.Internalf(err, "failed to delete image")
		}

		if err := p.recorder.Delete(ctx, tx, before.OrgID, "item_images", imageID, &before, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit image delete")
		}
		return nil
	})
}

// authorize evaluates a policy predicate and converts denial into the
// taxonomy: non-members get NotFound so tenant existence never leaks,
// members get PermissionDenied.
func (p *Procedures) authorize(ctx context.Context, actor *policy.Actor, op policy.Op, table policy.Table, old, next policy.Row) error {
	ok, err := p.engine.Can(ctx, actor, op, table, old, next)
	if err != nil {
		return fault.Internalf(err, "failed to evaluate policy")
	}
	if ok {
		return nil
	}

	var orgID uuid.UUID
	if old != nil {
		orgID = old.RowOrgID()
	} else if next != nil {
		orgID = next.RowOrgID()
	}
	if !actor.MemberOf(orgID) {
		return fault.NotFoundf("%s not found", tableNoun(table))
	}
	return fault.PermissionDeniedf("%s %s denied", tableNoun(table), op)
}

func tableNoun(table policy.Table) string {
	switch table {
	case policy.TableItems:
		return "item"
	case policy.TableItemImages:
		return "image"
	case policy.TableOrganizations:
		return "organization"
	default:
		return string(table)
	}
}

// lockItemTx loads and locks a live item row. Soft-deleted items are
// reported as NotFound, same as absent ones.
func lockItemTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*models.Item, error) {
	query := `
		SELECT item_id, org_id, name, set_name, condition, status, price::text,
		       created_at, updated_at, deleted_at
		FROM items
		WHERE item_id = $1
		FOR UPDATE
	`

	var item models.Item
	err := scanItemRow(tx.QueryRow(ctx, query, itemID), &item)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFoundf("item not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to lock item")
	}
	if item.IsDeleted() {
		return nil, fault.NotFoundf("item not found")
	}
	return &item, nil
}

func scanItemRow(row pgx.Row, item *models.Item) error {
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
		return err
	}

	item.Price, err = decimal.NewFromString(priceText)
	if err != nil {
		return fmt.Errorf("failed to parse item price: %w", err)
	}
	return nil
}
