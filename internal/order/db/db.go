package db

import (
	"context"
	"time"

	"ms-storefront/internal/database"
	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun           *bun.DB
	MaxTxAttempts int
}

// Queries is the order data access bound to one transaction.
type Queries struct {
	idb bun.IDB
}

// InTx runs fn in a transaction, retrying on version conflicts.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, q *Queries) error) error {
	return database.RunInTx(ctx, d.Bun, d.MaxTxAttempts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Queries{idb: tx})
	})
}

// ---------------- READS ----------------

// GetOrderWithItems reads an order and its line items outside a transaction.
func (d *DB) GetOrderWithItems(ctx context.Context, id string) (*models.Order, error) {
	q := &Queries{idb: d.Bun}
	order, err := q.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items, err = q.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns sql.ErrNoRows when the order does not exist.
func (q *Queries) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := q.idb.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (q *Queries) GetItem(ctx context.Context, id string) (*models.OrderLineItem, error) {
	var item models.OrderLineItem
	err := q.idb.NewSelect().
		Model(&item).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns the order's line items ordered by ID.
func (q *Queries) ListItems(ctx context.Context, orderID string) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := q.idb.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- WRITES ----------------

// InsertOrder stores a new order together with its line items.
func (q *Queries) InsertOrder(ctx context.Context, order *models.Order, items []models.OrderLineItem) error {
	if _, err := q.idb.NewInsert().Model(order).Exec(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	_, err := q.idb.NewInsert().Model(&items).Exec(ctx)
	return err
}

// UpdateItem writes an item's quantity and discount.
func (q *Queries) UpdateItem(ctx context.Context, item *models.OrderLineItem, now time.Time) error {
	item.UpdatedAt = now
	res, err := q.idb.NewUpdate().
		Model(item).
		Column("quantity", "discount", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return database.CheckAffected(res, "order item")
}

// UpdateOrder writes the given columns plus version and updated_at, guarded by
// the version the order was read with. A lost race yields database.ErrConflict.
func (q *Queries) UpdateOrder(ctx context.Context, order *models.Order, now time.Time, columns ...string) error {
	readVersion := order.Version
	order.Version = readVersion + 1
	order.UpdatedAt = now

	res, err := q.idb.NewUpdate().
		Model(order).
		Column(append(columns, "version", "updated_at")...).
		WherePK().
		Where("version = ?", readVersion).
		Exec(ctx)
	if err != nil {
		order.Version = readVersion
		return err
	}
	if err := database.CheckAffected(res, "order"); err != nil {
		order.Version = readVersion
		return err
	}
	return nil
}
