package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// ArchiveOrder stores the final snapshot of a terminal order.
func (d *Database) ArchiveOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, asset_id, side, price, qty, filled_qty, status, instance_id, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filled_qty = excluded.filled_qty,
			status = excluded.status,
			closed_at = excluded.closed_at
	`, o.ID, o.AssetID, o.Side, o.Price, o.Qty, o.FilledQty, o.Status, o.InstanceID, o.CreatedAt, o.ClosedAt)
	if err != nil {
		return fmt.Errorf("archive order: %w", err)
	}
	return nil
}

// CreateFill stores a fill row.
func (d *Database) CreateFill(ctx context.Context, f Fill) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO fills (id, order_id, asset_id, side, price, qty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OrderID, f.AssetID, f.Side, f.Price, f.Qty, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create fill: %w", err)
	}
	return nil
}

// GetOrder fetches one archived order by id.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, asset_id, side, price, qty, filled_qty, status, COALESCE(instance_id, ''), created_at, closed_at
		FROM orders WHERE id = ?
	`, id)

	var o Order
	err := row.Scan(&o.ID, &o.AssetID, &o.Side, &o.Price, &o.Qty, &o.FilledQty, &o.Status, &o.InstanceID, &o.CreatedAt, &o.ClosedAt)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrdersByAsset lists archived orders for an asset, newest first.
func (d *Database) GetOrdersByAsset(ctx context.Context, assetID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, asset_id, side, price, qty, filled_qty, status, COALESCE(instance_id, ''), created_at, closed_at
		FROM orders WHERE asset_id = ?
		ORDER BY closed_at DESC LIMIT ?
	`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.AssetID, &o.Side, &o.Price, &o.Qty, &o.FilledQty, &o.Status, &o.InstanceID, &o.CreatedAt, &o.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetFillsByOrder lists fills applied to an order.
func (d *Database) GetFillsByOrder(ctx context.Context, orderID string) ([]Fill, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, asset_id, side, price, qty, created_at
		FROM fills WHERE order_id = ?
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.AssetID, &f.Side, &f.Price, &f.Qty, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// UpsertMarket stores or refreshes a discovered market.
func (d *Database) UpsertMarket(ctx context.Context, m Market) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO markets (condition_id, slug, question, liquidity, volume, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(condition_id) DO UPDATE SET
			slug = excluded.slug,
			question = excluded.question,
			liquidity = excluded.liquidity,
			volume = excluded.volume,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`, m.ConditionID, m.Slug, m.Question, m.Liquidity, m.Volume, m.Active)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}
