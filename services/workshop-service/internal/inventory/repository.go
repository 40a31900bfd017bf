package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/jackc/pgx/v5"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FindByPartNumberOrName(ctx context.Context, partNumber, name string) (Item, error) {
	partNumber = strings.TrimSpace(partNumber)
	if partNumber != "" {
		item, err := r.scanOne(ctx, `
			SELECT id, part_number, name, current_stock, unit_price
			FROM inventory_items
			WHERE part_number = $1
		`, partNumber)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Item{}, err
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, ErrNotFound
	}
	return r.scanOne(ctx, `
		SELECT id, part_number, name, current_stock, unit_price
		FROM inventory_items
		WHERE LOWER(name) = LOWER($1)
		ORDER BY current_stock DESC
		LIMIT 1
	`, name)
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&item.ID,
		&item.PartNumber,
		&item.Name,
		&item.CurrentStock,
		&item.UnitPrice,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}
