package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

type itemRepository struct {
	q querier
}

const itemColumns = `
	id, seller_id, title, description, price, category, condition,
	location, is_negotiable, status, version, created_at, updated_at`

func (r *itemRepository) Create(item domain.Item) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO items (
			id, seller_id, title, description, price, category, condition,
			location, is_negotiable, status, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		item.ID, item.SellerID, item.Title, item.Description, item.Price,
		item.Category, item.Condition, item.Location, item.IsNegotiable,
		string(item.Status), item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *itemRepository) Get(id string) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1
	`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (r *itemRepository) ListBySeller(sellerID string, limit int) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE seller_id = $1
		ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+` LIMIT $2`, sellerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, sellerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list items by seller: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (r *itemRepository) Save(item domain.Item) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE items
		SET title = $2, description = $3, price = $4, category = $5,
		    condition = $6, location = $7, is_negotiable = $8, status = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11
	`,
		item.ID, item.Title, item.Description, item.Price, item.Category,
		item.Condition, item.Location, item.IsNegotiable, string(item.Status),
		time.Now().UTC(), item.Version,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for item update: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item   domain.Item
		status string
	)
	if err := row.Scan(
		&item.ID, &item.SellerID, &item.Title, &item.Description, &item.Price,
		&item.Category, &item.Condition, &item.Location, &item.IsNegotiable,
		&status, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return domain.Item{}, err
	}
	item.Status = domain.ItemStatus(status)
	return item, nil
}

var _ domain.ItemRepository = (*itemRepository)(nil)
