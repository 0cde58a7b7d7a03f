package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

type OffsetPage struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func (s *Store) ListGoods(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goods`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count goods: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, title, price, category_id, sold, created_at
		FROM goods
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list goods: %w", err)
	}
	defer rows.Close()

	var goods []models.Good
	for rows.Next() {
		var good models.Good
		err := rows.Scan(
			&good.ID,
			&good.Title,
			&good.Price,
			&good.CategoryID,
			&good.Sold,
			&good.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan good: %w", err)
		}
		goods = append(goods, good)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      goods,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

type GoodWithCategory struct {
	ID                  int64           `json:"id"`
	Title               string          `json:"title"`
	Price               decimal.Decimal `json:"price"`
	Sold                bool            `json:"sold"`
	CategoryTitle       string          `json:"category_title"`
	CategoryDescription string          `json:"category_description,omitempty"`
}

func (s *Store) ListGoodsByCategory(ctx context.Context) ([]GoodWithCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.title, g.price, g.sold, c.title, c.description
		 FROM goods g
		 LEFT JOIN categories c ON g.category_id = c.id
		 ORDER BY c.id, g.id`)
	if err != nil {
		return nil, fmt.Errorf("list goods by category: %w", err)
	}
	defer rows.Close()

	var goods []GoodWithCategory
	for rows.Next() {
		var g GoodWithCategory
		var catTitle, catDescription sql.NullString
		err := rows.Scan(&g.ID, &g.Title, &g.Price, &g.Sold, &catTitle, &catDescription)
		if err != nil {
			return nil, fmt.Errorf("scan good with category: %w", err)
		}
		g.CategoryTitle = catTitle.String
		g.CategoryDescription = catDescription.String
		goods = append(goods, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return goods, nil
}

// Identifiers are never interpolated at runtime: every countable table maps
// to a fixed query string.
var tableRowCountQueries = map[string]string{
	"categories":         `SELECT COUNT(*) FROM categories`,
	"goods":              `SELECT COUNT(*) FROM goods`,
	"customers":          `SELECT COUNT(*) FROM customers`,
	"locators":           `SELECT COUNT(*) FROM locators`,
	"deliveries":         `SELECT COUNT(*) FROM deliveries`,
	"transactions":       `SELECT COUNT(*) FROM transactions`,
	"category_discounts": `SELECT COUNT(*) FROM category_discounts`,
	"customer_discounts": `SELECT COUNT(*) FROM customer_discounts`,
}

func (s *Store) TableRowCount(ctx context.Context, table string) (int64, error) {
	query, ok := tableRowCountQueries[table]
	if !ok {
		return 0, &database.ValidationError{Field: "table", Reason: "unknown table"}
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}

	return count, nil
}

// ExecReadOnly runs an arbitrary query inside a read-only transaction, so
// external reporting layers can explore the store without any chance of
// mutating it.
func (s *Store) ExecReadOnly(ctx context.Context, query string) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	opts := database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       true,
	}

	err := database.WithTransaction(ctx, s.db, opts, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read columns: %w", err)
		}

		for rows.Next() {
			values := make([]interface{}, len(columns))
			pointers := make([]interface{}, len(columns))
			for i := range values {
				pointers[i] = &values[i]
			}
			if err := rows.Scan(pointers...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}

			row := make(map[string]interface{}, len(columns))
			for i, column := range columns {
				if b, ok := values[i].([]byte); ok {
					row[column] = string(b)
				} else {
					row[column] = values[i]
				}
			}
			results = append(results, row)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
