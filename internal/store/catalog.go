package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/audit"
	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

func (s *Store) AddCategory(ctx context.Context, id int64, title, description string) (*models.Category, error) {
	if title == "" {
		return nil, &database.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	category := &models.Category{}

	query := `
		INSERT INTO categories (id, title, description)
		VALUES ($1, $2, $3)
		RETURNING id, title, description, removed`

	err := s.db.QueryRowContext(ctx, query, id, title, description).Scan(
		&category.ID,
		&category.Title,
		&category.Description,
		&category.Removed,
	)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpInsert, Subject: "categories", Data: auditJSON(category)},
	})

	return category, nil
}

// RemoveCategory soft-deletes: the row stays, flagged as removed. The
// reserved uncategorized category cannot be removed.
func (s *Store) RemoveCategory(ctx context.Context, id int64) error {
	if id == models.DefaultCategoryID {
		return &database.ValidationError{Field: "id", Reason: "default category cannot be removed"}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE categories SET removed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCategoryNotFound
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpUpdate, Subject: "categories", Data: auditJSON(map[string]interface{}{"id": id, "removed": true})},
	})

	return nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	category := &models.Category{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, removed FROM categories WHERE id = $1`, id).Scan(
		&category.ID,
		&category.Title,
		&category.Description,
		&category.Removed,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

// AddGoodUnits inserts count identical one-unit rows. A category id that is
// missing from the catalog is accepted and stored as the default category.
func (s *Store) AddGoodUnits(ctx context.Context, title string, price decimal.Decimal, categoryID int64, count int) ([]models.Good, error) {
	var goods []models.Good
	var entries []audit.Entry

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var txErr error
		goods, entries, txErr = addGoodUnits(ctx, tx, title, price, categoryID, count)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.flushAudit(ctx, entries)

	return goods, nil
}

func addGoodUnits(ctx context.Context, q querier, title string, price decimal.Decimal, categoryID int64, count int) ([]models.Good, []audit.Entry, error) {
	if count < 0 {
		return nil, nil, &database.ValidationError{Field: "count", Reason: "must not be negative"}
	}
	if title == "" {
		return nil, nil, &database.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if price.IsNegative() {
		return nil, nil, &database.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	categoryID, err := effectiveCategoryID(ctx, q, categoryID)
	if err != nil {
		return nil, nil, err
	}

	query := `
		INSERT INTO goods (title, price, category_id)
		VALUES ($1, $2, $3)
		RETURNING id, title, price, category_id, sold, created_at`

	goods := make([]models.Good, 0, count)
	entries := make([]audit.Entry, 0, count)
	for i := 0; i < count; i++ {
		var good models.Good
		err := q.QueryRowContext(ctx, query, title, price, categoryID).Scan(
			&good.ID,
			&good.Title,
			&good.Price,
			&good.CategoryID,
			&good.Sold,
			&good.CreatedAt,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create good unit: %w", err)
		}
		goods = append(goods, good)
		entries = append(entries, audit.Entry{
			Operation: audit.OpInsert,
			Subject:   "goods",
			Data:      auditJSON(good),
		})
	}

	return goods, entries, nil
}

// effectiveCategoryID maps unknown or removed categories onto the default
// one. The foreign key is advisory, not enforced.
func effectiveCategoryID(ctx context.Context, q querier, categoryID int64) (int64, error) {
	if categoryID == models.DefaultCategoryID {
		return models.DefaultCategoryID, nil
	}

	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1 AND NOT removed)`,
		categoryID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check category exists: %w", err)
	}
	if !exists {
		return models.DefaultCategoryID, nil
	}
	return categoryID, nil
}

func (s *Store) GetGood(ctx context.Context, id int64) (*models.Good, error) {
	return getGood(ctx, s.db, id)
}

func getGood(ctx context.Context, q querier, id int64) (*models.Good, error) {
	good := &models.Good{}

	err := q.QueryRowContext(ctx,
		`SELECT id, title, price, category_id, sold, created_at FROM goods WHERE id = $1`, id).Scan(
		&good.ID,
		&good.Title,
		&good.Price,
		&good.CategoryID,
		&good.Sold,
		&good.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrGoodNotFound
		}
		return nil, fmt.Errorf("get good: %w", err)
	}

	return good, nil
}

func getGoodForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Good, error) {
	good := &models.Good{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, title, price, category_id, sold, created_at
		 FROM goods
		 WHERE id = $1
		 FOR UPDATE`, id).Scan(
		&good.ID,
		&good.Title,
		&good.Price,
		&good.CategoryID,
		&good.Sold,
		&good.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrGoodNotFound
		}
		return nil, fmt.Errorf("lock good: %w", err)
	}

	return good, nil
}

func (s *Store) IsAvailable(ctx context.Context, id int64) (bool, error) {
	good, err := getGood(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	return !good.Sold, nil
}

func (s *Store) PriceOf(ctx context.Context, id int64) (decimal.Decimal, error) {
	good, err := getGood(ctx, s.db, id)
	if err != nil {
		return decimal.Zero, err
	}
	return good.Price, nil
}

func (s *Store) MarkSold(ctx context.Context, id int64) error {
	entry, err := setSoldFlag(ctx, s.db, id, true)
	if err != nil {
		return err
	}
	s.flushAudit(ctx, []audit.Entry{entry})
	return nil
}

func (s *Store) MarkAvailable(ctx context.Context, id int64) error {
	entry, err := setSoldFlag(ctx, s.db, id, false)
	if err != nil {
		return err
	}
	s.flushAudit(ctx, []audit.Entry{entry})
	return nil
}

func setSoldFlag(ctx context.Context, q querier, id int64, sold bool) (audit.Entry, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE goods SET sold = $1 WHERE id = $2`, sold, id)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("update sold flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return audit.Entry{}, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return audit.Entry{}, database.ErrGoodNotFound
	}

	return audit.Entry{
		Operation: audit.OpUpdate,
		Subject:   "goods",
		Data:      auditJSON(map[string]interface{}{"id": id, "sold": sold}),
	}, nil
}
