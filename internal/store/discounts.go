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

var one = decimal.NewFromInt(1)

func validateFraction(discount decimal.Decimal) error {
	if discount.IsNegative() || discount.GreaterThanOrEqual(one) {
		return &database.ValidationError{Field: "discount", Reason: "must be a fraction in [0,1)"}
	}
	return nil
}

func (s *Store) AddCategoryDiscount(ctx context.Context, categoryID int64, title string, discount decimal.Decimal, active bool) (*models.CategoryDiscount, error) {
	if err := validateFraction(discount); err != nil {
		return nil, err
	}

	record := &models.CategoryDiscount{}

	query := `
		INSERT INTO category_discounts (category_id, title, discount, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, category_id, title, discount, active`

	err := s.db.QueryRowContext(ctx, query, categoryID, title, discount, active).Scan(
		&record.ID,
		&record.CategoryID,
		&record.Title,
		&record.Discount,
		&record.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("create category discount: %w", err)
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpInsert, Subject: "category_discounts", Data: auditJSON(record)},
	})

	return record, nil
}

func (s *Store) AddCustomerDiscount(ctx context.Context, customerID int64, title string, discount decimal.Decimal, active bool) (*models.CustomerDiscount, error) {
	if err := validateFraction(discount); err != nil {
		return nil, err
	}

	record := &models.CustomerDiscount{}

	query := `
		INSERT INTO customer_discounts (customer_id, title, discount, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, customer_id, title, discount, active`

	err := s.db.QueryRowContext(ctx, query, customerID, title, discount, active).Scan(
		&record.ID,
		&record.CustomerID,
		&record.Title,
		&record.Discount,
		&record.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer discount: %w", err)
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpInsert, Subject: "customer_discounts", Data: auditJSON(record)},
	})

	return record, nil
}

// ResolveDiscount computes the effective sale fraction for a good and an
// optional customer.
func (s *Store) ResolveDiscount(ctx context.Context, goodID int64, customerID *int64) (decimal.Decimal, error) {
	return resolveDiscount(ctx, s.db, goodID, customerID)
}

// resolveDiscount applies the precedence rule: an active customer-level
// record always wins, even at a zero fraction, and suppresses any category
// discount. With several active records the lowest id (first created) is
// taken. Levels never stack.
func resolveDiscount(ctx context.Context, q querier, goodID int64, customerID *int64) (decimal.Decimal, error) {
	var discount decimal.Decimal

	if customerID != nil {
		err := q.QueryRowContext(ctx,
			`SELECT discount
			 FROM customer_discounts
			 WHERE customer_id = $1 AND active
			 ORDER BY id
			 LIMIT 1`, *customerID).Scan(&discount)
		if err == nil {
			return discount, nil
		}
		if err != sql.ErrNoRows {
			return decimal.Zero, fmt.Errorf("resolve customer discount: %w", err)
		}
	}

	err := q.QueryRowContext(ctx,
		`SELECT cd.discount
		 FROM goods g
		 JOIN category_discounts cd ON cd.category_id = g.category_id AND cd.active
		 WHERE g.id = $1
		 ORDER BY cd.id
		 LIMIT 1`, goodID).Scan(&discount)
	if err == nil {
		return discount, nil
	}
	if err != sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("resolve category discount: %w", err)
	}

	return decimal.Zero, nil
}
