package store

import (
	"context"
	"errors"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var validate = validator.New()

// Seed rows are the well-typed output of the external delimited-file
// collaborator. The ID on goods is the source file's row id and is only used
// for log messages; the store assigns its own good ids.
type CategoryRow struct {
	ID          int64  `validate:"gte=0"`
	Title       string `validate:"required"`
	Description string
}

type GoodRow struct {
	ID         int64
	Title      string `validate:"required"`
	Price      decimal.Decimal
	CategoryID int64 `validate:"gte=0"`
}

type CustomerRow struct {
	ID        int64  `validate:"gt=0"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Email     string `validate:"omitempty,email"`
	Gender    string
}

// Summary counts a batch: how many rows landed and how many were dropped.
// A dropped row never aborts the rest of the batch.
type Summary struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

func (s *Store) SeedCategories(ctx context.Context, rows []CategoryRow) Summary {
	var summary Summary
	for _, row := range rows {
		if err := validate.Struct(row); err != nil {
			s.log.Warn("category row skipped",
				zap.Int64("id", row.ID),
				zap.Error(err))
			summary.Skipped++
			continue
		}

		if _, err := s.AddCategory(ctx, row.ID, row.Title, row.Description); err != nil {
			s.log.Warn("category row skipped",
				zap.Int64("id", row.ID),
				zap.Error(err))
			summary.Skipped++
			continue
		}
		summary.Inserted++
	}
	return summary
}

func (s *Store) SeedGoods(ctx context.Context, rows []GoodRow) Summary {
	var summary Summary
	for _, row := range rows {
		if err := validate.Struct(row); err != nil {
			s.log.Warn("good row skipped",
				zap.Int64("source_id", row.ID),
				zap.Error(err))
			summary.Skipped++
			continue
		}

		if _, err := s.AddGoodUnits(ctx, row.Title, row.Price, row.CategoryID, 1); err != nil {
			s.log.Warn("good row skipped",
				zap.Int64("source_id", row.ID),
				zap.Error(err))
			summary.Skipped++
			continue
		}
		summary.Inserted++
	}
	return summary
}

// SeedCustomers inserts each row into customers and merges its contact data
// into locators. A malformed email does not drop the row: it moves into the
// customer note and the stored email stays empty.
func (s *Store) SeedCustomers(ctx context.Context, rows []CustomerRow) Summary {
	var summary Summary
	for _, row := range rows {
		email := row.Email
		note := ""

		if err := validate.Struct(row); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && onlyEmailFailed(verrs) {
				s.log.Warn("customer email moved to note",
					zap.Int64("id", row.ID),
					zap.String("email", row.Email))
				note = row.Email
				email = ""
			} else {
				s.log.Warn("customer row skipped",
					zap.Int64("id", row.ID),
					zap.Error(err))
				summary.Skipped++
				continue
			}
		}

		if _, err := s.AddCustomer(ctx, row.ID, row.FirstName, row.LastName, row.Gender, note); err != nil {
			s.log.Warn("customer row skipped",
				zap.Int64("id", row.ID),
				zap.Error(err))
			summary.Skipped++
			continue
		}

		if _, err := s.UpsertLocator(ctx, row.FirstName, row.LastName, email, note); err != nil {
			s.log.Warn("locator upsert failed",
				zap.Int64("customer_id", row.ID),
				zap.Error(err))
		}

		summary.Inserted++
	}
	return summary
}

func onlyEmailFailed(verrs validator.ValidationErrors) bool {
	for _, fe := range verrs {
		if fe.Field() != "Email" {
			return false
		}
	}
	return len(verrs) > 0
}
