package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/avdeev/go-market/internal/audit"
	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

func (s *Store) AddCustomer(ctx context.Context, id int64, firstName, lastName, gender, note string) (*models.Customer, error) {
	if strings.TrimSpace(firstName) == "" {
		return nil, &database.ValidationError{Field: "first_name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(lastName) == "" {
		return nil, &database.ValidationError{Field: "last_name", Reason: "must not be empty"}
	}

	customer := &models.Customer{}

	query := `
		INSERT INTO customers (id, first_name, last_name, gender, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, first_name, last_name, gender, note, removed`

	err := s.db.QueryRowContext(ctx, query, id, firstName, lastName, normalizeGender(gender), note).Scan(
		&customer.ID,
		&customer.FirstName,
		&customer.LastName,
		&customer.Gender,
		&customer.Note,
		&customer.Removed,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpInsert, Subject: "customers", Data: auditJSON(customer)},
	})

	return customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	customer := &models.Customer{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, gender, note, removed FROM customers WHERE id = $1`, id).Scan(
		&customer.ID,
		&customer.FirstName,
		&customer.LastName,
		&customer.Gender,
		&customer.Note,
		&customer.Removed,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

// UpsertLocator inserts contact data for a new (first_name, last_name) pair.
// For a known pair the incoming email and note are appended onto the stored
// note, never overwriting it, so the table keeps one row per pair.
func (s *Store) UpsertLocator(ctx context.Context, firstName, lastName, email, note string) (*models.Locator, error) {
	if strings.TrimSpace(firstName) == "" {
		return nil, &database.ValidationError{Field: "first_name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(lastName) == "" {
		return nil, &database.ValidationError{Field: "last_name", Reason: "must not be empty"}
	}

	locator := &models.Locator{}

	err := s.db.QueryRowContext(ctx,
		`SELECT first_name, last_name, email, note FROM locators WHERE first_name = $1 AND last_name = $2`,
		firstName, lastName).Scan(
		&locator.FirstName,
		&locator.LastName,
		&locator.Email,
		&locator.Note,
	)
	if err == sql.ErrNoRows {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO locators (first_name, last_name, email, note)
			 VALUES ($1, $2, $3, $4)
			 RETURNING first_name, last_name, email, note`,
			firstName, lastName, email, note).Scan(
			&locator.FirstName,
			&locator.LastName,
			&locator.Email,
			&locator.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("create locator: %w", err)
		}

		s.flushAudit(ctx, []audit.Entry{
			{Operation: audit.OpInsert, Subject: "locators", Data: auditJSON(locator)},
		})

		return locator, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get locator: %w", err)
	}

	merged := locator.Note + email + " " + note + "; "
	err = s.db.QueryRowContext(ctx,
		`UPDATE locators SET note = $1 WHERE first_name = $2 AND last_name = $3
		 RETURNING first_name, last_name, email, note`,
		merged, firstName, lastName).Scan(
		&locator.FirstName,
		&locator.LastName,
		&locator.Email,
		&locator.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("merge locator: %w", err)
	}

	s.flushAudit(ctx, []audit.Entry{
		{Operation: audit.OpUpdate, Subject: "locators", Data: auditJSON(locator)},
	})

	return locator, nil
}

func (s *Store) GetLocator(ctx context.Context, firstName, lastName string) (*models.Locator, error) {
	locator := &models.Locator{}

	err := s.db.QueryRowContext(ctx,
		`SELECT first_name, last_name, email, note FROM locators WHERE first_name = $1 AND last_name = $2`,
		firstName, lastName).Scan(
		&locator.FirstName,
		&locator.LastName,
		&locator.Email,
		&locator.Note,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get locator: %w", err)
	}

	return locator, nil
}

func normalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case models.GenderMale:
		return models.GenderMale
	case models.GenderFemale:
		return models.GenderFemale
	default:
		return models.GenderUnknown
	}
}
