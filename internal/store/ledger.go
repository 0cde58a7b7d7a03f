package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/audit"
	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

// DeliveryResult reports a completed intake: the delivery record, the
// materialized good units and the ledger row covering the batch cost.
type DeliveryResult struct {
	Delivery    models.Delivery    `json:"delivery"`
	Goods       []models.Good      `json:"goods"`
	Transaction models.Transaction `json:"transaction"`
}

// RecordDelivery takes in a single-article batch: one delivery record,
// quantity new available good units sharing the title/price/category, and
// one delivery ledger row for quantity*price.
func (s *Store) RecordDelivery(ctx context.Context, title string, price decimal.Decimal, categoryID int64, quantity int, note string) (*DeliveryResult, error) {
	if quantity < 0 {
		return nil, &database.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}

	var result DeliveryResult
	var entries []audit.Entry

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO deliveries (title, category_id, quantity, price, note)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, title, category_id, quantity, price, note, created_at`,
			title, categoryID, quantity, price, note).Scan(
			&result.Delivery.ID,
			&result.Delivery.Title,
			&result.Delivery.CategoryID,
			&result.Delivery.Quantity,
			&result.Delivery.Price,
			&result.Delivery.Note,
			&result.Delivery.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}
		entries = append(entries, audit.Entry{
			Operation: audit.OpInsert,
			Subject:   "deliveries",
			Data:      auditJSON(result.Delivery),
		})

		goods, goodEntries, err := addGoodUnits(ctx, tx, title, price, categoryID, quantity)
		if err != nil {
			return err
		}
		result.Goods = goods
		entries = append(entries, goodEntries...)

		total := price.Mul(decimal.NewFromInt(int64(quantity)))
		txn, err := appendTransaction(ctx, tx, transactionRow{
			Type:      models.TransactionDelivery,
			SubjectID: models.DeliverySubjectID,
			Quantity:  quantity,
			Total:     total,
			Discount:  decimal.Zero,
			Note:      note,
		})
		if err != nil {
			return err
		}
		result.Transaction = *txn
		entries = append(entries, audit.Entry{
			Operation: audit.OpInsert,
			Subject:   "transactions",
			Data:      auditJSON(txn),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flushAudit(ctx, entries)

	return &result, nil
}

// Sell moves one good unit from available to sold, charging the resolved
// discount. A missing or already sold good aborts with ErrGoodNotAvailable
// and no writes.
func (s *Store) Sell(ctx context.Context, goodID int64, customerID *int64) (*models.Transaction, error) {
	var txn *models.Transaction
	var entries []audit.Entry

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		good, err := getGoodForUpdate(ctx, tx, goodID)
		if err != nil {
			if errors.Is(err, database.ErrGoodNotFound) {
				return database.ErrGoodNotAvailable
			}
			return err
		}
		if good.Sold {
			return database.ErrGoodNotAvailable
		}

		discount, err := resolveDiscount(ctx, tx, goodID, customerID)
		if err != nil {
			return err
		}

		total := good.Price.Mul(one.Sub(discount)).Round(2)

		txn, err = appendTransaction(ctx, tx, transactionRow{
			Type:       models.TransactionSell,
			SubjectID:  goodID,
			CustomerID: customerID,
			Quantity:   1,
			Total:      total,
			Discount:   discount,
		})
		if err != nil {
			return err
		}
		entries = append(entries, audit.Entry{
			Operation: audit.OpInsert,
			Subject:   "transactions",
			Data:      auditJSON(txn),
		})

		soldEntry, err := setSoldFlag(ctx, tx, goodID, true)
		if err != nil {
			return err
		}
		entries = append(entries, soldEntry)

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flushAudit(ctx, entries)

	return txn, nil
}

// ReturnGood moves a sold good back to available. The return is booked at
// the total of the most recent prior sell of that good, so a discounted sale
// refunds what was actually charged. A missing or unsold good aborts with
// ErrGoodNotSold and no writes.
func (s *Store) ReturnGood(ctx context.Context, goodID int64) (*models.Transaction, error) {
	var txn *models.Transaction
	var entries []audit.Entry

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		good, err := getGoodForUpdate(ctx, tx, goodID)
		if err != nil {
			if errors.Is(err, database.ErrGoodNotFound) {
				return database.ErrGoodNotSold
			}
			return err
		}
		if !good.Sold {
			return database.ErrGoodNotSold
		}

		var total decimal.Decimal
		err = tx.QueryRowContext(ctx,
			`SELECT total
			 FROM transactions
			 WHERE subject_id = $1 AND type = $2
			 ORDER BY id DESC
			 LIMIT 1`, goodID, models.TransactionSell).Scan(&total)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrGoodNotSold
			}
			return fmt.Errorf("find sell transaction: %w", err)
		}

		txn, err = appendTransaction(ctx, tx, transactionRow{
			Type:      models.TransactionReturn,
			SubjectID: goodID,
			Quantity:  1,
			Total:     total,
			Discount:  decimal.Zero,
		})
		if err != nil {
			return err
		}
		entries = append(entries, audit.Entry{
			Operation: audit.OpInsert,
			Subject:   "transactions",
			Data:      auditJSON(txn),
		})

		availableEntry, err := setSoldFlag(ctx, tx, goodID, false)
		if err != nil {
			return err
		}
		entries = append(entries, availableEntry)

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flushAudit(ctx, entries)

	return txn, nil
}

type transactionRow struct {
	Type       string
	SubjectID  int64
	CustomerID *int64
	Quantity   int
	Total      decimal.Decimal
	Discount   decimal.Decimal
	Note       string
}

func appendTransaction(ctx context.Context, q querier, row transactionRow) (*models.Transaction, error) {
	txn := &models.Transaction{}

	query := `
		INSERT INTO transactions (type, subject_id, customer_id, quantity, total, discount, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, type, subject_id, customer_id, quantity, total, discount, note, date`

	var customerID sql.NullInt64
	if row.CustomerID != nil {
		customerID = sql.NullInt64{Int64: *row.CustomerID, Valid: true}
	}

	var scannedCustomer sql.NullInt64
	err := q.QueryRowContext(ctx, query,
		row.Type, row.SubjectID, customerID, row.Quantity, row.Total, row.Discount, row.Note).Scan(
		&txn.ID,
		&txn.Type,
		&txn.SubjectID,
		&scannedCustomer,
		&txn.Quantity,
		&txn.Total,
		&txn.Discount,
		&txn.Note,
		&txn.Date,
	)
	if err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	if scannedCustomer.Valid {
		txn.CustomerID = &scannedCustomer.Int64
	}

	return txn, nil
}

// TransactionsForGood returns the ledger rows for one good, oldest first.
// The ledger is append-only; this is a read of history, never a mutation.
func (s *Store) TransactionsForGood(ctx context.Context, goodID int64) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, subject_id, customer_id, quantity, total, discount, note, date
		 FROM transactions
		 WHERE subject_id = $1
		 ORDER BY id`, goodID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var txn models.Transaction
		var customerID sql.NullInt64
		err := rows.Scan(
			&txn.ID,
			&txn.Type,
			&txn.SubjectID,
			&customerID,
			&txn.Quantity,
			&txn.Total,
			&txn.Discount,
			&txn.Note,
			&txn.Date,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if customerID.Valid {
			txn.CustomerID = &customerID.Int64
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return txns, nil
}
