package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

// RevenueReport aggregates the ledger over a date range. Sells contribute
// positive totals, deliveries and returns negative ones. ByDate carries the
// net per-day amounts; Income and Outcome sum the positive and negative
// contributions, with Outcome reported as a negative number.
// Balance = Income - |Outcome|.
type RevenueReport struct {
	ByDate  map[string]decimal.Decimal `json:"by_date"`
	Income  decimal.Decimal            `json:"income"`
	Outcome decimal.Decimal            `json:"outcome"`
	Balance decimal.Decimal            `json:"balance"`
}

func (s *Store) RevenueBetween(ctx context.Context, start, end time.Time) (*RevenueReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date,
		        SUM(CASE WHEN type = $1 THEN total ELSE -total END),
		        SUM(CASE WHEN type = $1 THEN total ELSE 0 END),
		        SUM(CASE WHEN type = $1 THEN 0 ELSE total END)
		 FROM transactions
		 WHERE date BETWEEN $2::date AND $3::date
		 GROUP BY date
		 ORDER BY date`, models.TransactionSell, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer rows.Close()

	report := &RevenueReport{ByDate: make(map[string]decimal.Decimal)}

	for rows.Next() {
		var date time.Time
		var net, in, out decimal.Decimal
		if err := rows.Scan(&date, &net, &in, &out); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}

		report.ByDate[date.Format("2006-01-02")] = net
		report.Income = report.Income.Add(in)
		report.Outcome = report.Outcome.Sub(out)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	report.Balance = report.Income.Sub(report.Outcome.Abs())

	return report, nil
}

type CustomerSales struct {
	CustomerID int64 `json:"customer_id"`
	Sales      int   `json:"sales"`
}

// ActivityReport holds the mean sell count per customer in a window and the
// customers strictly below mean*threshold.
type ActivityReport struct {
	AvgTransactionsPerCustomer float64         `json:"avg_transactions_per_customer"`
	UnderActive                []CustomerSales `json:"under_active"`
}

func (s *Store) CustomerActivity(ctx context.Context, start, end time.Time, thresholdRatio float64) (*ActivityReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, COUNT(*)
		 FROM transactions
		 WHERE type = $1 AND customer_id IS NOT NULL AND date BETWEEN $2::date AND $3::date
		 GROUP BY customer_id
		 ORDER BY customer_id`, models.TransactionSell, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate customer activity: %w", err)
	}
	defer rows.Close()

	var counts []CustomerSales
	totalSales := 0
	for rows.Next() {
		var c CustomerSales
		if err := rows.Scan(&c.CustomerID, &c.Sales); err != nil {
			return nil, fmt.Errorf("scan customer count: %w", err)
		}
		counts = append(counts, c)
		totalSales += c.Sales
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(counts) == 0 {
		return nil, database.ErrInsufficientData
	}

	report := &ActivityReport{
		AvgTransactionsPerCustomer: float64(totalSales) / float64(len(counts)),
	}

	cutoff := report.AvgTransactionsPerCustomer * thresholdRatio
	for _, c := range counts {
		if float64(c.Sales) < cutoff {
			report.UnderActive = append(report.UnderActive, c)
		}
	}

	return report, nil
}
