package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/database"
	"github.com/avdeev/go-market/internal/models"
)

func TestRecordDelivery(t *testing.T) {
	st, db, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCategory(ctx, 1, "Tools", "Hand tools"); err != nil {
		t.Fatalf("Add category: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 1, 3, "first batch")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	if len(result.Goods) != 3 {
		t.Fatalf("Expected 3 good units, got %d", len(result.Goods))
	}
	for _, good := range result.Goods {
		if good.Sold {
			t.Errorf("Good %d should be available after delivery", good.ID)
		}
		if !good.Price.Equal(decimal.NewFromInt(100)) {
			t.Errorf("Expected unit price 100, got %s", good.Price)
		}
		if good.CategoryID != 1 {
			t.Errorf("Expected category 1, got %d", good.CategoryID)
		}
	}

	txn := result.Transaction
	if txn.Type != models.TransactionDelivery {
		t.Errorf("Expected delivery transaction, got %s", txn.Type)
	}
	if txn.SubjectID != models.DeliverySubjectID {
		t.Errorf("Expected sentinel subject id %d, got %d", models.DeliverySubjectID, txn.SubjectID)
	}
	if !txn.Total.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected total 300, got %s", txn.Total)
	}
	if txn.Quantity != 3 {
		t.Errorf("Expected quantity 3, got %d", txn.Quantity)
	}
	if !txn.Discount.IsZero() {
		t.Errorf("Expected zero discount, got %s", txn.Discount)
	}

	var deliveries int
	if err := db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&deliveries); err != nil {
		t.Fatalf("Count deliveries: %v", err)
	}
	if deliveries != 1 {
		t.Errorf("Expected 1 delivery row, got %d", deliveries)
	}
}

func TestRecordDeliveryNegativeQuantity(t *testing.T) {
	st, db, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, -1, "")
	if !database.IsValidation(err) {
		t.Fatalf("Expected validation error, got: %v", err)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&rows); err != nil {
		t.Fatalf("Count deliveries: %v", err)
	}
	if rows != 0 {
		t.Errorf("Delivery row written despite validation failure")
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&rows); err != nil {
		t.Fatalf("Count transactions: %v", err)
	}
	if rows != 0 {
		t.Errorf("Ledger row written despite validation failure")
	}
}

func TestSell(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	txn, err := st.Sell(ctx, goodID, nil)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	if txn.Type != models.TransactionSell {
		t.Errorf("Expected sell transaction, got %s", txn.Type)
	}
	if txn.SubjectID != goodID {
		t.Errorf("Expected subject %d, got %d", goodID, txn.SubjectID)
	}
	if txn.Quantity != 1 {
		t.Errorf("A sale is always one unit, got quantity %d", txn.Quantity)
	}
	if !txn.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total 100, got %s", txn.Total)
	}
	if txn.CustomerID != nil {
		t.Errorf("Expected nil customer, got %d", *txn.CustomerID)
	}

	available, err := st.IsAvailable(ctx, goodID)
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if available {
		t.Error("Good should be sold")
	}
}

func TestSellNotAvailable(t *testing.T) {
	st, db, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	if _, err := st.Sell(ctx, goodID, nil); err != nil {
		t.Fatalf("First sell: %v", err)
	}

	_, err = st.Sell(ctx, goodID, nil)
	if !errors.Is(err, database.ErrGoodNotAvailable) {
		t.Fatalf("Expected ErrGoodNotAvailable, got: %v", err)
	}

	var sells int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE type = 'sell'`).Scan(&sells); err != nil {
		t.Fatalf("Count sells: %v", err)
	}
	if sells != 1 {
		t.Errorf("Expected exactly 1 sell row, got %d", sells)
	}
}

func TestSellUnknownGood(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.Sell(context.Background(), 424242, nil)
	if !errors.Is(err, database.ErrGoodNotAvailable) {
		t.Fatalf("Expected ErrGoodNotAvailable, got: %v", err)
	}
}

func TestSellReturnRoundTrip(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	sellTxn, err := st.Sell(ctx, goodID, nil)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	returnTxn, err := st.ReturnGood(ctx, goodID)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}

	if !returnTxn.Total.Equal(sellTxn.Total) {
		t.Errorf("Return total %s should match sell total %s", returnTxn.Total, sellTxn.Total)
	}

	available, err := st.IsAvailable(ctx, goodID)
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if !available {
		t.Error("Good should be available again after return")
	}

	txns, err := st.TransactionsForGood(ctx, goodID)
	if err != nil {
		t.Fatalf("TransactionsForGood: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("Expected 2 ledger rows, got %d", len(txns))
	}
	if txns[0].Type != models.TransactionSell || txns[1].Type != models.TransactionReturn {
		t.Errorf("Expected sell then return, got %s then %s", txns[0].Type, txns[1].Type)
	}

	// Net contribution over the pair is zero: one positive sell, one
	// negative return of the same magnitude.
	if !txns[0].Total.Sub(txns[1].Total).IsZero() {
		t.Errorf("Sell/return pair should net to zero")
	}
}

func TestReturnTwice(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	if _, err := st.Sell(ctx, goodID, nil); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if _, err := st.ReturnGood(ctx, goodID); err != nil {
		t.Fatalf("First return: %v", err)
	}

	_, err = st.ReturnGood(ctx, goodID)
	if !errors.Is(err, database.ErrGoodNotSold) {
		t.Fatalf("Expected ErrGoodNotSold, got: %v", err)
	}

	txns, err := st.TransactionsForGood(ctx, goodID)
	if err != nil {
		t.Fatalf("TransactionsForGood: %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("Second return must not write, ledger has %d rows", len(txns))
	}

	available, err := st.IsAvailable(ctx, goodID)
	if err != nil {
		t.Fatalf("IsAvailable: %v", err)
	}
	if !available {
		t.Error("State changed by failed return")
	}
}

func TestReturnUnsoldGood(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	_, err = st.ReturnGood(ctx, result.Goods[0].ID)
	if !errors.Is(err, database.ErrGoodNotSold) {
		t.Fatalf("Expected ErrGoodNotSold, got: %v", err)
	}
}

func TestDeliveryBatchExhausted(t *testing.T) {
	st, db, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 3, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	for _, good := range result.Goods {
		if _, err := st.Sell(ctx, good.ID, nil); err != nil {
			t.Fatalf("Sell good %d: %v", good.ID, err)
		}
	}

	var available int
	if err := db.QueryRow(`SELECT COUNT(*) FROM goods WHERE NOT sold`).Scan(&available); err != nil {
		t.Fatalf("Count available: %v", err)
	}
	if available != 0 {
		t.Errorf("Expected 0 available units after selling the batch, got %d", available)
	}
}

func TestReturnUsesMostRecentSellTotal(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	// First cycle at full price.
	if _, err := st.Sell(ctx, goodID, nil); err != nil {
		t.Fatalf("First sell: %v", err)
	}
	if _, err := st.ReturnGood(ctx, goodID); err != nil {
		t.Fatalf("First return: %v", err)
	}

	// Second cycle at half price through a customer discount.
	if _, err := st.AddCustomer(ctx, 7, "Anna", "Schmidt", "female", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}
	if _, err := st.AddCustomerDiscount(ctx, 7, "vip", decimal.NewFromFloat(0.5), true); err != nil {
		t.Fatalf("Add discount: %v", err)
	}

	customerID := int64(7)
	sellTxn, err := st.Sell(ctx, goodID, &customerID)
	if err != nil {
		t.Fatalf("Second sell: %v", err)
	}
	if !sellTxn.Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("Expected discounted total 50, got %s", sellTxn.Total)
	}

	returnTxn, err := st.ReturnGood(ctx, goodID)
	if err != nil {
		t.Fatalf("Second return: %v", err)
	}
	if !returnTxn.Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Return must refund the most recent sell total 50, got %s", returnTxn.Total)
	}
}

func TestSoldFlagMatchesLedger(t *testing.T) {
	st, db, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Widget", decimal.NewFromInt(100), 0, 3, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	// Sell all three, return the middle one.
	for _, good := range result.Goods {
		if _, err := st.Sell(ctx, good.ID, nil); err != nil {
			t.Fatalf("Sell: %v", err)
		}
	}
	if _, err := st.ReturnGood(ctx, result.Goods[1].ID); err != nil {
		t.Fatalf("Return: %v", err)
	}

	rows, err := db.Query(`
		SELECT g.id, g.sold,
		       COUNT(*) FILTER (WHERE t.type = 'sell') AS sells,
		       COUNT(*) FILTER (WHERE t.type = 'return') AS returns
		FROM goods g
		LEFT JOIN transactions t ON t.subject_id = g.id
		GROUP BY g.id, g.sold`)
	if err != nil {
		t.Fatalf("Query ledger: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var sold bool
		var sells, returns int
		if err := rows.Scan(&id, &sold, &sells, &returns); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if sold != (sells > returns) {
			t.Errorf("Good %d: sold=%v but %d sells / %d returns", id, sold, sells, returns)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Rows error: %v", err)
	}
}
