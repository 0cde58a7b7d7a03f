package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avdeev/go-market/internal/database"
)

func TestCustomerDiscountBeatsCategoryDiscount(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCategory(ctx, 1, "Tools", ""); err != nil {
		t.Fatalf("Add category: %v", err)
	}
	if _, err := st.AddCustomer(ctx, 1, "Ivan", "Petrov", "male", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromInt(100), 1, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}
	goodID := result.Goods[0].ID

	if _, err := st.AddCustomerDiscount(ctx, 1, "loyal", decimal.NewFromFloat(0.1), true); err != nil {
		t.Fatalf("Add customer discount: %v", err)
	}
	if _, err := st.AddCategoryDiscount(ctx, 1, "clearance", decimal.NewFromFloat(0.5), true); err != nil {
		t.Fatalf("Add category discount: %v", err)
	}

	customerID := int64(1)
	txn, err := st.Sell(ctx, goodID, &customerID)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	if !txn.Total.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Customer discount must win: expected total 90, got %s", txn.Total)
	}
	if !txn.Discount.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("Expected discount 0.1, got %s", txn.Discount)
	}
}

func TestZeroCustomerDiscountSuppressesCategory(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCategory(ctx, 1, "Tools", ""); err != nil {
		t.Fatalf("Add category: %v", err)
	}
	if _, err := st.AddCustomer(ctx, 1, "Ivan", "Petrov", "male", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromInt(100), 1, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	// An active zero-fraction customer record still takes precedence: the
	// category discount must not leak through.
	if _, err := st.AddCustomerDiscount(ctx, 1, "none", decimal.Zero, true); err != nil {
		t.Fatalf("Add customer discount: %v", err)
	}
	if _, err := st.AddCategoryDiscount(ctx, 1, "clearance", decimal.NewFromFloat(0.5), true); err != nil {
		t.Fatalf("Add category discount: %v", err)
	}

	customerID := int64(1)
	txn, err := st.Sell(ctx, result.Goods[0].ID, &customerID)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	if !txn.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected full price 100, got %s", txn.Total)
	}
}

func TestInactiveDiscountsIgnored(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCategory(ctx, 1, "Tools", ""); err != nil {
		t.Fatalf("Add category: %v", err)
	}
	if _, err := st.AddCustomer(ctx, 1, "Ivan", "Petrov", "male", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromInt(100), 1, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	if _, err := st.AddCustomerDiscount(ctx, 1, "expired", decimal.NewFromFloat(0.3), false); err != nil {
		t.Fatalf("Add customer discount: %v", err)
	}
	if _, err := st.AddCategoryDiscount(ctx, 1, "clearance", decimal.NewFromFloat(0.2), true); err != nil {
		t.Fatalf("Add category discount: %v", err)
	}

	customerID := int64(1)
	discount, err := st.ResolveDiscount(ctx, result.Goods[0].ID, &customerID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !discount.Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("Inactive customer record must fall through to category: expected 0.2, got %s", discount)
	}
}

func TestDiscountTieBreakLowestID(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCustomer(ctx, 1, "Ivan", "Petrov", "male", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	if _, err := st.AddCustomerDiscount(ctx, 1, "first", decimal.NewFromFloat(0.3), true); err != nil {
		t.Fatalf("Add first discount: %v", err)
	}
	if _, err := st.AddCustomerDiscount(ctx, 1, "second", decimal.NewFromFloat(0.1), true); err != nil {
		t.Fatalf("Add second discount: %v", err)
	}

	customerID := int64(1)
	discount, err := st.ResolveDiscount(ctx, result.Goods[0].ID, &customerID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !discount.Equal(decimal.NewFromFloat(0.3)) {
		t.Errorf("First created record wins: expected 0.3, got %s", discount)
	}
}

func TestNoDiscountResolvesZero(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromInt(100), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	discount, err := st.ResolveDiscount(ctx, result.Goods[0].ID, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !discount.IsZero() {
		t.Errorf("Expected zero discount, got %s", discount)
	}
}

func TestDiscountFractionValidated(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := st.AddCustomerDiscount(ctx, 1, "bogus", decimal.NewFromFloat(1.5), true)
	if !database.IsValidation(err) {
		t.Errorf("Expected validation error for fraction 1.5, got: %v", err)
	}

	_, err = st.AddCategoryDiscount(ctx, 1, "bogus", decimal.NewFromFloat(-0.1), true)
	if !database.IsValidation(err) {
		t.Errorf("Expected validation error for fraction -0.1, got: %v", err)
	}
}

func TestDiscountRounding(t *testing.T) {
	st, _, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := st.AddCustomer(ctx, 1, "Ivan", "Petrov", "male", ""); err != nil {
		t.Fatalf("Add customer: %v", err)
	}
	if _, err := st.AddCustomerDiscount(ctx, 1, "odd", decimal.NewFromFloat(0.15), true); err != nil {
		t.Fatalf("Add discount: %v", err)
	}

	result, err := st.RecordDelivery(ctx, "Hammer", decimal.NewFromFloat(99.99), 0, 1, "")
	if err != nil {
		t.Fatalf("Record delivery: %v", err)
	}

	customerID := int64(1)
	txn, err := st.Sell(ctx, result.Goods[0].ID, &customerID)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	// 99.99 * 0.85 = 84.9915, rounded half-up to two places.
	if !txn.Total.Equal(decimal.NewFromFloat(84.99)) {
		t.Errorf("Expected total 84.99, got %s", txn.Total)
	}
}
