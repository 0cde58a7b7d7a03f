package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Removed     bool   `json:"removed"`
}

// Good is a single physical unit on the warehouse shelf. One row is one
// sellable item, never a quantity-tracked SKU.
type Good struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	CategoryID int64           `json:"category_id"`
	Sold       bool            `json:"sold"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Customer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"gender"`
	Note      string `json:"note,omitempty"`
	Removed   bool   `json:"removed"`
}

// Locator is contact data keyed by name pair, not by customer id. Repeated
// imports for the same pair merge into the note instead of inserting again.
type Locator struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Note      string `json:"note,omitempty"`
}

type Delivery struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	CategoryID int64           `json:"category_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Transaction is one row of the append-only ledger. Total is stored
// positive; the sign is a reporting-time convention.
type Transaction struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	SubjectID  int64           `json:"subject_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	Quantity   int             `json:"quantity"`
	Total      decimal.Decimal `json:"total"`
	Discount   decimal.Decimal `json:"discount"`
	Note       string          `json:"note,omitempty"`
	Date       time.Time       `json:"date"`
}

type CategoryDiscount struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Title      string          `json:"title,omitempty"`
	Discount   decimal.Decimal `json:"discount"`
	Active     bool            `json:"active"`
}

type CustomerDiscount struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Title      string          `json:"title,omitempty"`
	Discount   decimal.Decimal `json:"discount"`
	Active     bool            `json:"active"`
}

const (
	TransactionDelivery = "delivery"
	TransactionSell     = "sell"
	TransactionReturn   = "return"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

// DefaultCategoryID is the reserved "uncategorized" category. Goods whose
// category is absent or unknown land here.
const DefaultCategoryID int64 = 0

// DeliverySubjectID is the placeholder subject of delivery ledger rows,
// which have no single good behind them.
const DeliverySubjectID int64 = -1
