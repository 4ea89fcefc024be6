package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	// TypeIncome is money coming in.
	TypeIncome TransactionType = "income"
	// TypeExpense is money going out.
	TypeExpense TransactionType = "expense"
)

// IsValid reports whether t is one of the two known types.
func (t TransactionType) IsValid() bool {
	return t == TypeIncome || t == TypeExpense
}

// ParseTransactionType parses s exactly (lowercase, no trimming).
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

var (
	// ErrMissingID is returned for a transaction without an id.
	ErrMissingID = errors.New("transaction id is required")
	// ErrInvalidType is returned for a type other than income or expense.
	ErrInvalidType = errors.New("transaction type must be income or expense")
	// ErrNegativeAmount is returned when amount < 0.
	ErrNegativeAmount = errors.New("transaction amount must not be negative")
	// ErrMissingDescription is returned for an empty description.
	ErrMissingDescription = errors.New("transaction description is required")
	// ErrMissingCategory is returned for an empty category.
	ErrMissingCategory = errors.New("transaction category is required")
	// ErrInvalidDate is returned for a zero or impossible date.
	ErrInvalidDate = errors.New("transaction date is invalid")
)

// Transaction is one recorded income or expense event.
// Amount carries the magnitude only; Type carries the direction.
type Transaction struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        civil.Date      `json:"date"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`

	// CreatedAt orders the ledger for display. Rows persisted before it
	// existed decode with the zero time, which is never written back.
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON writes amount as a JSON number and omits a zero created_at,
// so snapshots keep the shape older rows were stored in.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	out := struct {
		plain
		Amount    json.Number `json:"amount"`
		CreatedAt *time.Time  `json:"created_at,omitempty"`
	}{
		plain:  plain(t),
		Amount: json.Number(t.Amount.String()),
	}
	if !t.CreatedAt.IsZero() {
		out.CreatedAt = &t.CreatedAt
	}
	return json.Marshal(out)
}

// Validate checks the shape invariants a stored transaction must satisfy.
// Description and category are free text and may be empty here; the
// stricter checks for new input live in ValidateNew.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrMissingID
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, t.Amount)
	}
	if !t.Date.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidDate, t.Date)
	}
	return nil
}

// ValidateNew applies Validate plus the checks for user or model input.
func (t Transaction) ValidateNew() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrMissingDescription
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrMissingCategory
	}
	return nil
}

// IsIncome reports whether t is an income transaction.
func (t Transaction) IsIncome() bool { return t.Type == TypeIncome }

// IsExpense reports whether t is an expense transaction.
func (t Transaction) IsExpense() bool { return t.Type == TypeExpense }

// HistoryLine renders t the way the advice prompt lists history:
// "2024-06-01: income of 5000 for Monthly Salary (Salary)".
func (t Transaction) HistoryLine() string {
	return fmt.Sprintf("%s: %s of %s for %s (%s)", t.Date, t.Type, t.Amount.String(), t.Description, t.Category)
}

// FinancialAdvice is a generated recommendation. It is never persisted.
type FinancialAdvice struct {
	Summary     string    `json:"summary"`
	Tips        []string  `json:"tips"`
	Warnings    []string  `json:"warnings"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Today returns the calendar date of now in now's location.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now)
}
