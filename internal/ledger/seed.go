package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

// Seed returns the example transactions a fresh ledger starts with.
// A new slice is built on every call.
func Seed() []domain.Transaction {
	return []domain.Transaction{
		seedTx("1", "Monthly Salary", 5000, domain.TypeIncome, "Salary", 1),
		seedTx("2", "Rent Payment", 1500, domain.TypeExpense, "Housing", 2),
		seedTx("3", "Grocery Store", 120, domain.TypeExpense, "Food", 5),
		seedTx("4", "Internet Bill", 80, domain.TypeExpense, "Utilities", 10),
		seedTx("5", "Freelance Gig", 800, domain.TypeIncome, "Salary", 15),
	}
}

func seedTx(id, desc string, amount int64, typ domain.TransactionType, category string, day int) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Description: desc,
		Amount:      decimal.NewFromInt(amount),
		Date:        civil.Date{Year: 2024, Month: 6, Day: day},
		Type:        typ,
		Category:    category,
	}
}
