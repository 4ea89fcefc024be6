// Package metrics derives dashboard figures from a ledger snapshot.
// Every function is pure: no I/O, no mutation of its input.
package metrics

import (
	"time"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

// TotalIncome sums the amounts of income transactions.
func TotalIncome(txs []domain.Transaction) decimal.Decimal {
	return sumWhere(txs, domain.TypeIncome)
}

// TotalExpenses sums the amounts of expense transactions.
func TotalExpenses(txs []domain.Transaction) decimal.Decimal {
	return sumWhere(txs, domain.TypeExpense)
}

// Balance is TotalIncome minus TotalExpenses. It may be negative.
func Balance(txs []domain.Transaction) decimal.Decimal {
	return TotalIncome(txs).Sub(TotalExpenses(txs))
}

func sumWhere(txs []domain.Transaction, typ domain.TransactionType) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == typ {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// CategoryTotal is the expense sum for one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// CategoryTotals keeps categories in first-seen order.
type CategoryTotals []CategoryTotal

// Get returns the total for category (exact match).
func (c CategoryTotals) Get(category string) (decimal.Decimal, bool) {
	for _, ct := range c {
		if ct.Category == category {
			return ct.Total, true
		}
	}
	return decimal.Zero, false
}

// Sum adds every category total.
func (c CategoryTotals) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, ct := range c {
		total = total.Add(ct.Total)
	}
	return total
}

// Map returns the totals keyed by category.
func (c CategoryTotals) Map() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(c))
	for _, ct := range c {
		m[ct.Category] = ct.Total
	}
	return m
}

// ExpensesByCategory groups expense amounts by category in one pass.
// Categories appear in the order they are first seen in txs; keys are
// compared exactly, so "Food" and "food" are different categories.
func ExpensesByCategory(txs []domain.Transaction) CategoryTotals {
	out := CategoryTotals{}
	index := make(map[string]int)

	for _, tx := range txs {
		if tx.Type != domain.TypeExpense {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, CategoryTotal{Category: tx.Category, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
	}
	return out
}

// Summary is everything the dashboard view renders.
type Summary struct {
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalExpenses      decimal.Decimal `json:"total_expenses"`
	Balance            decimal.Decimal `json:"balance"`
	ExpensesByCategory CategoryTotals  `json:"expenses_by_category"`
	MonthlyTrend       []MonthlyPoint  `json:"monthly_trend"`
	TransactionCount   int             `json:"transaction_count"`
}

// Summarize computes a Summary with a trend window of months ending at
// the month containing now.
func Summarize(txs []domain.Transaction, now time.Time, months int) (Summary, error) {
	trend, err := MonthlyTrend(txs, YearMonthOf(now), months)
	if err != nil {
		return Summary{}, err
	}

	income := TotalIncome(txs)
	expenses := TotalExpenses(txs)

	return Summary{
		TotalIncome:        income,
		TotalExpenses:      expenses,
		Balance:            income.Sub(expenses),
		ExpensesByCategory: ExpensesByCategory(txs),
		MonthlyTrend:       trend,
		TransactionCount:   len(txs),
	}, nil
}
