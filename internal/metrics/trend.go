package metrics

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInvalidWindow is returned for a trend window of zero or fewer months.
var ErrInvalidWindow = errors.New("trend window must be at least one month")

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// YearMonthOfDate returns the month containing d.
func YearMonthOfDate(d civil.Date) YearMonth {
	return YearMonth{Year: d.Year, Month: d.Month}
}

// AddMonths returns the month n months after ym (n may be negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	idx := ym.Year*12 + int(ym.Month) - 1 + n
	return YearMonth{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// String formats ym as YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Label is the short chart label, e.g. "Jun".
func (ym YearMonth) Label() string {
	return ym.Month.String()[:3]
}

// MarshalText implements encoding.TextMarshaler.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ym *YearMonth) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return fmt.Errorf("parse year-month %q: %w", b, err)
	}
	*ym = YearMonthOf(t)
	return nil
}

// MonthlyPoint is one bar pair of the income-vs-expenses chart.
type MonthlyPoint struct {
	Month   YearMonth       `json:"month"`
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// MonthlyTrend buckets txs by the year-month of their date into the
// months-long window ending at end (inclusive), oldest month first.
// Months without transactions are present with zero sums; transactions
// outside the window are ignored.
func MonthlyTrend(txs []domain.Transaction, end YearMonth, months int) ([]MonthlyPoint, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, months)
	}

	start := end.AddMonths(-(months - 1))
	points := make([]MonthlyPoint, months)
	index := make(map[YearMonth]int, months)
	for i := range points {
		ym := start.AddMonths(i)
		points[i] = MonthlyPoint{Month: ym, Label: ym.Label(), Income: decimal.Zero, Expense: decimal.Zero}
		index[ym] = i
	}

	for _, tx := range txs {
		i, ok := index[YearMonthOfDate(tx.Date)]
		if !ok {
			continue
		}
		switch tx.Type {
		case domain.TypeIncome:
			points[i].Income = points[i].Income.Add(tx.Amount)
		case domain.TypeExpense:
			points[i].Expense = points[i].Expense.Add(tx.Amount)
		}
	}
	return points, nil
}
