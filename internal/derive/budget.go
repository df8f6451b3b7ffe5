package derive

import (
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/domain"
)

type VarianceLine struct {
	Category   domain.ExpenseCategory `json:"category,omitempty"`
	Planned    decimal.Decimal        `json:"planned"`
	Actual     decimal.Decimal        `json:"actual"`
	Amount     decimal.Decimal        `json:"amount"`
	Percentage decimal.Decimal        `json:"percentage"`
}

type BudgetVariance struct {
	Total      VarianceLine   `json:"total"`
	Categories []VarianceLine `json:"categories"`
}

// BudgetTotals sums planned and actual amounts over the category lines.
func BudgetTotals(lines []domain.BudgetCategory) (planned, actual decimal.Decimal) {
	planned, actual = decimal.Zero, decimal.Zero
	for _, l := range lines {
		planned = planned.Add(l.PlannedAmount)
		actual = actual.Add(l.ActualAmount)
	}
	return planned, actual
}

// ActualsByCategory sums approved expenses dated within [start, end].
func ActualsByCategory(expenses []domain.Expense, start, end time.Time) map[domain.ExpenseCategory]decimal.Decimal {
	out := make(map[domain.ExpenseCategory]decimal.Decimal)
	for _, e := range expenses {
		if e.Status != domain.ExpenseApproved {
			continue
		}
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		out[e.Category] = out[e.Category].Add(e.Amount)
	}
	return out
}

// ApplyActuals returns a copy of lines with actual amounts replaced from
// actuals. Categories absent from actuals become zero.
func ApplyActuals(lines []domain.BudgetCategory, actuals map[domain.ExpenseCategory]decimal.Decimal) []domain.BudgetCategory {
	out := make([]domain.BudgetCategory, len(lines))
	for i, l := range lines {
		l.ActualAmount = actuals[l.Category]
		out[i] = l
	}
	return out
}

// Variance computes planned minus actual per category and in total.
// Percentage is relative to planned and zero when nothing was planned.
func Variance(lines []domain.BudgetCategory) BudgetVariance {
	v := BudgetVariance{Categories: make([]VarianceLine, 0, len(lines))}
	for _, l := range lines {
		v.Categories = append(v.Categories, varianceLine(l.Category, l.PlannedAmount, l.ActualAmount))
	}
	planned, actual := BudgetTotals(lines)
	v.Total = varianceLine("", planned, actual)
	return v
}

func varianceLine(cat domain.ExpenseCategory, planned, actual decimal.Decimal) VarianceLine {
	amount := planned.Sub(actual)
	pct := decimal.Zero
	if !planned.IsZero() {
		pct = amount.Mul(hundred).DivRound(planned, 4)
	}
	return VarianceLine{Category: cat, Planned: planned, Actual: actual, Amount: amount, Percentage: pct}
}
