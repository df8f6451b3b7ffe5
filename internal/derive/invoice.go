package derive

import (
	"github.com/shopspring/decimal"

	"crmline/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type InvoiceTotals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// LineAmount is the stored amount when present, otherwise quantity times
// unit price.
func LineAmount(item domain.LineItem) decimal.Decimal {
	if !item.Amount.IsZero() {
		return item.Amount
	}
	return item.Quantity.Mul(item.UnitPrice)
}

// Totals sums line amounts, applies the tax rate percentage and subtracts
// the discount.
func Totals(items []domain.LineItem, taxRate, discount decimal.Decimal) InvoiceTotals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(LineAmount(it))
	}
	tax := subtotal.Mul(taxRate).Div(hundred)
	return InvoiceTotals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax).Sub(discount),
	}
}
