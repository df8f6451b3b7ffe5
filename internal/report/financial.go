// Package report builds the monthly financial summary and renders it as a
// spreadsheet.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
)

// PermRead gates financial reports.
const PermRead = "report.read"

const (
	summarySheet  = "Summary"
	expenseSheet  = "Expenses"
	accountsSheet = "Accounts"
)

type CategoryTotal struct {
	Category domain.ExpenseCategory `json:"category"`
	Amount   decimal.Decimal        `json:"amount"`
}

type AccountBalance struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// Financial summarises one calendar month.
type Financial struct {
	PeriodStart   time.Time        `json:"period_start"`
	PeriodEnd     time.Time        `json:"period_end"`
	Revenue       decimal.Decimal  `json:"revenue"`
	PaidInvoices  int              `json:"paid_invoices"`
	Expenses      []CategoryTotal  `json:"expenses"`
	TotalExpenses decimal.Decimal  `json:"total_expenses"`
	ProfitLoss    decimal.Decimal  `json:"profit_loss"`
	Accounts      []AccountBalance `json:"accounts"`
	TotalBalance  decimal.Decimal  `json:"total_balance"`
}

// MonthBounds returns the first and last instant of the month holding at.
func MonthBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// BuildFinancial computes revenue from paid invoices issued in the month,
// approved or paid expenses dated in the month, and active account
// balances.
func BuildFinancial(ctx context.Context, e engine.Engine, actor auth.Actor, at time.Time) (Financial, error) {
	if err := auth.Require(actor, PermRead); err != nil {
		return Financial{}, err
	}
	start, end := MonthBounds(at)
	rep := Financial{PeriodStart: start, PeriodEnd: end, Revenue: decimal.Zero, TotalExpenses: decimal.Zero, TotalBalance: decimal.Zero}

	invoices, err := e.ListInvoices(ctx, engine.InvoiceFilter{Status: []domain.Status{domain.InvoicePaid}, From: start, To: end})
	if err != nil {
		return Financial{}, fmt.Errorf("load invoices: %w", err)
	}
	for _, inv := range invoices {
		rep.Revenue = rep.Revenue.Add(inv.Total)
		rep.PaidInvoices++
	}

	expenses, err := e.ListExpenses(ctx, engine.ExpenseFilter{Status: []domain.Status{domain.ExpenseApproved, domain.ExpensePaid}, From: start, To: end})
	if err != nil {
		return Financial{}, fmt.Errorf("load expenses: %w", err)
	}
	byCategory := make(map[domain.ExpenseCategory]decimal.Decimal)
	for _, x := range expenses {
		byCategory[x.Category] = byCategory[x.Category].Add(x.Amount)
		rep.TotalExpenses = rep.TotalExpenses.Add(x.Amount)
	}
	rep.Expenses = []CategoryTotal{}
	for _, c := range domain.ExpenseCategories {
		if amt, ok := byCategory[c]; ok {
			rep.Expenses = append(rep.Expenses, CategoryTotal{Category: c, Amount: amt})
		}
	}
	rep.ProfitLoss = rep.Revenue.Sub(rep.TotalExpenses)

	accounts, err := e.ListAccounts(ctx, true)
	if err != nil {
		return Financial{}, fmt.Errorf("load accounts: %w", err)
	}
	rep.Accounts = []AccountBalance{}
	for _, a := range accounts {
		rep.Accounts = append(rep.Accounts, AccountBalance{ID: a.ID, Name: a.Name, Currency: a.Currency, Balance: a.CurrentBalance})
		rep.TotalBalance = rep.TotalBalance.Add(a.CurrentBalance)
	}
	return rep, nil
}

// WriteXLSX renders the report as a workbook with summary, expense and
// account sheets.
func WriteXLSX(w io.Writer, rep Financial) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	summary := [][]any{
		{"Period", rep.PeriodStart.Format("2006-01")},
		{"Revenue", rep.Revenue.InexactFloat64()},
		{"Paid invoices", rep.PaidInvoices},
		{"Expenses", rep.TotalExpenses.InexactFloat64()},
		{"Profit / loss", rep.ProfitLoss.InexactFloat64()},
		{"Total balance", rep.TotalBalance.InexactFloat64()},
	}
	if err := writeRows(f, summarySheet, nil, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(expenseSheet); err != nil {
		return err
	}
	rows := make([][]any, 0, len(rep.Expenses))
	for _, c := range rep.Expenses {
		rows = append(rows, []any{string(c.Category), c.Amount.InexactFloat64()})
	}
	if err := writeRows(f, expenseSheet, []string{"Category", "Amount"}, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(accountsSheet); err != nil {
		return err
	}
	rows = rows[:0]
	for _, a := range rep.Accounts {
		rows = append(rows, []any{a.Name, a.Currency, a.Balance.InexactFloat64()})
	}
	if err := writeRows(f, accountsSheet, []string{"Account", "Currency", "Balance"}, rows); err != nil {
		return err
	}
	return f.Write(w)
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, rep Financial) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := WriteXLSX(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRows(f *excelize.File, sheet string, headings []string, rows [][]any) error {
	rowNo := 1
	if len(headings) > 0 {
		for i, h := range headings {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return err
			}
		}
		rowNo++
	}
	for _, row := range rows {
		for i, v := range row {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		rowNo++
	}
	return nil
}
