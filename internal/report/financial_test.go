package report_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crmline/internal/config"
	"crmline/internal/db"
	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/migrate"
	"crmline/internal/report"
)

var march = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) (engine.Engine, auth.Actor) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, config.Default(), nil)
	now := march
	eng.Now = func() time.Time { return now }
	ctx := context.Background()
	owner := eng.Auth.ActorFor("owner-1", auth.RoleUser)
	mgr := eng.Auth.ActorFor("manager-1", auth.RoleManager)

	paid, err := eng.CreateInvoice(ctx, owner, &domain.Invoice{
		Client:  domain.InvoiceClient{Name: "Acme", Email: "ap@acme.example"},
		DueDate: march.AddDate(0, 0, 30),
		Items:   []domain.LineItem{{Description: "Retainer", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500)}},
	})
	require.NoError(t, err)
	_, err = eng.SendInvoice(ctx, owner, paid.ID)
	require.NoError(t, err)
	_, err = eng.MarkInvoicePaid(ctx, owner, paid.ID, nil)
	require.NoError(t, err)

	// Unpaid invoices do not count as revenue.
	_, err = eng.CreateInvoice(ctx, owner, &domain.Invoice{
		Client:  domain.InvoiceClient{Name: "Beta", Email: "ap@beta.example"},
		DueDate: march.AddDate(0, 0, 30),
		Items:   []domain.LineItem{{Description: "Setup", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(999)}},
	})
	require.NoError(t, err)

	expense := func(desc string, amount int64, cat domain.ExpenseCategory, date time.Time, approve bool) {
		x, err := eng.CreateExpense(ctx, owner, &domain.Expense{
			Description: desc, Amount: decimal.NewFromInt(amount), Date: date,
			Category: cat, PaymentMethod: domain.ExpenseCreditCard,
		})
		require.NoError(t, err)
		if approve {
			_, err = eng.TransitionExpense(ctx, mgr, x.ID, kinds.Approve)
			require.NoError(t, err)
		}
	}
	expense("Office rent", 120, domain.CategoryRent, march, true)
	expense("Editor licences", 30, domain.CategorySoftware, march, true)
	expense("Pending travel", 75, domain.CategoryTravel, march, false)
	expense("February rent", 120, domain.CategoryRent, march.AddDate(0, -1, 0), true)

	_, err = eng.CreateAccount(ctx, owner, &domain.FinancialAccount{Name: "Operating", Type: domain.AccountBank, OpeningBalance: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	return eng, mgr
}

func TestBuildFinancial(t *testing.T) {
	eng, mgr := seed(t)
	rep, err := report.BuildFinancial(context.Background(), eng, mgr, march)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rep.PeriodStart)
	assert.Equal(t, 1, rep.PaidInvoices)
	assert.True(t, decimal.NewFromInt(500).Equal(rep.Revenue), rep.Revenue.String())
	assert.True(t, decimal.NewFromInt(150).Equal(rep.TotalExpenses), rep.TotalExpenses.String())
	assert.True(t, decimal.NewFromInt(350).Equal(rep.ProfitLoss))
	require.Len(t, rep.Expenses, 2)
	assert.Equal(t, domain.CategoryRent, rep.Expenses[0].Category)
	assert.Equal(t, domain.CategorySoftware, rep.Expenses[1].Category)
	require.Len(t, rep.Accounts, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(rep.TotalBalance))
}

func TestBuildFinancialRequiresPermission(t *testing.T) {
	eng, _ := seed(t)
	user := eng.Auth.ActorFor("owner-1", auth.RoleUser)
	_, err := report.BuildFinancial(context.Background(), eng, user, march)
	assert.Equal(t, lifecycle.CodeForbidden, lifecycle.Code(err))
}

func TestWriteXLSX(t *testing.T) {
	eng, mgr := seed(t)
	rep, err := report.BuildFinancial(context.Background(), eng, mgr, march)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteXLSX(&buf, rep))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Expenses", "Accounts"}, f.GetSheetList())
	period, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", period)

	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Category", "Amount"}, rows[0])
	assert.Equal(t, string(domain.CategoryRent), rows[1][0])

	accounts, err := f.GetRows("Accounts")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Operating", accounts[1][0])
}

func TestSaveXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "march.xlsx")
	start, end := report.MonthBounds(march)
	require.NoError(t, report.SaveXLSX(path, report.Financial{PeriodStart: start, PeriodEnd: end}))
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
