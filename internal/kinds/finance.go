package kinds

import (
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

// Invoice wires client invoices. Paid invoices are frozen.
var Invoice = lifecycle.Kind[domain.Invoice, *domain.Invoice]{
	Table: lifecycle.Table{
		Kind:    domain.KindInvoice,
		Initial: domain.InvoiceDraft,
		Statuses: []domain.Status{
			domain.InvoiceDraft, domain.InvoiceSent, domain.InvoicePaid,
			domain.InvoiceOverdue, domain.InvoiceCancelled,
		},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Send:        {From: from(domain.InvoiceDraft, domain.InvoiceOverdue), To: domain.InvoiceSent},
			MarkPaid:    {From: from(domain.InvoiceSent, domain.InvoiceOverdue), To: domain.InvoicePaid},
			MarkOverdue: {From: from(domain.InvoiceDraft, domain.InvoiceSent), To: domain.InvoiceOverdue},
			Cancel:      {From: from(domain.InvoiceDraft, domain.InvoiceSent, domain.InvoiceOverdue), To: domain.InvoiceCancelled},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			MarkPaid: {domain.InvoicePaid: "already paid"},
			Cancel:   {domain.InvoicePaid: "paid invoices cannot be cancelled"},
		},
		Edit:          auth.Owner,
		Act:           auth.Owner,
		Delete:        auth.Owner,
		EditBlocked:   from(domain.InvoicePaid),
		DeleteBlocked: from(domain.InvoicePaid),
	},
	Validate: func(inv *domain.Invoice) error {
		if !inv.IssueDate.IsZero() && inv.DueDate.Before(inv.IssueDate) {
			return lifecycle.Invalid(domain.KindInvoice, "due_date", "must not precede issue_date")
		}
		if derive.Totals(inv.Items, inv.TaxRate, inv.Discount).Total.IsNegative() {
			return lifecycle.Invalid(domain.KindInvoice, "discount", "must not exceed subtotal plus tax")
		}
		return nil
	},
	Require: map[lifecycle.Action]func(*domain.Invoice, lifecycle.Input) error{
		MarkOverdue: func(inv *domain.Invoice, in lifecycle.Input) error {
			if !inv.DueDate.Before(in.Now) {
				return lifecycle.Blocked(domain.KindInvoice, MarkOverdue, "invoice is not past its due date")
			}
			return nil
		},
		MarkPaid: func(inv *domain.Invoice, in lifecycle.Input) error {
			if in.Data == nil {
				return nil
			}
			pd, err := payload[domain.PaymentDetails](domain.KindInvoice, in)
			if err != nil {
				return err
			}
			return lifecycle.Validate(domain.KindInvoice, pd)
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Invoice, lifecycle.Input) error{
		MarkPaid: func(inv *domain.Invoice, in lifecycle.Input) error {
			pd, ok := in.Data.(domain.PaymentDetails)
			if !ok {
				pd = domain.PaymentDetails{Method: domain.PayOther}
				if inv.PaymentDetails != nil {
					pd = *inv.PaymentDetails
				}
			}
			if pd.PaymentDate == nil {
				pd.PaymentDate = domain.Stamp(in.Now)
			}
			inv.PaymentDetails = &pd
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.Invoice]{{
		Name: "totals",
		Apply: func(inv *domain.Invoice, _ time.Time) {
			for i := range inv.Items {
				inv.Items[i].Amount = derive.LineAmount(inv.Items[i])
			}
			t := derive.Totals(inv.Items, inv.TaxRate, inv.Discount)
			inv.Subtotal, inv.TaxAmount, inv.Total = t.Subtotal, t.TaxAmount, t.Total
		},
	}},
}

// Budget wires planned spend per expense category.
var Budget = lifecycle.Kind[domain.Budget, *domain.Budget]{
	Table: lifecycle.Table{
		Kind:     domain.KindBudget,
		Initial:  domain.BudgetDraft,
		Statuses: []domain.Status{domain.BudgetDraft, domain.BudgetActive, domain.BudgetClosed},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Activate:       {From: from(domain.BudgetDraft), To: domain.BudgetActive},
			Close:          {From: from(domain.BudgetDraft, domain.BudgetActive), To: domain.BudgetClosed},
			RefreshActuals: {From: from(domain.BudgetDraft, domain.BudgetActive)},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			Activate: {
				domain.BudgetActive: "already active",
				domain.BudgetClosed: "Cannot activate a closed budget",
			},
			Close: {domain.BudgetClosed: "already closed"},
		},
		Edit:          auth.Owner,
		Act:           auth.Owner,
		Delete:        auth.Owner,
		EditBlocked:   from(domain.BudgetClosed),
		DeleteBlocked: from(domain.BudgetActive, domain.BudgetClosed),
	},
	Validate: func(b *domain.Budget) error {
		if b.EndDate.Before(b.StartDate) {
			return lifecycle.Invalid(domain.KindBudget, "end_date", "must not precede start_date")
		}
		seen := make(map[domain.ExpenseCategory]bool, len(b.Categories))
		for _, c := range b.Categories {
			if seen[c.Category] {
				return lifecycle.Invalid(domain.KindBudget, "categories", "duplicate category "+string(c.Category))
			}
			seen[c.Category] = true
		}
		return nil
	},
	Require: map[lifecycle.Action]func(*domain.Budget, lifecycle.Input) error{
		RefreshActuals: func(_ *domain.Budget, in lifecycle.Input) error {
			_, err := payload[map[domain.ExpenseCategory]decimal.Decimal](domain.KindBudget, in)
			return err
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Budget, lifecycle.Input) error{
		RefreshActuals: func(b *domain.Budget, in lifecycle.Input) error {
			b.Categories = derive.ApplyActuals(b.Categories, in.Data.(map[domain.ExpenseCategory]decimal.Decimal))
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.Budget]{{
		Name: "totals",
		Apply: func(b *domain.Budget, _ time.Time) {
			b.TotalPlanned, b.TotalActual = derive.BudgetTotals(b.Categories)
		},
	}},
}

// Expense wires spend records. Approval is a named permission.
var Expense = lifecycle.Kind[domain.Expense, *domain.Expense]{
	Table: lifecycle.Table{
		Kind:    domain.KindExpense,
		Initial: domain.ExpensePending,
		Statuses: []domain.Status{
			domain.ExpensePending, domain.ExpenseApproved, domain.ExpenseRejected, domain.ExpensePaid,
		},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Approve:  {From: from(domain.ExpensePending), To: domain.ExpenseApproved},
			Reject:   {From: from(domain.ExpensePending), To: domain.ExpenseRejected},
			MarkPaid: {From: from(domain.ExpenseApproved), To: domain.ExpensePaid},

			AdvanceRecurrence: {},
		},
		Edit: auth.Owner,
		Act:  auth.Owner,
		ActionAuth: map[lifecycle.Action]auth.Rule{
			Approve: auth.Permission(PermExpenseApprove),
			Reject:  auth.Permission(PermExpenseApprove),
		},
		Delete:        auth.Owner,
		EditBlocked:   from(domain.ExpenseApproved, domain.ExpensePaid),
		DeleteBlocked: from(domain.ExpenseApproved, domain.ExpensePaid),
	},
	Validate: func(e *domain.Expense) error {
		if !e.IsRecurring {
			return nil
		}
		if e.RecurringDetails == nil || e.RecurringDetails.Frequency == "" || e.RecurringDetails.Frequency == domain.FrequencyNone {
			return lifecycle.Invalid(domain.KindExpense, "recurring_details.frequency", "required for recurring expenses")
		}
		return nil
	},
	Require: map[lifecycle.Action]func(*domain.Expense, lifecycle.Input) error{
		AdvanceRecurrence: func(e *domain.Expense, _ lifecycle.Input) error {
			if !e.IsRecurring || e.RecurringDetails == nil || e.RecurringDetails.NextDueDate == nil {
				return lifecycle.Blocked(domain.KindExpense, AdvanceRecurrence, "expense has no pending recurrence")
			}
			return nil
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Expense, lifecycle.Input) error{
		Approve: func(e *domain.Expense, in lifecycle.Input) error {
			e.ApprovedBy = in.Actor.ID
			return nil
		},
		AdvanceRecurrence: func(e *domain.Expense, _ lifecycle.Input) error {
			rd := e.RecurringDetails
			next := derive.AdvanceDueDate(*rd.NextDueDate, rd.Frequency)
			if rd.EndDate != nil && next.After(*rd.EndDate) {
				e.IsRecurring = false
				return nil
			}
			rd.NextDueDate = &next
			return nil
		},
	},
}

// FinancialAccount wires ledgers. Deleting deactivates.
var FinancialAccount = lifecycle.Kind[domain.FinancialAccount, *domain.FinancialAccount]{
	Table: lifecycle.Table{
		Kind:     domain.KindFinancialAccount,
		Initial:  domain.StatusActive,
		Statuses: []domain.Status{domain.StatusActive, domain.StatusInactive},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			AddTransaction: {From: from(domain.StatusActive)},
			Activate:       {From: from(domain.StatusInactive), To: domain.StatusActive},
			Deactivate:     {From: from(domain.StatusActive), To: domain.StatusInactive},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			AddTransaction: {domain.StatusInactive: "account is inactive"},
		},
		Edit:       auth.Owner,
		Act:        auth.Owner,
		Delete:     auth.Owner,
		SoftDelete: domain.StatusInactive,
	},
	Require: map[lifecycle.Action]func(*domain.FinancialAccount, lifecycle.Input) error{
		AddTransaction: func(_ *domain.FinancialAccount, in lifecycle.Input) error {
			tx, err := payload[domain.Transaction](domain.KindFinancialAccount, in)
			if err != nil {
				return err
			}
			return lifecycle.Validate(domain.KindFinancialAccount, tx)
		},
	},
	Effects: map[lifecycle.Action]func(*domain.FinancialAccount, lifecycle.Input) error{
		AddTransaction: func(a *domain.FinancialAccount, in lifecycle.Input) error {
			tx := in.Data.(domain.Transaction)
			if tx.Date.IsZero() {
				tx.Date = in.Now
			}
			a.Transactions = append([]domain.Transaction{tx}, a.Transactions...)
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.FinancialAccount]{{
		Name: "balance",
		Apply: func(a *domain.FinancialAccount, _ time.Time) {
			a.CurrentBalance = derive.Balance(a.OpeningBalance, a.Transactions)
		},
	}},
}
