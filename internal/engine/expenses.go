package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Expenses() Records[domain.Expense, *domain.Expense] {
	return records(e, kinds.Expense)
}

func (e Engine) CreateExpense(ctx context.Context, actor auth.Actor, x *domain.Expense) (*domain.Expense, error) {
	if x.Date.IsZero() {
		x.Date = e.now()
	}
	x.ApprovedBy = ""
	if x.IsRecurring && x.RecurringDetails != nil && x.RecurringDetails.NextDueDate == nil {
		next := derive.AdvanceDueDate(x.Date, x.RecurringDetails.Frequency)
		x.RecurringDetails.NextDueDate = &next
	}
	return e.Expenses().Create(ctx, actor, x)
}

type ExpensePatch struct {
	Description      *string                      `json:"description,omitempty"`
	Amount           *decimal.Decimal             `json:"amount,omitempty"`
	Date             *time.Time                   `json:"date,omitempty"`
	Category         *domain.ExpenseCategory      `json:"category,omitempty"`
	PaymentMethod    *domain.ExpensePaymentMethod `json:"payment_method,omitempty"`
	Vendor           *string                      `json:"vendor,omitempty"`
	Receipt          *string                      `json:"receipt,omitempty"`
	Notes            *string                      `json:"notes,omitempty"`
	IsRecurring      *bool                        `json:"is_recurring,omitempty"`
	RecurringDetails *domain.RecurringDetails     `json:"recurring_details,omitempty"`
}

func (e Engine) UpdateExpense(ctx context.Context, actor auth.Actor, id string, p ExpensePatch) (*domain.Expense, error) {
	return e.Expenses().Update(ctx, actor, id, func(x *domain.Expense) error {
		set(&x.Description, p.Description)
		set(&x.Amount, p.Amount)
		set(&x.Date, p.Date)
		set(&x.Category, p.Category)
		set(&x.PaymentMethod, p.PaymentMethod)
		set(&x.Vendor, p.Vendor)
		set(&x.Receipt, p.Receipt)
		set(&x.Notes, p.Notes)
		set(&x.IsRecurring, p.IsRecurring)
		if p.RecurringDetails != nil {
			rd := *p.RecurringDetails
			x.RecurringDetails = &rd
		}
		return nil
	})
}

func (e Engine) TransitionExpense(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.Expense, error) {
	return e.Expenses().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

func (e Engine) DeleteExpense(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Expenses().Delete(ctx, actor, id, nil)
	return err
}

type ExpenseFilter struct {
	Status   []domain.Status
	Category domain.ExpenseCategory
	Vendor   string
	From, To time.Time
	Limit    int
}

func (e Engine) ListExpenses(ctx context.Context, f ExpenseFilter) ([]*domain.Expense, error) {
	return e.Expenses().List(ctx, store.Query{Status: statusStrings(f.Status), Limit: f.Limit}, func(x *domain.Expense) bool {
		if f.Category != "" && x.Category != f.Category {
			return false
		}
		if f.Vendor != "" && !containsFold(x.Vendor, f.Vendor) {
			return false
		}
		return inRange(x.Date, f.From, f.To)
	})
}

// DueRecurringExpenses lists recurring expenses whose next due date has
// arrived.
func (e Engine) DueRecurringExpenses(ctx context.Context) ([]*domain.Expense, error) {
	now := e.now()
	return e.Expenses().List(ctx, store.Query{Order: store.OldestFirst}, func(x *domain.Expense) bool {
		if !x.IsRecurring || x.RecurringDetails == nil || x.RecurringDetails.NextDueDate == nil {
			return false
		}
		return !x.RecurringDetails.NextDueDate.After(now)
	})
}

// GenerateRecurringExpense files a pending copy of a due recurring expense
// and advances the template's schedule.
func (e Engine) GenerateRecurringExpense(ctx context.Context, actor auth.Actor, template *domain.Expense) (*domain.Expense, error) {
	if !template.IsRecurring || template.RecurringDetails == nil || template.RecurringDetails.NextDueDate == nil {
		return nil, lifecycle.Blocked(domain.KindExpense, kinds.AdvanceRecurrence, "expense has no pending recurrence")
	}
	generated := &domain.Expense{
		Description:   template.Description,
		Amount:        template.Amount,
		Date:          *template.RecurringDetails.NextDueDate,
		Category:      template.Category,
		PaymentMethod: template.PaymentMethod,
		Vendor:        template.Vendor,
		Notes:         "Auto-generated from recurring expense: " + template.Description,
	}
	generated.OwnerID = template.OwnerID
	created, err := e.Expenses().Create(ctx, actor, generated)
	if err != nil {
		return nil, err
	}
	if _, err := e.Expenses().Apply(ctx, actor, template, lifecycle.Request{Action: kinds.AdvanceRecurrence}); err != nil {
		return created, err
	}
	return created, nil
}
