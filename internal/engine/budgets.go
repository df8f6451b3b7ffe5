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

func (e Engine) Budgets() Records[domain.Budget, *domain.Budget] { return records(e, kinds.Budget) }

func (e Engine) CreateBudget(ctx context.Context, actor auth.Actor, b *domain.Budget) (*domain.Budget, error) {
	for i := range b.Categories {
		b.Categories[i].ActualAmount = decimal.Zero
	}
	return e.Budgets().Create(ctx, actor, b)
}

type BudgetPatch struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Period      *domain.BudgetPeriod    `json:"period,omitempty"`
	StartDate   *time.Time              `json:"start_date,omitempty"`
	EndDate     *time.Time              `json:"end_date,omitempty"`
	Categories  []domain.BudgetCategory `json:"categories,omitempty"`
}

// UpdateBudget keeps recorded actuals for categories that survive the edit.
func (e Engine) UpdateBudget(ctx context.Context, actor auth.Actor, id string, p BudgetPatch) (*domain.Budget, error) {
	return e.Budgets().Update(ctx, actor, id, func(b *domain.Budget) error {
		set(&b.Name, p.Name)
		set(&b.Description, p.Description)
		set(&b.Period, p.Period)
		set(&b.StartDate, p.StartDate)
		set(&b.EndDate, p.EndDate)
		if p.Categories != nil {
			actual := make(map[domain.ExpenseCategory]domain.BudgetCategory, len(b.Categories))
			for _, c := range b.Categories {
				actual[c.Category] = c
			}
			for i, c := range p.Categories {
				p.Categories[i].ActualAmount = actual[c.Category].ActualAmount
			}
			b.Categories = p.Categories
		}
		return nil
	})
}

func (e Engine) TransitionBudget(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.Budget, error) {
	if action == kinds.RefreshActuals {
		return e.RefreshBudgetActuals(ctx, actor, id)
	}
	return e.Budgets().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

// RefreshBudgetActuals pulls approved expenses dated inside the budget
// period into each category's actual amount.
func (e Engine) RefreshBudgetActuals(ctx context.Context, actor auth.Actor, id string) (*domain.Budget, error) {
	budgets := e.Budgets()
	b, err := budgets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expenses, err := e.Expenses().List(ctx, store.Query{Status: []string{string(domain.ExpenseApproved)}}, nil)
	if err != nil {
		return nil, err
	}
	plain := make([]domain.Expense, len(expenses))
	for i, x := range expenses {
		plain[i] = *x
	}
	actuals := derive.ActualsByCategory(plain, b.StartDate, b.EndDate)
	return budgets.Apply(ctx, actor, b, lifecycle.Request{Action: kinds.RefreshActuals, Data: actuals})
}

func (e Engine) BudgetVariance(ctx context.Context, id string) (derive.BudgetVariance, error) {
	b, err := e.Budgets().Get(ctx, id)
	if err != nil {
		return derive.BudgetVariance{}, err
	}
	return derive.Variance(b.Categories), nil
}

func (e Engine) DeleteBudget(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Budgets().Delete(ctx, actor, id, nil)
	return err
}

func (e Engine) ListBudgets(ctx context.Context, status []domain.Status, period domain.BudgetPeriod) ([]*domain.Budget, error) {
	return e.Budgets().List(ctx, store.Query{Status: statusStrings(status)}, func(b *domain.Budget) bool {
		return period == "" || b.Period == period
	})
}

// ActiveBudgets lists active budgets whose period contains today.
func (e Engine) ActiveBudgets(ctx context.Context) ([]*domain.Budget, error) {
	now := e.now()
	return e.Budgets().List(ctx, store.Query{Status: []string{string(domain.BudgetActive)}}, func(b *domain.Budget) bool {
		return inRange(now, b.StartDate, b.EndDate)
	})
}
