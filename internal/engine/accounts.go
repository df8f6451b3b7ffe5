package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Accounts() Records[domain.FinancialAccount, *domain.FinancialAccount] {
	return records(e, kinds.FinancialAccount)
}

func (e Engine) CreateAccount(ctx context.Context, actor auth.Actor, a *domain.FinancialAccount) (*domain.FinancialAccount, error) {
	if a.Currency == "" {
		a.Currency = e.Config.Organization.Currency
	}
	a.Currency = strings.ToUpper(a.Currency)
	a.Transactions = []domain.Transaction{}
	return e.Accounts().Create(ctx, actor, a)
}

type AccountPatch struct {
	Name          *string             `json:"name,omitempty"`
	Type          *domain.AccountType `json:"type,omitempty"`
	AccountNumber *string             `json:"account_number,omitempty"`
	Institution   *string             `json:"institution,omitempty"`
}

// UpdateAccount edits descriptive fields. Balances move only through
// transactions.
func (e Engine) UpdateAccount(ctx context.Context, actor auth.Actor, id string, p AccountPatch) (*domain.FinancialAccount, error) {
	return e.Accounts().Update(ctx, actor, id, func(a *domain.FinancialAccount) error {
		set(&a.Name, p.Name)
		set(&a.Type, p.Type)
		set(&a.AccountNumber, p.AccountNumber)
		set(&a.Institution, p.Institution)
		return nil
	})
}

func (e Engine) AddTransaction(ctx context.Context, actor auth.Actor, id string, tx domain.Transaction) (*domain.FinancialAccount, error) {
	return e.Accounts().Do(ctx, actor, id, lifecycle.Request{Action: kinds.AddTransaction, Data: tx})
}

func (e Engine) TransitionAccount(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.FinancialAccount, error) {
	return e.Accounts().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

// DeactivateAccount is the account delete: it flips isActive off.
func (e Engine) DeactivateAccount(ctx context.Context, actor auth.Actor, id string) (*domain.FinancialAccount, error) {
	return e.Accounts().Delete(ctx, actor, id, nil)
}

func (e Engine) ListAccounts(ctx context.Context, activeOnly bool) ([]*domain.FinancialAccount, error) {
	q := store.Query{}
	if activeOnly {
		q.Status = []string{string(domain.StatusActive)}
	}
	return e.Accounts().List(ctx, q, nil)
}

func (e Engine) AccountBalanceAt(ctx context.Context, id string, at time.Time) (decimal.Decimal, error) {
	a, err := e.Accounts().Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return derive.BalanceAt(a.OpeningBalance, a.Transactions, at), nil
}

func (e Engine) AccountTransactions(ctx context.Context, id string, from, to time.Time) ([]domain.Transaction, error) {
	a, err := e.Accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = e.now()
	}
	return derive.TransactionsBetween(a.Transactions, from, to), nil
}

// TotalBalance sums current balances of active accounts.
func (e Engine) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	accts, err := e.ListAccounts(ctx, true)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range accts {
		total = total.Add(a.CurrentBalance)
	}
	return total, nil
}
