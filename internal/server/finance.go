package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine"
)

func registerInvoices(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Invoice, *domain.Invoice, engine.InvoicePatch]{
		Path:       "/invoices",
		Name:       "invoice",
		Tag:        "invoices",
		Create:     e.CreateInvoice,
		Get:        getter(e.Invoices().Get),
		Update:     e.UpdateInvoice,
		Transition: action(e.TransitionInvoice),
		Delete:     e.DeleteInvoice,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "List invoices",
		Tags:        []string{"invoices"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status  string `query:"status"`
		Client  string `query:"client"`
		From    string `query:"from" doc:"Issue date lower bound"`
		To      string `query:"to"`
		Overdue bool   `query:"overdue"`
		Limit   int    `query:"limit" default:"50"`
	}) (*output[[]*domain.Invoice], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Overdue {
			items, err := e.OverdueInvoices(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(items), nil
		}
		from, perr := parseDate("from", input.From)
		if perr != nil {
			return nil, perr
		}
		to, perr := parseDate("to", input.To)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListInvoices(ctx, engine.InvoiceFilter{
			Status:     parseStatuses(input.Status),
			ClientName: input.Client,
			From:       from,
			To:         to,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-invoice",
		Method:      http.MethodPost,
		Path:        "/invoices/{id}/send",
		Summary:     "Send an invoice to the client",
		Tags:        []string{"invoices"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Invoice], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.SendInvoice(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(inv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pay-invoice",
		Method:      http.MethodPost,
		Path:        "/invoices/{id}/payments",
		Summary:     "Mark an invoice paid",
		Tags:        []string{"invoices"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Invoice], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var pd *domain.PaymentDetails
		if len(bodyBytes(ctx)) > 0 {
			pd = &domain.PaymentDetails{}
			if err := decodeBody(ctx, pd); err != nil {
				return nil, err
			}
		}
		inv, err := e.MarkInvoicePaid(ctx, actor, input.ID, pd)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(inv), nil
	})
}

func registerBudgets(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Budget, *domain.Budget, engine.BudgetPatch]{
		Path:       "/budgets",
		Name:       "budget",
		Tag:        "budgets",
		Create:     e.CreateBudget,
		Get:        getter(e.Budgets().Get),
		Update:     e.UpdateBudget,
		Transition: action(e.TransitionBudget),
		Delete:     e.DeleteBudget,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-budgets",
		Method:      http.MethodGet,
		Path:        "/budgets",
		Summary:     "List budgets",
		Tags:        []string{"budgets"},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Period string `query:"period"`
	}) (*output[[]*domain.Budget], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBudgets(ctx, parseStatuses(input.Status), domain.BudgetPeriod(input.Period))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-budget-actuals",
		Method:      http.MethodPost,
		Path:        "/budgets/{id}/refresh",
		Summary:     "Recompute actuals from approved expenses",
		Tags:        []string{"budgets"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Budget], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.RefreshBudgetActuals(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "budget-variance",
		Method:      http.MethodGet,
		Path:        "/budgets/{id}/variance",
		Summary:     "Planned versus actual per category",
		Tags:        []string{"budgets"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*output[derive.BudgetVariance], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.BudgetVariance(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})
}

func registerExpenses(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Expense, *domain.Expense, engine.ExpensePatch]{
		Path:       "/expenses",
		Name:       "expense",
		Tag:        "expenses",
		Create:     e.CreateExpense,
		Get:        getter(e.Expenses().Get),
		Update:     e.UpdateExpense,
		Transition: action(e.TransitionExpense),
		Delete:     e.DeleteExpense,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-expenses",
		Method:      http.MethodGet,
		Path:        "/expenses",
		Summary:     "List expenses",
		Tags:        []string{"expenses"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Category string `query:"category"`
		Vendor   string `query:"vendor"`
		From     string `query:"from"`
		To       string `query:"to"`
		Limit    int    `query:"limit" default:"50"`
	}) (*output[[]*domain.Expense], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		from, perr := parseDate("from", input.From)
		if perr != nil {
			return nil, perr
		}
		to, perr := parseDate("to", input.To)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListExpenses(ctx, engine.ExpenseFilter{
			Status:   parseStatuses(input.Status),
			Category: domain.ExpenseCategory(input.Category),
			Vendor:   input.Vendor,
			From:     from,
			To:       to,
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})
}

func registerAccounts(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.FinancialAccount, *domain.FinancialAccount, engine.AccountPatch]{
		Path:       "/accounts",
		Name:       "account",
		Tag:        "accounts",
		Create:     e.CreateAccount,
		Get:        getter(e.Accounts().Get),
		Update:     e.UpdateAccount,
		Transition: action(e.TransitionAccount),
		Delete:     softDelete(e.DeactivateAccount),
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/accounts",
		Summary:     "List financial accounts",
		Tags:        []string{"accounts"},
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active"`
	}) (*output[[]*domain.FinancialAccount], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAccounts(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-account-transaction",
		Method:      http.MethodPost,
		Path:        "/accounts/{id}/transactions",
		Summary:     "Record a transaction",
		Tags:        []string{"accounts"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.FinancialAccount], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var tx domain.Transaction
		if err := decodeBody(ctx, &tx); err != nil {
			return nil, err
		}
		a, err := e.AddTransaction(ctx, actor, input.ID, tx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-account-transactions",
		Method:      http.MethodGet,
		Path:        "/accounts/{id}/transactions",
		Summary:     "Transactions in a date range",
		Tags:        []string{"accounts"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		From string `query:"from"`
		To   string `query:"to"`
	}) (*output[[]domain.Transaction], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		from, perr := parseDate("from", input.From)
		if perr != nil {
			return nil, perr
		}
		to, perr := parseDate("to", input.To)
		if perr != nil {
			return nil, perr
		}
		items, err := e.AccountTransactions(ctx, input.ID, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "account-balance",
		Method:      http.MethodGet,
		Path:        "/accounts/{id}/balance",
		Summary:     "Balance at a date",
		Tags:        []string{"accounts"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		At string `query:"at" doc:"Defaults to now"`
	}) (*output[BalanceResponse], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		at, perr := parseDate("at", input.At)
		if perr != nil {
			return nil, perr
		}
		if at.IsZero() {
			at = now(e)
		}
		bal, err := e.AccountBalanceAt(ctx, input.ID, at)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(BalanceResponse{ID: input.ID, At: at, Balance: bal.StringFixed(2)}), nil
	})
}

