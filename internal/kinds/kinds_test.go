package kinds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

type mem[T any, P domain.Entity[T]] struct {
	docs map[string][]byte
}

func (m *mem[T, P]) Get(_ context.Context, id string) (P, error) {
	data, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	rec := P(new(T))
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *mem[T, P]) Put(_ context.Context, rec P, _ lifecycle.Change) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.docs[rec.Meta().ID] = data
	return nil
}

func (m *mem[T, P]) Remove(_ context.Context, rec P, _ lifecycle.Change) error {
	delete(m.docs, rec.Meta().ID)
	return nil
}

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func guard[T any, P domain.Entity[T]](k lifecycle.Kind[T, P]) (lifecycle.Guard[T, P], *mem[T, P], *clock) {
	c := &clock{now: t0}
	m := &mem[T, P]{docs: map[string][]byte{}}
	return lifecycle.Guard[T, P]{Kind: k, Backend: m, Now: c.Now}, m, c
}

var (
	owner   = auth.Actor{ID: "u-owner", Email: "owner@example.com", Role: auth.RoleUser}
	other   = auth.Actor{ID: "u-other", Email: "other@example.com", Role: auth.RoleUser}
	admin   = auth.Actor{ID: "u-admin", Role: auth.RoleAdmin}
	manager = auth.Actor{ID: "u-manager", Role: auth.RoleManager, Permissions: []string{PermExpenseApprove}}
)

func tables() []lifecycle.Table {
	return []lifecycle.Table{
		Ticket.Table, Invoice.Table, Budget.Table, Expense.Table, FinancialAccount.Table,
		Campaign.Table, SocialPost.Table, SocialAccount.Table, KnowledgeArticle.Table,
		Lead.Table, PipelineStage.Table, User.Table,
	}
}

func TestTablesAreWellFormed(t *testing.T) {
	for _, tbl := range tables() {
		t.Run(tbl.Kind, func(t *testing.T) {
			assert.True(t, tbl.Has(tbl.Initial), "initial status must be listed")
			for action, rule := range tbl.Actions {
				for _, s := range rule.From {
					assert.True(t, tbl.Has(s), "%s: unknown source %s", action, s)
				}
				if rule.To != "" {
					assert.True(t, tbl.Has(rule.To), "%s: unknown target %s", action, rule.To)
				}
			}
			if tbl.SoftDelete != "" {
				assert.True(t, tbl.Has(tbl.SoftDelete))
			}
		})
	}
}

func TestActionsOutsideTableAreInvalidTransitions(t *testing.T) {
	for _, tbl := range tables() {
		for action, rule := range tbl.Actions {
			if len(rule.From) == 0 {
				continue
			}
			for _, s := range tbl.Statuses {
				legal := false
				for _, f := range rule.From {
					legal = legal || f == s
				}
				if legal {
					continue
				}
				_, err := tbl.Next(s, action, "")
				var te lifecycle.InvalidTransitionError
				require.ErrorAs(t, err, &te, "%s %s from %s", tbl.Kind, action, s)
				assert.Contains(t, te.Error(), string(s))
				assert.Contains(t, te.Error(), string(action))
			}
		}
	}
}

func newTicket() *domain.Ticket {
	return &domain.Ticket{
		Title:       "VPN down",
		Description: "Cannot connect",
		Priority:    domain.PriorityHigh,
		Category:    domain.TicketNetwork,
		Requester:   domain.Requester{Name: "Owner", Email: "owner@example.com"},
		SLA:         domain.SLA{ResponseTime: 24, ResolutionTime: 72},
	}
}

func TestTicketSLABreachIsDetectedOnce(t *testing.T) {
	g, _, clk := guard(Ticket)
	ctx := context.Background()
	tk, err := g.Create(ctx, owner, newTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketOpen, tk.Status)
	assert.Equal(t, t0.Add(24*time.Hour), tk.SLA.ResponseDeadline)
	assert.Equal(t, t0.Add(72*time.Hour), tk.SLA.ResolutionDeadline)
	assert.False(t, tk.SLA.IsBreached)

	clk.now = t0.Add(25 * time.Hour)
	tk, err = g.Do(ctx, other, tk.ID, lifecycle.Request{Action: CheckSLA})
	require.NoError(t, err)
	assert.True(t, tk.SLA.IsBreached)
	require.Len(t, tk.Comments, 1)
	assert.Equal(t, "SLA breach detected", tk.Comments[0].Text)

	tk, err = g.Do(ctx, other, tk.ID, lifecycle.Request{Action: Resolve})
	require.NoError(t, err)
	assert.True(t, tk.SLA.IsBreached)
	require.NotNil(t, tk.ResolutionTime)
	assert.Equal(t, "Ticket status changed to resolved", tk.Comments[0].Text)
	assert.Len(t, tk.Comments, 2)
}

func TestTicketFirstResponseIgnoresRequester(t *testing.T) {
	g, _, clk := guard(Ticket)
	ctx := context.Background()
	tk, err := g.Create(ctx, owner, newTicket())
	require.NoError(t, err)

	tk, err = g.Do(ctx, owner, tk.ID, lifecycle.Request{Action: Comment, Data: TicketComment{Text: "any news?"}})
	require.NoError(t, err)
	assert.Nil(t, tk.FirstResponseTime)

	clk.now = t0.Add(time.Hour)
	tk, err = g.Do(ctx, other, tk.ID, lifecycle.Request{Action: Comment, Data: TicketComment{Text: "looking"}})
	require.NoError(t, err)
	require.NotNil(t, tk.FirstResponseTime)
	assert.Equal(t, t0.Add(time.Hour), *tk.FirstResponseTime)
	assert.Equal(t, "looking", tk.Comments[0].Text)

	clk.now = t0.Add(2 * time.Hour)
	tk, err = g.Do(ctx, admin, tk.ID, lifecycle.Request{Action: Comment, Data: TicketComment{Text: "again"}})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *tk.FirstResponseTime)
}

func TestTicketSetStatusIsPermissiveButClosedIsTerminal(t *testing.T) {
	g, _, _ := guard(Ticket)
	ctx := context.Background()
	tk, err := g.Create(ctx, owner, newTicket())
	require.NoError(t, err)

	tk, err = g.Do(ctx, other, tk.ID, lifecycle.Request{Action: SetStatus, Target: domain.TicketClosed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketClosed, tk.Status)
	assert.NotNil(t, tk.ResolutionTime)

	_, err = g.Do(ctx, other, tk.ID, lifecycle.Request{Action: SetStatus, Target: domain.TicketOpen})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	_, err = g.Delete(ctx, other, tk.ID, nil)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	_, err = g.Delete(ctx, admin, tk.ID, nil)
	require.NoError(t, err)
}

func TestInvoiceTotalsAndPaidFreeze(t *testing.T) {
	g, m, clk := guard(Invoice)
	ctx := context.Background()
	inv, err := g.Create(ctx, owner, &domain.Invoice{
		Client:    domain.InvoiceClient{Name: "Acme", Email: "billing@acme.test"},
		IssueDate: t0,
		DueDate:   t0.AddDate(0, 0, 30),
		Items: []domain.LineItem{{
			Description: "Consulting",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.NewFromInt(50),
			Amount:      decimal.NewFromInt(100),
		}},
		TaxRate:  decimal.NewFromInt(10),
		Discount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(105)))

	_, err = g.Do(ctx, owner, inv.ID, lifecycle.Request{Action: Send})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, inv.ID, lifecycle.Request{Action: MarkOverdue})
	var pe lifecycle.PreconditionError
	require.ErrorAs(t, err, &pe)

	clk.now = t0.AddDate(0, 0, 31)
	inv, err = g.Do(ctx, owner, inv.ID, lifecycle.Request{Action: MarkOverdue})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, inv.Status)

	inv, err = g.Do(ctx, owner, inv.ID, lifecycle.Request{Action: MarkPaid, Data: domain.PaymentDetails{Method: domain.PayBankTransfer}})
	require.NoError(t, err)
	require.NotNil(t, inv.PaymentDetails)
	assert.Equal(t, clk.now, *inv.PaymentDetails.PaymentDate)

	before := string(m.docs[inv.ID])
	_, err = g.Delete(ctx, owner, inv.ID, nil)
	require.ErrorAs(t, err, &pe)
	_, err = g.Update(ctx, owner, inv.ID, func(i *domain.Invoice) error { i.Notes = "late"; return nil })
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, before, string(m.docs[inv.ID]))
}

func TestInvoiceDiscountCannotMakeTotalNegative(t *testing.T) {
	g, _, _ := guard(Invoice)
	_, err := g.Create(context.Background(), owner, &domain.Invoice{
		Client:   domain.InvoiceClient{Name: "Acme", Email: "billing@acme.test"},
		DueDate:  t0.AddDate(0, 0, 30),
		Items:    []domain.LineItem{{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)}},
		Discount: decimal.NewFromInt(50),
	})
	var ve lifecycle.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "discount")
}

func TestInvoiceRequiresItemsAndClient(t *testing.T) {
	g, _, _ := guard(Invoice)
	_, err := g.Create(context.Background(), owner, &domain.Invoice{DueDate: t0})
	var ve lifecycle.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "client.name")
	assert.Contains(t, ve.Fields, "client.email")
	assert.Contains(t, ve.Fields, "items")
}

func TestBudgetLifecycle(t *testing.T) {
	g, m, _ := guard(Budget)
	ctx := context.Background()
	b, err := g.Create(ctx, owner, &domain.Budget{
		Name:      "Q1",
		Period:    domain.PeriodQuarterly,
		StartDate: t0,
		EndDate:   t0.AddDate(0, 3, 0),
		Categories: []domain.BudgetCategory{
			{Category: domain.CategoryRent, PlannedAmount: decimal.NewFromInt(1000)},
			{Category: domain.CategoryTravel, PlannedAmount: decimal.NewFromInt(500)},
		},
	})
	require.NoError(t, err)
	assert.True(t, b.TotalPlanned.Equal(decimal.NewFromInt(1500)))

	b, err = g.Do(ctx, owner, b.ID, lifecycle.Request{Action: Activate})
	require.NoError(t, err)

	_, err = g.Do(ctx, owner, b.ID, lifecycle.Request{Action: Activate})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "already active", te.Reason)

	before := string(m.docs[b.ID])
	_, err = g.Delete(ctx, owner, b.ID, nil)
	var pe lifecycle.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, before, string(m.docs[b.ID]))

	b, err = g.Do(ctx, owner, b.ID, lifecycle.Request{
		Action: RefreshActuals,
		Data:   map[domain.ExpenseCategory]decimal.Decimal{domain.CategoryRent: decimal.NewFromInt(800)},
	})
	require.NoError(t, err)
	assert.True(t, b.TotalActual.Equal(decimal.NewFromInt(800)))

	_, err = g.Do(ctx, owner, b.ID, lifecycle.Request{Action: Close})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, b.ID, lifecycle.Request{Action: Activate})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Cannot activate a closed budget", te.Reason)
	_, err = g.Do(ctx, owner, b.ID, lifecycle.Request{Action: Close})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "already closed", te.Reason)
}

func TestExpenseApprovalNeedsPermission(t *testing.T) {
	g, _, _ := guard(Expense)
	ctx := context.Background()
	e, err := g.Create(ctx, owner, &domain.Expense{
		Description:   "Flight",
		Amount:        decimal.NewFromInt(320),
		Date:          t0,
		Category:      domain.CategoryTravel,
		PaymentMethod: domain.ExpenseCreditCard,
	})
	require.NoError(t, err)

	_, err = g.Do(ctx, owner, e.ID, lifecycle.Request{Action: Approve})
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, PermExpenseApprove, fe.Permission)

	e, err = g.Do(ctx, manager, e.ID, lifecycle.Request{Action: Approve})
	require.NoError(t, err)
	assert.Equal(t, domain.ExpenseApproved, e.Status)
	assert.Equal(t, manager.ID, e.ApprovedBy)

	_, err = g.Update(ctx, owner, e.ID, func(x *domain.Expense) error { x.Notes = "n"; return nil })
	var pe lifecycle.PreconditionError
	require.ErrorAs(t, err, &pe)
}

func TestRecurringExpenseNeedsFrequency(t *testing.T) {
	g, _, _ := guard(Expense)
	_, err := g.Create(context.Background(), owner, &domain.Expense{
		Description:   "Rent",
		Amount:        decimal.NewFromInt(1000),
		Category:      domain.CategoryRent,
		PaymentMethod: domain.ExpenseBankTransfer,
		IsRecurring:   true,
	})
	var ve lifecycle.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestLeadScoreIsCappedAndMonotonic(t *testing.T) {
	g, _, _ := guard(Lead)
	ctx := context.Background()
	l, err := g.Create(ctx, owner, &domain.Lead{Email: "lead@example.com", Name: "Lee", Source: domain.SourceWebsite})
	require.NoError(t, err)
	assert.Equal(t, 15, l.Score)
	assert.Equal(t, t0, l.LastActivity)

	prev := l.Score
	for i := 0; i < 50; i++ {
		l, err = g.Do(ctx, owner, l.ID, lifecycle.Request{
			Action: AddActivity,
			Data:   domain.Activity{Type: domain.ActivityMeeting, Description: "demo"},
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, l.Score, prev)
		prev = l.Score
	}
	assert.Equal(t, 100, l.Score)
	assert.Len(t, l.Activities, 50)
}

func TestLeadClosedStatesRefuseActivity(t *testing.T) {
	g, _, _ := guard(Lead)
	ctx := context.Background()
	l, err := g.Create(ctx, owner, &domain.Lead{Email: "lead@example.com", Name: "Lee", Source: domain.SourceReferral})
	require.NoError(t, err)
	l, err = g.Do(ctx, owner, l.ID, lifecycle.Request{Action: MoveStage, Data: StageMove{StageID: "s1", StageName: "Discovery"}})
	require.NoError(t, err)
	assert.Equal(t, "s1", l.StageID)
	assert.Equal(t, "Moved to stage: Discovery", l.Activities[0].Description)

	_, err = g.Do(ctx, owner, l.ID, lifecycle.Request{Action: Lose})
	require.NoError(t, err)
	_, err = g.Do(ctx, owner, l.ID, lifecycle.Request{Action: AddActivity, Data: domain.Activity{Type: domain.ActivityCall, Description: "x"}})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)
}

func TestSocialPostPublishFailureIsRecorded(t *testing.T) {
	g, _, clk := guard(SocialPost)
	ctx := context.Background()
	p, err := g.Create(ctx, owner, &domain.SocialPost{AccountID: "acct-1", Content: domain.PostContent{Text: "Launch day"}})
	require.NoError(t, err)

	_, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Schedule, Data: t0.Add(-time.Hour)})
	var ve lifecycle.ValidationError
	require.ErrorAs(t, err, &ve)

	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Schedule, Data: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.PostScheduled, p.Status)

	clk.now = t0.Add(2 * time.Hour)
	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Publish, Data: PublishResult{
		Error: &domain.ErrorDetails{Message: "token expired", Code: "ACCOUNT_ERROR", Timestamp: clk.now},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.PostFailed, p.Status)
	assert.Equal(t, "ACCOUNT_ERROR", p.ErrorDetails.Code)

	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Publish, Data: PublishResult{PostID: "x1", URL: "https://social.test/x1"}})
	require.NoError(t, err)
	assert.Equal(t, domain.PostPublished, p.Status)
	assert.Nil(t, p.ErrorDetails)

	_, err = g.Delete(ctx, owner, p.ID, nil)
	var pe lifecycle.PreconditionError
	require.ErrorAs(t, err, &pe)
}

func TestFailedPostCanReturnToDraft(t *testing.T) {
	g, _, clk := guard(SocialPost)
	ctx := context.Background()
	p, err := g.Create(ctx, owner, &domain.SocialPost{AccountID: "acct-1", Content: domain.PostContent{Text: "Teaser"}})
	require.NoError(t, err)

	_, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Redraft})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Schedule, Data: t0.Add(time.Hour)})
	require.NoError(t, err)
	clk.now = t0.Add(2 * time.Hour)
	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Publish, Data: PublishResult{
		Error: &domain.ErrorDetails{Message: "rate limited", Code: "RATE_LIMIT", Timestamp: clk.now},
	}})
	require.NoError(t, err)
	require.Equal(t, domain.PostFailed, p.Status)

	p, err = g.Do(ctx, owner, p.ID, lifecycle.Request{Action: Redraft})
	require.NoError(t, err)
	assert.Equal(t, domain.PostDraft, p.Status)
	assert.Nil(t, p.ErrorDetails)
	assert.Nil(t, p.ScheduledTime)
}

func TestArticleReadersAndSoftDelete(t *testing.T) {
	g, _, _ := guard(KnowledgeArticle)
	ctx := context.Background()
	a, err := g.Create(ctx, owner, &domain.KnowledgeArticle{Title: "Reset VPN", Content: "Steps", Category: domain.ArticleTroubleshooting})
	require.NoError(t, err)

	_, err = g.Do(ctx, other, a.ID, lifecycle.Request{Action: View})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)

	_, err = g.Do(ctx, other, a.ID, lifecycle.Request{Action: Publish})
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)

	_, err = g.Do(ctx, owner, a.ID, lifecycle.Request{Action: Publish})
	require.NoError(t, err)
	a, err = g.Do(ctx, other, a.ID, lifecycle.Request{Action: View})
	require.NoError(t, err)
	assert.Equal(t, 1, a.ViewCount)
	a, err = g.Do(ctx, other, a.ID, lifecycle.Request{Action: Feedback, Data: false})
	require.NoError(t, err)
	assert.Equal(t, 1, a.UnhelpfulCount)

	a, err = g.Delete(ctx, owner, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ArticleArchived, a.Status)
}

func TestAccountTransactionsUpdateBalance(t *testing.T) {
	g, _, _ := guard(FinancialAccount)
	ctx := context.Background()
	acct, err := g.Create(ctx, owner, &domain.FinancialAccount{Name: "Ops", Type: domain.AccountBank, OpeningBalance: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.True(t, acct.IsActive)

	acct, err = g.Do(ctx, owner, acct.ID, lifecycle.Request{Action: AddTransaction, Data: domain.Transaction{
		Description: "Fee", Amount: decimal.NewFromInt(15), Type: domain.TxFee,
	}})
	require.NoError(t, err)
	assert.True(t, acct.CurrentBalance.Equal(decimal.NewFromInt(85)))
	assert.Equal(t, t0, acct.Transactions[0].Date)

	acct, err = g.Delete(ctx, owner, acct.ID, nil)
	require.NoError(t, err)
	assert.False(t, acct.IsActive)

	_, err = g.Do(ctx, owner, acct.ID, lifecycle.Request{Action: AddTransaction, Data: domain.Transaction{
		Description: "Late", Amount: decimal.NewFromInt(1), Type: domain.TxDeposit,
	}})
	var te lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "account is inactive", te.Reason)
}

func TestCampaignEffectivenessFollowsMetrics(t *testing.T) {
	g, _, _ := guard(Campaign)
	ctx := context.Background()
	c, err := g.Create(ctx, owner, &domain.Campaign{Name: "Spring", Type: domain.CampaignEmail, Budget: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	_, err = g.Do(ctx, owner, c.ID, lifecycle.Request{Action: RecordMetrics, Data: domain.PerformanceMetrics{Leads: 1}})
	require.True(t, errors.As(err, new(lifecycle.InvalidTransitionError)))

	c, err = g.Do(ctx, owner, c.ID, lifecycle.Request{Action: Start})
	require.NoError(t, err)
	require.NotNil(t, c.StartDate)

	c, err = g.Do(ctx, owner, c.ID, lifecycle.Request{Action: RecordMetrics, Data: domain.PerformanceMetrics{
		Leads: 20, Conversions: 5, Revenue: decimal.NewFromInt(3000),
	}})
	require.NoError(t, err)
	assert.True(t, c.Effectiveness.CostPerLead.Equal(decimal.NewFromInt(50)))
	assert.True(t, c.Effectiveness.CostPerConversion.Equal(decimal.NewFromInt(200)))
	assert.True(t, c.Effectiveness.ROI.Equal(decimal.NewFromInt(200)))
	assert.True(t, c.Effectiveness.ConversionRate.Equal(decimal.NewFromInt(25)))
}
