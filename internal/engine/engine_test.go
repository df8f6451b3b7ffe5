package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmline/internal/config"
	"crmline/internal/db"
	"crmline/internal/delivery"
	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/migrate"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// recorder is a delivery.Sender that remembers what it was asked to send.
type recorder struct {
	mu     sync.Mutex
	sent   []delivery.Notification
	result delivery.Result
}

func (r *recorder) Send(_ context.Context, n delivery.Notification) delivery.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	if r.result == (delivery.Result{}) {
		return delivery.Result{OK: true, ExternalID: fmt.Sprintf("ext-%d", len(r.sent)), URL: "https://social.example/p"}
	}
	return r.result
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *clock
	Sender *recorder

	Admin   auth.Actor
	Manager auth.Actor
	Owner   auth.Actor
	Other   auth.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	eng := engine.New(conn, config.Default(), nil)
	clk := &clock{t: epoch}
	eng.Now = clk.Now
	eng.Events.Now = clk.Now
	sender := &recorder{}
	eng.Delivery = sender
	return testEnv{
		Engine:  eng,
		Ctx:     context.Background(),
		Clock:   clk,
		Sender:  sender,
		Admin:   eng.Auth.ActorFor("admin-1", auth.RoleAdmin),
		Manager: eng.Auth.ActorFor("manager-1", auth.RoleManager),
		Owner:   eng.Auth.ActorForUser("owner-1", "agent@crm.test", auth.RoleUser),
		Other:   eng.Auth.ActorForUser("other-1", "other@crm.test", auth.RoleUser),
	}
}

func code(err error) string { return lifecycle.Code(err) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTicket() *domain.Ticket {
	return &domain.Ticket{
		Title:       "Printer offline",
		Description: "The office printer does not respond",
		Category:    domain.TicketHardware,
		Requester:   domain.Requester{Name: "Jane", Email: "jane@example.com", Phone: "(650) 253-0000"},
	}
}

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	tk, err := e.CreateTicket(env.Ctx, env.Owner, newTicket())
	require.NoError(t, err)
	assert.Equal(t, "TKT-0001", tk.TicketNumber)
	assert.Equal(t, domain.TicketOpen, tk.Status)
	assert.Equal(t, domain.PriorityMedium, tk.Priority)
	assert.Equal(t, "+16502530000", tk.Requester.Phone)
	assert.Equal(t, epoch.Add(24*time.Hour), tk.SLA.ResponseDeadline)
	assert.Equal(t, epoch.Add(72*time.Hour), tk.SLA.ResolutionDeadline)

	second, err := e.CreateTicket(env.Ctx, env.Owner, newTicket())
	require.NoError(t, err)
	assert.Equal(t, "TKT-0002", second.TicketNumber)

	requester := e.Auth.ActorForUser("jane-1", "JANE@example.com", auth.RoleUser)
	tk, err = e.CommentTicket(env.Ctx, requester, tk.ID, "any news?", false)
	require.NoError(t, err)
	assert.Nil(t, tk.FirstResponseTime)

	env.Clock.Advance(time.Hour)
	tk, err = e.CommentTicket(env.Ctx, env.Owner, tk.ID, "looking into it", false)
	require.NoError(t, err)
	require.NotNil(t, tk.FirstResponseTime)
	assert.Equal(t, epoch.Add(time.Hour), *tk.FirstResponseTime)
	assert.Equal(t, "looking into it", tk.Comments[0].Text)

	tk, err = e.TransitionTicket(env.Ctx, env.Owner, tk.ID, kinds.Resolve, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketResolved, tk.Status)
	require.NotNil(t, tk.ResolutionTime)
	assert.Equal(t, "Ticket status changed to resolved", tk.Comments[0].Text)

	tk, err = e.TransitionTicket(env.Ctx, env.Owner, tk.ID, kinds.Close, "")
	require.NoError(t, err)
	_, err = e.TransitionTicket(env.Ctx, env.Owner, tk.ID, kinds.SetStatus, domain.TicketOpen)
	assert.Equal(t, lifecycle.CodeTransition, code(err))

	err = e.DeleteTicket(env.Ctx, env.Owner, tk.ID)
	assert.Equal(t, lifecycle.CodeForbidden, code(err))
	require.NoError(t, e.DeleteTicket(env.Ctx, env.Admin, tk.ID))
	_, err = e.Tickets().Get(env.Ctx, tk.ID)
	assert.Equal(t, lifecycle.CodeNotFound, code(err))
}

func TestTicketRejectsInvalidPhone(t *testing.T) {
	env := newTestEnv(t)
	tk := newTicket()
	tk.Requester.Phone = "12"
	_, err := env.Engine.CreateTicket(env.Ctx, env.Owner, tk)
	assert.Equal(t, lifecycle.CodeValidation, code(err))
}

func TestTicketSLABreach(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	tk, err := e.CreateTicket(env.Ctx, env.Owner, newTicket())
	require.NoError(t, err)

	tk, err = e.CheckTicketSLA(env.Ctx, auth.System, tk.ID)
	require.NoError(t, err)
	assert.False(t, tk.SLA.IsBreached)

	env.Clock.Advance(25 * time.Hour)
	tk, err = e.CheckTicketSLA(env.Ctx, auth.System, tk.ID)
	require.NoError(t, err)
	assert.True(t, tk.SLA.IsBreached)
	require.NotEmpty(t, tk.Comments)
	assert.Equal(t, "SLA breach detected", tk.Comments[0].Text)
	assert.True(t, tk.Comments[0].IsInternal)

	tk, err = e.CheckTicketSLA(env.Ctx, auth.System, tk.ID)
	require.NoError(t, err)
	assert.Len(t, tk.Comments, 1)

	breached := true
	list, err := e.ListTickets(env.Ctx, engine.TicketFilter{Breached: &breached})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func newInvoice() *domain.Invoice {
	return &domain.Invoice{
		Client:  domain.InvoiceClient{Name: "Acme", Email: "billing@acme.example"},
		DueDate: epoch.AddDate(0, 0, 30),
		Items: []domain.LineItem{
			{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec("100")},
		},
		TaxRate: dec("5"),
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	inv, err := e.CreateInvoice(env.Ctx, env.Owner, newInvoice())
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", inv.InvoiceNumber)
	assert.True(t, dec("100").Equal(inv.Subtotal))
	assert.True(t, dec("105").Equal(inv.Total), inv.Total.String())

	inv, err = e.SendInvoice(env.Ctx, env.Owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceSent, inv.Status)
	require.Len(t, env.Sender.sent, 1)
	assert.Equal(t, delivery.ChannelEmail, env.Sender.sent[0].Channel)
	assert.Equal(t, "billing@acme.example", env.Sender.sent[0].To)

	_, err = e.MarkInvoicePaid(env.Ctx, env.Other, inv.ID, nil)
	assert.Equal(t, lifecycle.CodeForbidden, code(err))

	inv, err = e.MarkInvoicePaid(env.Ctx, env.Owner, inv.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, inv.Status)
	require.NotNil(t, inv.PaymentDetails)
	assert.Equal(t, domain.PayOther, inv.PaymentDetails.Method)

	notes := "late"
	_, err = e.UpdateInvoice(env.Ctx, env.Owner, inv.ID, engine.InvoicePatch{Notes: &notes})
	assert.Equal(t, lifecycle.CodePrecondition, code(err))
	err = e.DeleteInvoice(env.Ctx, env.Owner, inv.ID)
	assert.Equal(t, lifecycle.CodePrecondition, code(err))
}

func TestInvoiceSendFailureKeepsStatus(t *testing.T) {
	env := newTestEnv(t)
	env.Sender.result = delivery.Result{Code: "DELIVERY_ERROR", Message: "smtp down"}
	inv, err := env.Engine.CreateInvoice(env.Ctx, env.Owner, newInvoice())
	require.NoError(t, err)
	inv, err = env.Engine.SendInvoice(env.Ctx, env.Owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceSent, inv.Status)
}

func TestOverdueInvoices(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	inv, err := e.CreateInvoice(env.Ctx, env.Owner, newInvoice())
	require.NoError(t, err)
	_, err = e.SendInvoice(env.Ctx, env.Owner, inv.ID)
	require.NoError(t, err)

	_, err = e.TransitionInvoice(env.Ctx, env.Owner, inv.ID, kinds.MarkOverdue)
	assert.Equal(t, lifecycle.CodePrecondition, code(err))

	env.Clock.Advance(31 * 24 * time.Hour)
	due, err := e.OverdueInvoices(env.Ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	inv, err = e.TransitionInvoice(env.Ctx, env.Owner, inv.ID, kinds.MarkOverdue)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, inv.Status)
}

func TestPastDueDraftCanBeMarkedOverdue(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	inv, err := e.CreateInvoice(env.Ctx, env.Owner, newInvoice())
	require.NoError(t, err)
	require.Equal(t, domain.InvoiceDraft, inv.Status)

	env.Clock.Advance(31 * 24 * time.Hour)
	due, err := e.OverdueInvoices(env.Ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	inv, err = e.TransitionInvoice(env.Ctx, env.Owner, inv.ID, kinds.MarkOverdue)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, inv.Status)
}

func TestBudgetRefreshCountsApprovedExpenses(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	b, err := e.CreateBudget(env.Ctx, env.Owner, &domain.Budget{
		Name:      "January",
		Period:    domain.PeriodMonthly,
		StartDate: epoch,
		EndDate:   epoch.AddDate(0, 1, -1),
		Categories: []domain.BudgetCategory{
			{Category: domain.CategorySoftware, PlannedAmount: dec("500")},
			{Category: domain.CategoryTravel, PlannedAmount: dec("300")},
		},
	})
	require.NoError(t, err)
	assert.True(t, dec("800").Equal(b.TotalPlanned))

	approved, err := e.CreateExpense(env.Ctx, env.Owner, &domain.Expense{
		Description: "IDE licence", Amount: dec("120"), Date: epoch.AddDate(0, 0, 9),
		Category: domain.CategorySoftware, PaymentMethod: domain.ExpenseCreditCard,
	})
	require.NoError(t, err)
	_, err = e.CreateExpense(env.Ctx, env.Owner, &domain.Expense{
		Description: "Train", Amount: dec("80"), Date: epoch.AddDate(0, 0, 9),
		Category: domain.CategoryTravel, PaymentMethod: domain.ExpenseCash,
	})
	require.NoError(t, err)

	_, err = e.TransitionExpense(env.Ctx, env.Owner, approved.ID, kinds.Approve)
	assert.Equal(t, lifecycle.CodeForbidden, code(err))
	approved, err = e.TransitionExpense(env.Ctx, env.Manager, approved.ID, kinds.Approve)
	require.NoError(t, err)
	assert.Equal(t, env.Manager.ID, approved.ApprovedBy)

	_, err = e.TransitionBudget(env.Ctx, env.Owner, b.ID, kinds.Activate)
	require.NoError(t, err)
	b, err = e.RefreshBudgetActuals(env.Ctx, env.Owner, b.ID)
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(b.TotalActual), b.TotalActual.String())

	v, err := e.BudgetVariance(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, v.Categories, 2)

	active, err := e.ActiveBudgets(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	err = e.DeleteBudget(env.Ctx, env.Owner, b.ID)
	assert.Equal(t, lifecycle.CodePrecondition, code(err))
}

func TestRecurringExpenseGeneration(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	tpl, err := e.CreateExpense(env.Ctx, env.Owner, &domain.Expense{
		Description: "Office rent", Amount: dec("1500"), Date: epoch.AddDate(0, -1, 0),
		Category: domain.CategoryRent, PaymentMethod: domain.ExpenseBankTransfer,
		IsRecurring:      true,
		RecurringDetails: &domain.RecurringDetails{Frequency: domain.FrequencyMonthly},
	})
	require.NoError(t, err)
	require.NotNil(t, tpl.RecurringDetails.NextDueDate)
	assert.Equal(t, epoch, *tpl.RecurringDetails.NextDueDate)

	due, err := e.DueRecurringExpenses(env.Ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)

	generated, err := e.GenerateRecurringExpense(env.Ctx, auth.System, due[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ExpensePending, generated.Status)
	assert.Equal(t, "Auto-generated from recurring expense: Office rent", generated.Notes)
	assert.Equal(t, env.Owner.ID, generated.OwnerID)
	assert.Equal(t, epoch, generated.Date)
	assert.False(t, generated.IsRecurring)

	tpl, err = e.Expenses().Get(env.Ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, epoch.AddDate(0, 1, 0), *tpl.RecurringDetails.NextDueDate)

	due, err = e.DueRecurringExpenses(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestAccountLedger(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	acct, err := e.CreateAccount(env.Ctx, env.Owner, &domain.FinancialAccount{
		Name: "Operating", Type: domain.AccountBank, OpeningBalance: dec("1000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", acct.Currency)
	assert.True(t, acct.IsActive)

	_, err = e.AddTransaction(env.Ctx, env.Owner, acct.ID, domain.Transaction{Description: "Invoice INV-0001", Amount: dec("200"), Type: domain.TxDeposit})
	require.NoError(t, err)
	acct, err = e.AddTransaction(env.Ctx, env.Owner, acct.ID, domain.Transaction{Description: "Bank fee", Amount: dec("50"), Type: domain.TxWithdrawal})
	require.NoError(t, err)
	assert.True(t, dec("1150").Equal(acct.CurrentBalance), acct.CurrentBalance.String())
	assert.Equal(t, "Bank fee", acct.Transactions[0].Description)

	total, err := e.TotalBalance(env.Ctx)
	require.NoError(t, err)
	assert.True(t, dec("1150").Equal(total))

	_, err = e.DeactivateAccount(env.Ctx, env.Owner, acct.ID)
	require.NoError(t, err)
	_, err = e.AddTransaction(env.Ctx, env.Owner, acct.ID, domain.Transaction{Description: "x", Amount: dec("1"), Type: domain.TxDeposit})
	assert.Equal(t, lifecycle.CodeTransition, code(err))

	total, err = e.TotalBalance(env.Ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestCampaignAttention(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c, err := e.CreateCampaign(env.Ctx, env.Owner, &domain.Campaign{Name: "Launch", Type: domain.CampaignEmail, Budget: dec("1000")})
	require.NoError(t, err)

	c, err = e.TransitionCampaign(env.Ctx, env.Owner, c.ID, kinds.Start)
	require.NoError(t, err)
	require.NotNil(t, c.StartDate)
	_, err = e.TransitionCampaign(env.Ctx, env.Owner, c.ID, kinds.Start)
	assert.Equal(t, lifecycle.CodeTransition, code(err))

	c, err = e.RecordCampaignMetrics(env.Ctx, env.Owner, c.ID, domain.PerformanceMetrics{Leads: 2, Conversions: 0, Revenue: dec("0")})
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(c.Effectiveness.CostPerLead))

	attention, err := e.CampaignsNeedingAttention(env.Ctx)
	require.NoError(t, err)
	require.Len(t, attention, 1)
	assert.Equal(t, c.ID, attention[0].ID)
}

func TestPublishPost(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	acct, err := e.CreateSocialAccount(env.Ctx, env.Owner, &domain.SocialAccount{Platform: domain.PlatformTwitter, AccountName: "@crmline"})
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionPending, acct.ConnectionStatus)

	post, err := e.CreatePost(env.Ctx, env.Owner, &domain.SocialPost{AccountID: acct.ID, Content: domain.PostContent{Text: "hello"}})
	require.NoError(t, err)

	post, err = e.PublishPost(env.Ctx, env.Owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostFailed, post.Status)
	require.NotNil(t, post.ErrorDetails)
	assert.Equal(t, "ACCOUNT_ERROR", post.ErrorDetails.Code)
	assert.Empty(t, env.Sender.sent)

	connected := domain.ConnectionConnected
	_, err = e.UpdateSocialAccount(env.Ctx, env.Owner, acct.ID, engine.SocialAccountPatch{ConnectionStatus: &connected})
	require.NoError(t, err)

	post, err = e.PublishPost(env.Ctx, env.Owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostPublished, post.Status)
	assert.Equal(t, "ext-1", post.PostID)
	assert.Nil(t, post.ErrorDetails)
	require.NotNil(t, post.PublishedTime)

	err = e.DeletePost(env.Ctx, env.Owner, post.ID)
	assert.Equal(t, lifecycle.CodePrecondition, code(err))
}

func TestPublishPostDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	env.Sender.result = delivery.Result{Code: "DELIVERY_ERROR", Message: "rate limited"}
	acct, err := e.CreateSocialAccount(env.Ctx, env.Owner, &domain.SocialAccount{
		Platform: domain.PlatformLinkedIn, AccountName: "crmline", ConnectionStatus: domain.ConnectionConnected,
	})
	require.NoError(t, err)
	post, err := e.CreatePost(env.Ctx, env.Owner, &domain.SocialPost{AccountID: acct.ID, Content: domain.PostContent{Text: "hi"}})
	require.NoError(t, err)

	_, err = e.SchedulePost(env.Ctx, env.Owner, post.ID, epoch.Add(-time.Hour))
	assert.Equal(t, lifecycle.CodeValidation, code(err))
	post, err = e.SchedulePost(env.Ctx, env.Owner, post.ID, epoch.Add(time.Hour))
	require.NoError(t, err)

	env.Clock.Advance(2 * time.Hour)
	due, err := e.DuePosts(env.Ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)

	post, err = e.PublishPost(env.Ctx, env.Owner, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostFailed, post.Status)
	assert.Equal(t, "DELIVERY_ERROR", post.ErrorDetails.Code)
	assert.Equal(t, "rate limited", post.ErrorDetails.Message)
}

func TestPostRequiresExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreatePost(env.Ctx, env.Owner, &domain.SocialPost{AccountID: "missing", Content: domain.PostContent{Text: "x"}})
	assert.Equal(t, lifecycle.CodeValidation, code(err))
}

func TestKnowledgeVisibility(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	draft, err := e.CreateArticle(env.Ctx, env.Owner, &domain.KnowledgeArticle{Title: "Reset VPN", Content: "Steps", Category: domain.ArticleTroubleshooting})
	require.NoError(t, err)
	pub, err := e.CreateArticle(env.Ctx, env.Owner, &domain.KnowledgeArticle{Title: "Printer setup", Content: "Install the driver", Category: domain.ArticleTechnical, Tags: []string{"printer"}})
	require.NoError(t, err)
	_, err = e.TransitionArticle(env.Ctx, env.Owner, pub.ID, kinds.Publish)
	require.NoError(t, err)

	found, err := e.SearchArticles(env.Ctx, env.Other, engine.ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, pub.ID, found[0].ID)

	found, err = e.SearchArticles(env.Ctx, env.Admin, engine.ArticleFilter{Query: "vpn"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, draft.ID, found[0].ID)

	found, err = e.SearchArticles(env.Ctx, env.Other, engine.ArticleFilter{Query: "PRINTER"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = e.GetArticle(env.Ctx, env.Other, draft.ID)
	assert.Equal(t, lifecycle.CodeNotFound, code(err))
	_, err = e.ViewArticle(env.Ctx, env.Other, draft.ID)
	assert.Equal(t, lifecycle.CodeTransition, code(err))

	viewed, err := e.ViewArticle(env.Ctx, env.Other, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.ViewCount)
	rated, err := e.ArticleFeedback(env.Ctx, env.Other, pub.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rated.UnhelpfulCount)

	archived, err := e.ArchiveArticle(env.Ctx, env.Owner, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ArticleArchived, archived.Status)
}

func TestLeadPipeline(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	prospect, err := e.CreateStage(env.Ctx, env.Owner, &domain.PipelineStage{Name: "Prospect", Order: 1})
	require.NoError(t, err)
	demo, err := e.CreateStage(env.Ctx, env.Owner, &domain.PipelineStage{Name: "Demo", Order: 2})
	require.NoError(t, err)

	lead, err := e.CreateLead(env.Ctx, env.Owner, &domain.Lead{
		Email: "Lee@Example.com", Name: "Lee", Source: domain.SourceWebsite, StageID: prospect.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "lee@example.com", lead.Email)
	assert.Equal(t, 15, lead.Score)
	assert.Equal(t, epoch, lead.LastActivity)

	_, err = e.CreateLead(env.Ctx, env.Owner, &domain.Lead{Email: "lee@example.com", Name: "Dup", Source: domain.SourceOther})
	require.Error(t, err)
	assert.Equal(t, lifecycle.CodeValidation, code(err))
	assert.Contains(t, err.Error(), "Lead already exists")

	lead, err = e.AddLeadActivity(env.Ctx, env.Owner, lead.ID, domain.Activity{Type: domain.ActivityMeeting, Description: "Kickoff"})
	require.NoError(t, err)
	assert.Equal(t, 35, lead.Score)
	assert.Equal(t, env.Owner.ID, lead.Activities[0].CreatedBy)

	_, err = e.MoveLeadStage(env.Ctx, env.Owner, lead.ID, "missing")
	assert.Equal(t, lifecycle.CodeValidation, code(err))

	lead, err = e.MoveLeadStage(env.Ctx, env.Owner, lead.ID, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, demo.ID, lead.StageID)
	assert.Equal(t, "Moved to stage: Demo", lead.Activities[0].Description)

	err = e.DeleteStage(env.Ctx, env.Owner, demo.ID)
	require.Error(t, err)
	assert.Equal(t, lifecycle.CodePrecondition, code(err))
	assert.Contains(t, err.Error(), "Cannot delete stage with leads. Move leads to another stage first.")
	require.NoError(t, e.DeleteStage(env.Ctx, env.Owner, prospect.ID))

	for _, a := range []lifecycle.Action{kinds.Qualify, kinds.Propose, kinds.Win} {
		lead, err = e.TransitionLead(env.Ctx, env.Owner, lead.ID, a)
		require.NoError(t, err, a)
	}
	assert.Equal(t, domain.LeadWon, lead.Status)
	_, err = e.AddLeadActivity(env.Ctx, env.Owner, lead.ID, domain.Activity{Type: domain.ActivityCall, Description: "x"})
	assert.Equal(t, lifecycle.CodeTransition, code(err))
}

func TestStageConversionRate(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	first, err := e.CreateStage(env.Ctx, env.Owner, &domain.PipelineStage{Name: "Contacted", Order: 1})
	require.NoError(t, err)
	second, err := e.CreateStage(env.Ctx, env.Owner, &domain.PipelineStage{Name: "Qualified", Order: 2})
	require.NoError(t, err)

	add := func(n int, stage string) {
		for i := 0; i < n; i++ {
			_, err := e.CreateLead(env.Ctx, env.Owner, &domain.Lead{
				Email:   fmt.Sprintf("%s-%d@example.com", stage, i),
				Name:    "Lead",
				Source:  domain.SourceReferral,
				StageID: stage,
			})
			require.NoError(t, err)
		}
	}
	add(10, first.ID)
	add(3, second.ID)

	rate, err := e.StageConversionRate(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, rate, 0.0001)

	rate, err = e.StageConversionRate(env.Ctx, second.ID)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestLeadsNeedingFollowUp(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	stale, err := e.CreateLead(env.Ctx, env.Owner, &domain.Lead{Email: "stale@example.com", Name: "Stale", Source: domain.SourceWebinar})
	require.NoError(t, err)
	env.Clock.Advance(6 * 24 * time.Hour)
	_, err = e.CreateLead(env.Ctx, env.Owner, &domain.Lead{Email: "fresh@example.com", Name: "Fresh", Source: domain.SourceWebinar})
	require.NoError(t, err)
	env.Clock.Advance(2 * 24 * time.Hour)

	leads, err := e.LeadsNeedingFollowUp(env.Ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, stale.ID, leads[0].ID)
}

func TestUsersAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	admin, err := e.CreateUser(env.Ctx, auth.System, &domain.User{Email: "Admin@crm.test", Name: "Admin", Role: auth.RoleAdmin}, "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, admin.OwnerID)
	assert.NotEqual(t, "correct-horse", admin.PasswordHash)

	_, err = e.CreateUser(env.Ctx, env.Owner, &domain.User{Email: "x@crm.test", Name: "X", Role: auth.RoleUser}, "password1")
	assert.Equal(t, lifecycle.CodeForbidden, code(err))
	_, err = e.CreateUser(env.Ctx, env.Admin, &domain.User{Email: "x@crm.test", Name: "X", Role: "wizard"}, "password1")
	assert.Equal(t, lifecycle.CodeValidation, code(err))
	_, err = e.CreateUser(env.Ctx, env.Admin, &domain.User{Email: "admin@crm.test", Name: "Again", Role: auth.RoleUser}, "password1")
	assert.Equal(t, lifecycle.CodeValidation, code(err))

	_, err = e.Authenticate(env.Ctx, "admin@crm.test", "wrong-password")
	assert.ErrorIs(t, err, engine.ErrInvalidCredentials)
	actor, err := e.Authenticate(env.Ctx, "ADMIN@crm.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, actor.ID)
	assert.True(t, actor.IsAdmin())

	raw, key, err := e.CreateAPIKey(env.Ctx, actor, admin.ID, "ci")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	resolved, err := e.ResolveAPIKey(env.Ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, resolved.ID)

	keys, err := e.ListAPIKeys(env.Ctx, actor, "")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, e.RevokeAPIKey(env.Ctx, actor, key.ID))
	_, err = e.ResolveAPIKey(env.Ctx, raw)
	assert.ErrorIs(t, err, engine.ErrInvalidCredentials)

	_, err = e.TransitionUser(env.Ctx, actor, admin.ID, kinds.Deactivate)
	require.NoError(t, err)
	_, err = e.Authenticate(env.Ctx, "admin@crm.test", "correct-horse")
	assert.ErrorIs(t, err, engine.ErrInvalidCredentials)
}

func TestHistoryRecordsEveryMutation(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	tk, err := e.CreateTicket(env.Ctx, env.Owner, newTicket())
	require.NoError(t, err)
	_, err = e.TransitionTicket(env.Ctx, env.Owner, tk.ID, kinds.Start, "")
	require.NoError(t, err)
	_, err = e.TransitionTicket(env.Ctx, env.Owner, tk.ID, kinds.Close, "")
	require.Error(t, err)

	evts, err := e.History(env.Ctx, env.Owner, domain.KindTicket, tk.ID)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "ticket.start", evts[0].Type)
	assert.Equal(t, "ticket.create", evts[1].Type)
	assert.Equal(t, env.Owner.ID, evts[0].ActorID)
	assert.JSONEq(t, `{"from":"open","to":"in_progress"}`, evts[0].Payload)

	_, err = e.History(env.Ctx, auth.Actor{ID: "nobody", Role: "guest"}, domain.KindTicket, tk.ID)
	assert.Equal(t, lifecycle.CodeForbidden, code(err))
}
