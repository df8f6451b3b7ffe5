package automation_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmline/internal/automation"
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

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingSender struct{ n int }

func (s *countingSender) Send(context.Context, delivery.Notification) delivery.Result {
	s.n++
	return delivery.Result{OK: true, ExternalID: "ext"}
}

type fixture struct {
	ctx    context.Context
	eng    engine.Engine
	runner *automation.Runner
	clock  *clock
	sender *countingSender
	owner  auth.Actor
	mgr    auth.Actor
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, config.Default(), nil)
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng.Now = clk.Now
	sender := &countingSender{}
	eng.Delivery = sender
	return fixture{
		ctx:    context.Background(),
		eng:    eng,
		runner: automation.New(eng),
		clock:  clk,
		sender: sender,
		owner:  eng.Auth.ActorFor("owner-1", auth.RoleUser),
		mgr:    eng.Auth.ActorFor("manager-1", auth.RoleManager),
	}
}

func (f fixture) ticket(t *testing.T) *domain.Ticket {
	t.Helper()
	tk, err := f.eng.CreateTicket(f.ctx, f.owner, &domain.Ticket{
		Title:       "VPN down",
		Description: "Cannot connect",
		Category:    domain.TicketNetwork,
		Requester:   domain.Requester{Name: "Sam", Email: "sam@example.com"},
	})
	require.NoError(t, err)
	return tk
}

func one(t *testing.T, reports []automation.Report) automation.Report {
	t.Helper()
	require.Len(t, reports, 1)
	return reports[0]
}

func TestRunRequiresPermission(t *testing.T) {
	f := setup(t)
	_, err := f.runner.Run(f.ctx, f.owner, automation.JobSLASweep)
	assert.Equal(t, lifecycle.CodeForbidden, lifecycle.Code(err))

	_, err = f.runner.Run(f.ctx, f.mgr, "defrag")
	assert.Error(t, err)
}

func TestRunAllProducesOneReportPerJob(t *testing.T) {
	f := setup(t)
	reports, err := f.runner.Run(f.ctx, f.mgr, automation.JobAll)
	require.NoError(t, err)
	assert.Len(t, reports, len(f.runner.Jobs()))
	for _, r := range reports {
		assert.Equal(t, f.mgr.ID, r.TriggeredBy)
		assert.Empty(t, r.Outcomes, r.Job)
	}
}

func TestRunAllContinuesPastFailingJobs(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	reports, err := f.runner.Run(ctx, f.mgr, automation.JobAll)
	require.Error(t, err)
	require.Len(t, reports, len(f.runner.Jobs()))
	for _, r := range reports {
		assert.NotEmpty(t, r.Error, r.Job)
		assert.Contains(t, err.Error(), r.Job)
	}
}

func TestSLASweepFlagsBreachOnce(t *testing.T) {
	f := setup(t)
	tk := f.ticket(t)

	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobSLASweep)))
	assert.Equal(t, 1, rep.Count(automation.ResultSkipped))

	f.clock.Advance(25 * time.Hour)
	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobSLASweep)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, automation.ResultSuccess, rep.Outcomes[0].Result)
	assert.Equal(t, tk.ID, rep.Outcomes[0].ID)

	got, err := f.eng.Tickets().Get(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, got.SLA.IsBreached)
	assert.Equal(t, "SLA breach detected", got.Comments[0].Text)

	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobSLASweep)))
	assert.Equal(t, "already breached", rep.Outcomes[0].Detail)
}

func TestTicketAutoClose(t *testing.T) {
	f := setup(t)
	tk := f.ticket(t)
	_, err := f.eng.TransitionTicket(f.ctx, f.owner, tk.ID, kinds.Resolve, "")
	require.NoError(t, err)

	f.clock.Advance(2 * 24 * time.Hour)
	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobTicketAutoClose)))
	assert.Empty(t, rep.Outcomes)

	f.clock.Advance(2 * 24 * time.Hour)
	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobTicketAutoClose)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, automation.ResultSuccess, rep.Outcomes[0].Result)

	got, err := f.eng.Tickets().Get(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketClosed, got.Status)
	assert.True(t, slices.ContainsFunc(got.Comments, func(c domain.Comment) bool {
		return c.Text == "Ticket automatically closed after 3 days in resolved status"
	}))
}

func TestInvoiceOverdueSendsReminder(t *testing.T) {
	f := setup(t)
	inv, err := f.eng.CreateInvoice(f.ctx, f.owner, &domain.Invoice{
		Client:  domain.InvoiceClient{Name: "Acme", Email: "ap@acme.example"},
		DueDate: f.clock.Now().AddDate(0, 0, 14),
		Items:   []domain.LineItem{{Description: "Support", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	draft, err := f.eng.CreateInvoice(f.ctx, f.owner, &domain.Invoice{
		Client:  domain.InvoiceClient{Name: "Beta", Email: "ap@beta.example"},
		DueDate: f.clock.Now().AddDate(0, 0, 14),
		Items:   []domain.LineItem{{Description: "Setup", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	_, err = f.eng.SendInvoice(f.ctx, f.owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.n)

	f.clock.Advance(15 * 24 * time.Hour)
	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobInvoiceOverdue)))
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, 2, rep.Count(automation.ResultSuccess))
	// only the sent invoice is reminded
	assert.Equal(t, 2, f.sender.n)

	got, err := f.eng.Invoices().Get(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, got.Status)
	got, err = f.eng.Invoices().Get(f.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, got.Status)

	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobInvoiceOverdue)))
	assert.Equal(t, 2, rep.Count(automation.ResultSkipped))
	assert.Equal(t, 2, f.sender.n)
}

func TestRecurringExpensesJob(t *testing.T) {
	f := setup(t)
	_, err := f.eng.CreateExpense(f.ctx, f.owner, &domain.Expense{
		Description:      "Hosting",
		Amount:           decimal.NewFromInt(40),
		Date:             f.clock.Now().AddDate(0, 0, -7),
		Category:         domain.CategorySoftware,
		PaymentMethod:    domain.ExpenseCreditCard,
		IsRecurring:      true,
		RecurringDetails: &domain.RecurringDetails{Frequency: domain.FrequencyWeekly},
	})
	require.NoError(t, err)

	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobRecurringExpenses)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, automation.ResultSuccess, rep.Outcomes[0].Result)

	pending, err := f.eng.ListExpenses(f.ctx, engine.ExpenseFilter{Status: []domain.Status{domain.ExpensePending}})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobRecurringExpenses)))
	assert.Empty(t, rep.Outcomes)
}

func TestScheduledPostWithDisconnectedAccount(t *testing.T) {
	f := setup(t)
	acct, err := f.eng.CreateSocialAccount(f.ctx, f.owner, &domain.SocialAccount{
		Platform: domain.PlatformFacebook, AccountName: "crmline", ConnectionStatus: domain.ConnectionDisconnected,
	})
	require.NoError(t, err)
	post, err := f.eng.CreatePost(f.ctx, f.owner, &domain.SocialPost{AccountID: acct.ID, Content: domain.PostContent{Text: "launch day"}})
	require.NoError(t, err)
	_, err = f.eng.SchedulePost(f.ctx, f.owner, post.ID, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobScheduledPosts)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, automation.ResultFailed, rep.Outcomes[0].Result)
	assert.Contains(t, rep.Outcomes[0].Detail, "ACCOUNT_ERROR")
	assert.Zero(t, f.sender.n)
}

func TestReportOnlyJobsDoNotMutate(t *testing.T) {
	f := setup(t)
	lead, err := f.eng.CreateLead(f.ctx, f.owner, &domain.Lead{Email: "quiet@example.com", Name: "Quiet", Source: domain.SourceReferral})
	require.NoError(t, err)
	c, err := f.eng.CreateCampaign(f.ctx, f.owner, &domain.Campaign{Name: "Spring", Type: domain.CampaignSocial})
	require.NoError(t, err)
	_, err = f.eng.TransitionCampaign(f.ctx, f.owner, c.ID, kinds.Start)
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	rep := one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobLeadFollowUp)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, lead.ID, rep.Outcomes[0].ID)
	assert.Equal(t, automation.ResultSkipped, rep.Outcomes[0].Result)

	rep = one(t, must(f.runner.Run(f.ctx, f.mgr, automation.JobCampaignAttention)))
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, c.ID, rep.Outcomes[0].ID)

	got, err := f.eng.Leads().Get(f.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.UpdatedAt, got.UpdatedAt)
}

func must(reports []automation.Report, err error) []automation.Report {
	if err != nil {
		panic(err)
	}
	return reports
}
