// Package automation runs the periodic sweeps over lifecycle records: SLA
// checks, ticket auto-close, overdue invoices, recurring expenses, budget
// actuals, scheduled posts and the follow-up reports.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"crmline/internal/config"
	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/metrics"
)

// PermRun gates running jobs.
const PermRun = "automation.run"

// JobAll runs every job in order.
const JobAll = "all"

const (
	JobSLASweep          = "sla_sweep"
	JobTicketAutoClose   = "ticket_autoclose"
	JobInvoiceOverdue    = "invoice_overdue"
	JobRecurringExpenses = "recurring_expenses"
	JobBudgetActuals     = "budget_actuals"
	JobScheduledPosts    = "scheduled_posts"
	JobLeadFollowUp      = "lead_followup"
	JobCampaignAttention = "campaign_attention"
)

// Outcome results.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Outcome is what a job did to one record.
type Outcome struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// Report collects the outcomes of one job run. Failures of individual
// records are reported here rather than aborting the job.
type Report struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	TriggeredBy string    `json:"triggered_by"`
	Outcomes    []Outcome `json:"outcomes"`
	Error       string    `json:"error,omitempty"`
}

// Count returns how many outcomes have result.
func (r Report) Count(result string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == result {
			n++
		}
	}
	return n
}

type job func(ctx context.Context, rep *Report) error

// Runner executes jobs against an engine. Mutations run as the system
// actor so ownership rules do not filter the sweep.
type Runner struct {
	Engine engine.Engine
	Log    *logrus.Logger
	jobs   map[string]job
	order  []string
}

func New(e engine.Engine) *Runner {
	r := &Runner{Engine: e, Log: e.Log}
	r.jobs = map[string]job{
		JobSLASweep:          r.slaSweep,
		JobTicketAutoClose:   r.ticketAutoClose,
		JobInvoiceOverdue:    r.invoiceOverdue,
		JobRecurringExpenses: r.recurringExpenses,
		JobBudgetActuals:     r.budgetActuals,
		JobScheduledPosts:    r.scheduledPosts,
		JobLeadFollowUp:      r.leadFollowUp,
		JobCampaignAttention: r.campaignAttention,
	}
	r.order = []string{
		JobSLASweep, JobTicketAutoClose, JobInvoiceOverdue, JobRecurringExpenses,
		JobBudgetActuals, JobScheduledPosts, JobLeadFollowUp, JobCampaignAttention,
	}
	return r
}

// Jobs lists the runnable job names, sorted.
func (r *Runner) Jobs() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Run executes name, or every job for "all". A job that cannot list its
// candidates gets its Error set and the remaining jobs still run; those
// failures come back joined alongside the reports.
func (r *Runner) Run(ctx context.Context, actor auth.Actor, name string) ([]Report, error) {
	if err := auth.Require(actor, PermRun); err != nil {
		return nil, err
	}
	names := []string{name}
	if name == JobAll {
		names = r.order
	} else if _, ok := r.jobs[name]; !ok {
		return nil, fmt.Errorf("unknown automation job %q", name)
	}
	reports := make([]Report, 0, len(names))
	var errs []error
	for _, n := range names {
		rep := Report{Job: n, StartedAt: r.now(), TriggeredBy: actor.ID, Outcomes: []Outcome{}}
		if err := r.jobs[n](ctx, &rep); err != nil {
			config.LogError(r.Log, "automation", n, "list candidates", nil, err)
			rep.Error = err.Error()
			reports = append(reports, rep)
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
			continue
		}
		r.Log.WithFields(logrus.Fields{
			"job":     n,
			"success": rep.Count(ResultSuccess),
			"skipped": rep.Count(ResultSkipped),
			"failed":  rep.Count(ResultFailed),
		}).Info("automation job finished")
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

// Every runs all jobs on interval until ctx is done.
func (r *Runner) Every(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, auth.System, JobAll); err != nil {
				r.Log.WithError(err).Warn("scheduled automation run failed")
			}
		}
	}
}

func (r *Runner) now() time.Time {
	if r.Engine.Now != nil {
		return r.Engine.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) record(rep *Report, o Outcome, err error) {
	if err != nil {
		o.Result = ResultFailed
		o.Detail = err.Error()
		config.LogError(r.Log, "automation", rep.Job, "process record", map[string]string{"kind": o.Kind, "id": o.ID}, err)
	}
	metrics.Automation(rep.Job, o.Result)
	rep.Outcomes = append(rep.Outcomes, o)
}

func (r *Runner) slaSweep(ctx context.Context, rep *Report) error {
	tickets, err := r.Engine.ListTickets(ctx, engine.TicketFilter{Status: []domain.Status{domain.TicketOpen, domain.TicketInProgress}})
	if err != nil {
		return err
	}
	now := r.now()
	for _, t := range tickets {
		o := Outcome{Kind: domain.KindTicket, ID: t.ID, Result: ResultSkipped, Detail: "within SLA"}
		if t.SLA.IsBreached {
			o.Detail = "already breached"
			r.record(rep, o, nil)
			continue
		}
		if !derive.SLABreached(t.SLA, t.FirstResponseTime, t.ResolutionTime, now) {
			r.record(rep, o, nil)
			continue
		}
		_, err := r.Engine.CheckTicketSLA(ctx, auth.System, t.ID)
		o.Result, o.Detail = ResultSuccess, "SLA breach detected"
		r.record(rep, o, err)
	}
	return nil
}

func (r *Runner) ticketAutoClose(ctx context.Context, rep *Report) error {
	days := r.Engine.Config.Automation.AutoCloseResolvedDays
	cutoff := r.now().AddDate(0, 0, -days)
	tickets, err := r.Engine.ListTickets(ctx, engine.TicketFilter{Status: []domain.Status{domain.TicketResolved}})
	if err != nil {
		return err
	}
	note := fmt.Sprintf("Ticket automatically closed after %d days in resolved status", days)
	for _, t := range tickets {
		if !t.UpdatedAt.Before(cutoff) {
			continue
		}
		_, err := r.Engine.CloseTicket(ctx, auth.System, t.ID, note)
		r.record(rep, Outcome{Kind: domain.KindTicket, ID: t.ID, Result: ResultSuccess, Detail: "closed"}, err)
	}
	return nil
}

func (r *Runner) invoiceOverdue(ctx context.Context, rep *Report) error {
	invoices, err := r.Engine.OverdueInvoices(ctx)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		o := Outcome{Kind: domain.KindInvoice, ID: inv.ID}
		if inv.Status == domain.InvoiceOverdue {
			o.Result, o.Detail = ResultSkipped, "already overdue"
			r.record(rep, o, nil)
			continue
		}
		wasSent := inv.Status == domain.InvoiceSent
		updated, err := r.Engine.TransitionInvoice(ctx, auth.System, inv.ID, kinds.MarkOverdue)
		if err != nil {
			r.record(rep, o, err)
			continue
		}
		o.Result, o.Detail = ResultSuccess, "marked overdue"
		// Drafts never reached the client, so there is nothing to remind about.
		if wasSent {
			if res := r.Engine.RemindInvoice(ctx, updated); !res.OK {
				o.Detail = "marked overdue; reminder failed: " + res.Message
			}
		}
		r.record(rep, o, nil)
	}
	return nil
}

func (r *Runner) recurringExpenses(ctx context.Context, rep *Report) error {
	due, err := r.Engine.DueRecurringExpenses(ctx)
	if err != nil {
		return err
	}
	for _, x := range due {
		o := Outcome{Kind: domain.KindExpense, ID: x.ID, Result: ResultSuccess}
		generated, err := r.Engine.GenerateRecurringExpense(ctx, auth.System, x)
		if generated != nil {
			o.Detail = "generated " + generated.ID
		}
		r.record(rep, o, err)
	}
	return nil
}

func (r *Runner) budgetActuals(ctx context.Context, rep *Report) error {
	budgets, err := r.Engine.ActiveBudgets(ctx)
	if err != nil {
		return err
	}
	for _, b := range budgets {
		updated, err := r.Engine.RefreshBudgetActuals(ctx, auth.System, b.ID)
		o := Outcome{Kind: domain.KindBudget, ID: b.ID, Result: ResultSuccess}
		if err == nil {
			o.Detail = "total actual " + updated.TotalActual.StringFixed(2)
		}
		r.record(rep, o, err)
	}
	return nil
}

func (r *Runner) scheduledPosts(ctx context.Context, rep *Report) error {
	posts, err := r.Engine.DuePosts(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		o := Outcome{Kind: domain.KindSocialPost, ID: p.ID}
		updated, err := r.Engine.PublishPost(ctx, auth.System, p.ID)
		switch {
		case err != nil:
		case updated.Status == domain.PostFailed && updated.ErrorDetails != nil:
			o.Result, o.Detail = ResultFailed, updated.ErrorDetails.Code+": "+updated.ErrorDetails.Message
		default:
			o.Result, o.Detail = ResultSuccess, "published"
		}
		r.record(rep, o, err)
	}
	return nil
}

func (r *Runner) leadFollowUp(ctx context.Context, rep *Report) error {
	leads, err := r.Engine.LeadsNeedingFollowUp(ctx)
	if err != nil {
		return err
	}
	for _, l := range leads {
		r.record(rep, Outcome{
			Kind:   domain.KindLead,
			ID:     l.ID,
			Result: ResultSkipped,
			Detail: "no activity since " + l.LastActivity.Format("2006-01-02"),
		}, nil)
	}
	return nil
}

func (r *Runner) campaignAttention(ctx context.Context, rep *Report) error {
	campaigns, err := r.Engine.CampaignsNeedingAttention(ctx)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		r.record(rep, Outcome{
			Kind:   domain.KindCampaign,
			ID:     c.ID,
			Result: ResultSkipped,
			Detail: fmt.Sprintf("leads %d, conversions %d", c.PerformanceMetrics.Leads, c.PerformanceMetrics.Conversions),
		}, nil)
	}
	return nil
}
