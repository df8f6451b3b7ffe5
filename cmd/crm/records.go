package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crmline/internal/app"
	"crmline/internal/domain"
	"crmline/internal/engine"
)

func parseStatuses(raw string) []domain.Status {
	var out []domain.Status
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, domain.Status(s))
		}
	}
	return out
}

func ticketCmd() *cobra.Command {
	ticket := &cobra.Command{
		Use:   "ticket",
		Short: "Inspect support tickets",
		Long:  "Tickets move open -> in_progress -> resolved -> closed (on_hold pauses work). Each carries SLA deadlines derived from its priority.",
	}
	ticket.AddCommand(ticketListCmd())
	return ticket
}

func ticketListCmd() *cobra.Command {
	var f engine.TicketFilter
	var status, priority, category string
	var breached bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = parseStatuses(status)
			f.Priority = domain.TicketPriority(priority)
			f.Category = domain.TicketCategory(category)
			if cmd.Flags().Changed("breached") {
				f.Breached = &breached
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tickets, err := a.Engine.ListTickets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tickets)
				}
				tw := newTable(table.Row{"Number", "Title", "Status", "Priority", "Assignee", "Breached"})
				for _, t := range tickets {
					tw.AppendRow(table.Row{t.TicketNumber, t.Title, t.Status, t.Priority, t.AssignedTo, t.SLA.IsBreached})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (comma separated)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().BoolVar(&breached, "breached", false, "only tickets whose SLA is (or is not) breached")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{
		Use:   "invoice",
		Short: "Inspect invoices",
		Long:  "Invoices move draft -> sent -> paid; sent invoices past their due date become overdue, and unpaid ones can be cancelled.",
	}
	inv.AddCommand(invoiceListCmd())
	return inv
}

func invoiceListCmd() *cobra.Command {
	var f engine.InvoiceFilter
	var status string
	var overdue bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = parseStatuses(status)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					invoices []*domain.Invoice
					err      error
				)
				if overdue {
					invoices, err = a.Engine.OverdueInvoices(ctx)
				} else {
					invoices, err = a.Engine.ListInvoices(ctx, f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(invoices)
				}
				tw := newTable(table.Row{"Number", "Client", "Status", "Due", "Total"})
				for _, inv := range invoices {
					tw.AppendRow(table.Row{inv.InvoiceNumber, inv.Client.Name, inv.Status, inv.DueDate.Format("2006-01-02"), inv.Total.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (comma separated)")
	cmd.Flags().StringVar(&f.ClientName, "client", "", "client name contains")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only unpaid invoices past due")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func leadCmd() *cobra.Command {
	lead := &cobra.Command{
		Use:   "lead",
		Short: "Inspect sales leads",
		Long:  "Leads move new -> contacted -> qualified -> proposal -> negotiation and end won or lost. Scores are recalculated from activities.",
	}
	lead.AddCommand(leadListCmd())
	return lead
}

func leadListCmd() *cobra.Command {
	var f engine.LeadFilter
	var status, source string
	var followUp bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = parseStatuses(status)
			f.Source = domain.LeadSource(source)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					leads []*domain.Lead
					err   error
				)
				if followUp {
					leads, err = a.Engine.LeadsNeedingFollowUp(ctx)
				} else {
					leads, err = a.Engine.ListLeads(ctx, f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(leads)
				}
				tw := newTable(table.Row{"ID", "Name", "Company", "Status", "Score", "Last activity"})
				for _, l := range leads {
					tw.AppendRow(table.Row{l.ID, l.Name, l.Company, l.Status, l.Score, l.LastActivity.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (comma separated)")
	cmd.Flags().StringVar(&source, "source", "", "source filter")
	cmd.Flags().StringVar(&f.StageID, "stage", "", "pipeline stage id")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "name, email or company contains")
	cmd.Flags().IntVar(&f.MinScore, "min-score", 0, "minimum score")
	cmd.Flags().BoolVar(&followUp, "needs-follow-up", false, "only open leads without recent activity")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}
