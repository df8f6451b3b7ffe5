package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crmline/internal/app"
	"crmline/internal/automation"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/events"
	"crmline/internal/report"
)

// The CLI works on the local workspace and acts as the system actor, the
// same trust level as file access to the database.

func automationCmd() *cobra.Command {
	auto := &cobra.Command{
		Use:   "automation",
		Short: "Run periodic jobs",
		Long:  "Jobs sweep SLA breaches, auto-close resolved tickets, flag overdue invoices, generate recurring expenses, refresh budget actuals, publish scheduled posts and report stale leads and campaigns.",
	}
	auto.AddCommand(&cobra.Command{
		Use:   "jobs",
		Short: "List job names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Runner.Jobs())
			})
		},
	})
	auto.AddCommand(&cobra.Command{
		Use:   "run <job|all>",
		Short: "Run one job, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reports, err := a.Runner.Run(ctx, auth.System, args[0])
				if len(reports) == 0 {
					return err
				}
				if viper.GetBool("json") {
					if perr := printJSON(reports); perr != nil {
						return perr
					}
					return err
				}
				tw := newTable(table.Row{"Job", "Success", "Skipped", "Failed", "Error"})
				for _, r := range reports {
					tw.AppendRow(table.Row{r.Job, r.Count(automation.ResultSuccess), r.Count(automation.ResultSkipped), r.Count(automation.ResultFailed), r.Error})
				}
				tw.Render()
				return err
			})
		},
	})
	return auto
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Financial reports"}
	rep.AddCommand(reportExportCmd())
	return rep
}

func reportExportCmd() *cobra.Command {
	var month, xlsxPath string
	cmd := &cobra.Command{
		Use:     "export",
		Aliases: []string{"financial"},
		Short:   "Monthly revenue, expenses and account balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			if month != "" {
				parsed, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("--month must be YYYY-MM: %w", err)
				}
				at = parsed
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fin, err := report.BuildFinancial(ctx, a.Engine, auth.System, at)
				if err != nil {
					return err
				}
				if xlsxPath != "" {
					if err := report.SaveXLSX(xlsxPath, fin); err != nil {
						return err
					}
					fmt.Printf("Wrote %s\n", xlsxPath)
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(fin)
				}
				tw := newTable(table.Row{"Period", "Revenue", "Expenses", "Profit / loss", "Total balance"})
				tw.AppendRow(table.Row{
					fin.PeriodStart.Format("2006-01"),
					fin.Revenue.StringFixed(2),
					fin.TotalExpenses.StringFixed(2),
					fin.ProfitLoss.StringFixed(2),
					fin.TotalBalance.StringFixed(2),
				})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to report, YYYY-MM (default current)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write a spreadsheet to this path instead of printing")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage operators"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var u domain.User
	var password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.Engine.CreateUser(ctx, auth.System, &u, password)
				if err != nil {
					return err
				}
				created.PasswordHash = ""
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&u.Email, "email", "", "email (login)")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.Role, "role", auth.RoleUser, "role (admin, manager, user)")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx, auth.System)
				if err != nil {
					return err
				}
				for _, u := range users {
					u.PasswordHash = ""
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"ID", "Email", "Name", "Role", "Disabled"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Name, u.Role, u.Disabled})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var email, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for a user",
		Long:  "The raw key is printed once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.UserByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("user %s: %w", email, err)
				}
				raw, key, err := a.Engine.CreateAPIKey(ctx, auth.System, u.ID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "user_id": u.ID, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "owner email")
	create.Flags().StringVar(&name, "name", "", "label")
	_ = create.MarkFlagRequired("email")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RevokeAPIKey(ctx, auth.System, args[0])
			})
		},
	})
	return keys
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
		Long:  "Every create, update, transition and delete appends an event with the acting user and the change.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f events.Filter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListEvents(ctx, auth.System, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Kind", "Entity", "Actor"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind, ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
