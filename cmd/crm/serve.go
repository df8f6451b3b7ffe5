package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crmline/internal/app"
	"crmline/internal/config"
	"crmline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serve the REST API. Clients log in with POST <base>/auth/login and send the
returned token as a bearer token, or send an API key in X-Api-Key.

CRMLINE_JWT_SECRET signs tokens and is required. When CRMLINE_ADMIN_EMAIL and
CRMLINE_ADMIN_PASSWORD are set, an admin user with that email is created on
first start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: legacyActor,
					Logger:                 a.Log,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("CRMLINE_JWT_SECRET is required for bearer auth")
				}
				if email := viper.GetString("admin-email"); email != "" {
					if _, created, err := a.EnsureAdmin(ctx, email, viper.GetString("admin-password")); err != nil {
						return fmt.Errorf("bootstrap admin: %w", err)
					} else if created {
						fmt.Printf("Created admin user %s\n", email)
					}
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Runner:   a.Runner,
					BasePath: basePath,
					Auth:     authCfg,
				})
				if err != nil {
					return err
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go a.Dispatcher.Run(ctx)
				if m := a.Config.Automation.IntervalMinutes; m > 0 {
					go a.Runner.Every(ctx, time.Duration(m)*time.Minute)
				}

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving crmline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyActor, "allow-actor-header", false, "trust X-Actor-Id without credentials (development only)")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens (env CRMLINE_JWT_SECRET)")
	cmd.Flags().String("admin-email", "", "bootstrap admin email (env CRMLINE_ADMIN_EMAIL)")
	cmd.Flags().String("admin-password", "", "bootstrap admin password (env CRMLINE_ADMIN_PASSWORD)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("admin-email", cmd.Flags().Lookup("admin-email"))
	_ = viper.BindPFlag("admin-password", cmd.Flags().Lookup("admin-password"))
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "Config covers currency, numbering prefixes, SLA hours, automation thresholds, roles, webhooks and logging. Missing files fall back to built-in defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default crmline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			var err error
			if path != "" {
				_, err = config.FromFile(path)
			} else {
				_, err = config.LoadOptional(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func envCmd() *cobra.Command {
	env := &cobra.Command{Use: "env", Short: "Manage <workspace>/.env"}
	env.AddCommand(&cobra.Command{
		Use:   "set <KEY> <VALUE>",
		Short: "Set a variable in the workspace .env file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := envPath()
			vars, err := godotenv.Read(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if vars == nil {
				vars = map[string]string{}
			}
			vars[args[0]] = args[1]
			if err := godotenv.Write(vars, path); err != nil {
				return err
			}
			fmt.Printf("Set %s in %s\n", args[0], path)
			return nil
		},
	})
	env.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List variables in the workspace .env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := godotenv.Read(envPath())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			keys := make(map[string]string, len(vars))
			for k := range vars {
				// values may hold secrets
				keys[k] = "***"
			}
			return printJSONOrTable(keys)
		},
	})
	return env
}

func envPath() string {
	return filepath.Join(viper.GetString("workspace"), ".env")
}
