// Package app wires config, logging, storage and the engine for the CLI and
// the API server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"crmline/internal/automation"
	"crmline/internal/config"
	"crmline/internal/db"
	"crmline/internal/delivery"
	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
	"crmline/internal/migrate"
	"crmline/internal/store"
)

type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/crmline.yml.
	ConfigPath string
	// DBPath overrides the workspace database file.
	DBPath string
	LogOut io.Writer
}

// App holds the process-wide dependencies.
type App struct {
	Config     *config.Config
	Log        *logrus.Logger
	DB         *sql.DB
	Engine     engine.Engine
	Runner     *automation.Runner
	Dispatcher *delivery.Dispatcher
}

// Open loads config (falling back to defaults), opens and migrates the
// database and builds the engine.
func Open(opts Options) (*App, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := config.NewLogger(cfg.Logging, opts.LogOut)

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg, log)
	return &App{
		Config:     cfg,
		Log:        log,
		DB:         conn,
		Engine:     eng,
		Runner:     automation.New(eng),
		Dispatcher: delivery.NewDispatcher(eng.Events, cfg.Webhooks, log),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// EnsureAdmin creates an admin user when the workspace has none, so a fresh
// install can log in. It returns the existing user when email is already
// registered.
func (a *App) EnsureAdmin(ctx context.Context, email, password string) (*domain.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, false, errors.New("admin email and password required")
	}
	if u, err := a.Engine.UserByEmail(ctx, email); err == nil {
		return u, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	u, err := a.Engine.CreateUser(ctx, auth.System, &domain.User{
		Email: email,
		Name:  "Administrator",
		Role:  auth.RoleAdmin,
	}, password)
	if err != nil {
		return nil, false, err
	}
	a.Log.WithField("email", email).Info("created admin user")
	return u, true, nil
}
