package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"

	"crmline/internal/config"
	"crmline/internal/delivery"
	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/events"
	"crmline/internal/lifecycle"
	"crmline/internal/metrics"
	"crmline/internal/store"
)

type Engine struct {
	DB       *sql.DB
	Store    store.SQL
	Events   events.Writer
	Config   *config.Config
	Auth     auth.Service
	Delivery delivery.Sender
	Log      *logrus.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *logrus.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = config.DiscardLogger()
	}
	return Engine{
		DB:       db,
		Store:    store.New(db),
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Auth:     auth.Service{Roles: cfg.RolePermissions()},
		Delivery: delivery.New(cfg.Delivery, log),
		Log:      log,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// backend persists one kind through the document store. Every write runs
// in its own transaction together with its audit event.
type backend[T any, P domain.Entity[T]] struct {
	e    Engine
	kind string
}

func (b backend[T, P]) Get(ctx context.Context, id string) (P, error) {
	return store.NewCollection[T, P](b.e.Store, b.kind).Get(ctx, id)
}

func (b backend[T, P]) Put(ctx context.Context, rec P, c lifecycle.Change) error {
	return b.write(ctx, rec, c, func(coll store.Collection[T, P]) error {
		return coll.Save(ctx, rec)
	})
}

func (b backend[T, P]) Remove(ctx context.Context, rec P, c lifecycle.Change) error {
	return b.write(ctx, rec, c, func(coll store.Collection[T, P]) error {
		return coll.Delete(ctx, rec.Meta().ID)
	})
}

func (b backend[T, P]) write(ctx context.Context, rec P, c lifecycle.Change, op func(store.Collection[T, P]) error) error {
	tx, err := b.e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := op(store.NewCollection[T, P](b.e.Store.WithTx(tx), b.kind)); err != nil {
		return err
	}
	payload := events.EventPayload{"to": string(c.To)}
	if c.From != "" {
		payload["from"] = string(c.From)
	}
	evtType := b.kind + "." + string(c.Action)
	if err := b.e.Events.Append(ctx, tx, evtType, b.kind, rec.Meta().ID, c.ActorID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.e.Log.WithFields(logrus.Fields{
		"kind":   b.kind,
		"id":     rec.Meta().ID,
		"action": c.Action,
		"from":   c.From,
		"to":     c.To,
	}).Debug("transition")
	return nil
}

// Records is the generic operation surface of one kind: create, read,
// list, update, delete and named transitions.
type Records[T any, P domain.Entity[T]] struct {
	e    Engine
	kind lifecycle.Kind[T, P]
}

func records[T any, P domain.Entity[T]](e Engine, k lifecycle.Kind[T, P]) Records[T, P] {
	return Records[T, P]{e: e, kind: k}
}

func (r Records[T, P]) guard() lifecycle.Guard[T, P] {
	return lifecycle.Guard[T, P]{
		Kind:    r.kind,
		Backend: backend[T, P]{e: r.e, kind: r.kind.Kind},
		Now:     r.e.now,
	}
}

func (r Records[T, P]) coll() store.Collection[T, P] {
	return store.NewCollection[T, P](r.e.Store, r.kind.Kind)
}

// Table exposes the kind's wiring table.
func (r Records[T, P]) Table() lifecycle.Table { return r.kind.Table }

func (r Records[T, P]) Create(ctx context.Context, actor auth.Actor, rec P) (P, error) {
	out, err := r.guard().Create(ctx, actor, rec)
	metrics.Transition(r.kind.Kind, string(lifecycle.ActionCreate), lifecycle.Code(err))
	return out, err
}

func (r Records[T, P]) Get(ctx context.Context, id string) (P, error) {
	return r.coll().Get(ctx, id)
}

// List returns records matching q and match, newest first unless q says
// otherwise.
func (r Records[T, P]) List(ctx context.Context, q store.Query, match func(P) bool) ([]P, error) {
	return r.coll().Find(ctx, q, match, nil)
}

func (r Records[T, P]) Update(ctx context.Context, actor auth.Actor, id string, mutate func(P) error) (P, error) {
	out, err := r.guard().Update(ctx, actor, id, mutate)
	metrics.Transition(r.kind.Kind, string(lifecycle.ActionUpdate), lifecycle.Code(err))
	return out, err
}

func (r Records[T, P]) Do(ctx context.Context, actor auth.Actor, id string, req lifecycle.Request) (P, error) {
	out, err := r.guard().Do(ctx, actor, id, req)
	metrics.Transition(r.kind.Kind, string(req.Action), lifecycle.Code(err))
	return out, err
}

// Apply runs a transition on a record already loaded by the caller.
func (r Records[T, P]) Apply(ctx context.Context, actor auth.Actor, rec P, req lifecycle.Request) (P, error) {
	out, err := r.guard().Apply(ctx, actor, rec, req)
	metrics.Transition(r.kind.Kind, string(req.Action), lifecycle.Code(err))
	return out, err
}

func (r Records[T, P]) Delete(ctx context.Context, actor auth.Actor, id string, check func(P) error) (P, error) {
	out, err := r.guard().Delete(ctx, actor, id, check)
	metrics.Transition(r.kind.Kind, string(lifecycle.ActionDelete), lifecycle.Code(err))
	return out, err
}

// Recompute reruns the kind's derivations without persisting.
func (r Records[T, P]) Recompute(rec P, action lifecycle.Action) { r.guard().Recompute(rec, action) }

// nextNumber reads the newest record's number and increments it.
func nextNumber[T any, P domain.Entity[T]](ctx context.Context, r Records[T, P], prefix string, number func(P) string) (string, error) {
	last, err := r.coll().Latest(ctx)
	if err != nil {
		return "", err
	}
	prev := ""
	if last != nil {
		prev = number(last)
	}
	return derive.NextNumber(prefix, prev, r.e.Config.Numbering.Width)
}

// normalizePhone returns raw in E.164 form. Empty input stays empty.
func (e Engine) normalizePhone(kind, field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, e.Config.Phone.DefaultRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", lifecycle.Invalid(kind, field, "must be a valid phone number")
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func (e Engine) logFailure(funcName, context string, data any, err error) {
	config.LogError(e.Log, "engine", funcName, context, data, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}
