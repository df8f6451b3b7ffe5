package lifecycle

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
)

// Input is what side effects and preconditions see about the request.
type Input struct {
	Action Action
	Target domain.Status
	Data   any
	Actor  auth.Actor
	Now    time.Time
}

// Derivation recomputes derived fields. It runs after the listed actions,
// or after every mutation when After is empty.
type Derivation[P any] struct {
	Name  string
	After []Action
	Apply func(rec P, now time.Time)
}

func (d Derivation[P]) runsAfter(a Action) bool {
	return len(d.After) == 0 || slices.Contains(d.After, a)
}

// Kind binds a Table to a concrete record type.
type Kind[T any, P domain.Entity[T]] struct {
	Table
	// Validate adds checks beyond struct tags on create and update.
	Validate func(rec P) error
	// Require holds per-action preconditions. They run before any mutation.
	Require map[Action]func(rec P, in Input) error
	// Effects holds per-action side effects. They run after the status
	// change and may override it.
	Effects map[Action]func(rec P, in Input) error
	Derive  []Derivation[P]
	// OnStatusChange appends history when a transition changes status.
	OnStatusChange func(rec P, from, to domain.Status, in Input)
}

// Change describes a persisted mutation for the backend's audit log.
type Change struct {
	Kind    string
	Action  Action
	From    domain.Status
	To      domain.Status
	ActorID string
}

// Backend loads and persists records of one kind. Put must be a single
// read-modify-write of one record.
type Backend[T any, P domain.Entity[T]] interface {
	Get(ctx context.Context, id string) (P, error)
	Put(ctx context.Context, rec P, c Change) error
	Remove(ctx context.Context, rec P, c Change) error
}

// Request is one transition invocation.
type Request struct {
	Action Action
	Target domain.Status
	Data   any
	// Check runs with the kind's preconditions, for checks that need the
	// store.
	Check func(ctx context.Context) error
}

// Guard applies the kind's table to records held by a backend.
type Guard[T any, P domain.Entity[T]] struct {
	Kind    Kind[T, P]
	Backend Backend[T, P]
	Now     func() time.Time
}

func (g Guard[T, P]) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

// Create assigns identity, ownership and the initial status, validates,
// derives and persists rec.
func (g Guard[T, P]) Create(ctx context.Context, actor auth.Actor, rec P) (P, error) {
	if actor.ID == "" {
		return nil, auth.ForbiddenError{Reason: "authentication required"}
	}
	now := g.now()
	meta := rec.Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.OwnerID == "" {
		meta.OwnerID = actor.ID
	}
	meta.CreatedAt = now
	meta.UpdatedAt = now
	rec.SetStatus(g.Kind.Initial)
	if err := g.validate(rec); err != nil {
		return nil, err
	}
	g.derive(rec, ActionCreate, now)
	if err := g.Backend.Put(ctx, rec, Change{Kind: g.Kind.Kind, Action: ActionCreate, To: rec.CurrentStatus(), ActorID: actor.ID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies a field-level mutation. The status cannot change through
// an update.
func (g Guard[T, P]) Update(ctx context.Context, actor auth.Actor, id string, mutate func(rec P) error) (P, error) {
	rec, err := g.Backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.Check(g.Kind.Edit, rec.Meta().OwnerID); err != nil {
		return nil, err
	}
	status := rec.CurrentStatus()
	if slices.Contains(g.Kind.EditBlocked, status) {
		return nil, Blocked(g.Kind.Kind, ActionUpdate, "cannot update a "+string(status)+" "+g.Kind.Kind)
	}
	meta := *rec.Meta()
	if err := mutate(rec); err != nil {
		return nil, precondition(g.Kind.Kind, ActionUpdate, err)
	}
	*rec.Meta() = meta
	rec.SetStatus(status)
	if err := g.validate(rec); err != nil {
		return nil, err
	}
	now := g.now()
	g.derive(rec, ActionUpdate, now)
	rec.Meta().UpdatedAt = now
	if err := g.Backend.Put(ctx, rec, Change{Kind: g.Kind.Kind, Action: ActionUpdate, From: status, To: status, ActorID: actor.ID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Do runs one transition: legality, preconditions, status change and side
// effects, recomputation, history, persistence. Nothing is written when an
// earlier step fails.
func (g Guard[T, P]) Do(ctx context.Context, actor auth.Actor, id string, req Request) (P, error) {
	rec, err := g.Backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.apply(ctx, actor, rec, req)
}

// Apply runs a transition on a record the caller already loaded.
func (g Guard[T, P]) Apply(ctx context.Context, actor auth.Actor, rec P, req Request) (P, error) {
	return g.apply(ctx, actor, rec, req)
}

func (g Guard[T, P]) apply(ctx context.Context, actor auth.Actor, rec P, req Request) (P, error) {
	if err := actor.Check(g.Kind.AuthFor(req.Action), rec.Meta().OwnerID); err != nil {
		return nil, err
	}
	from := rec.CurrentStatus()
	next, err := g.Kind.Next(from, req.Action, req.Target)
	if err != nil {
		return nil, err
	}
	in := Input{Action: req.Action, Target: req.Target, Data: req.Data, Actor: actor, Now: g.now()}
	if check, ok := g.Kind.Require[req.Action]; ok {
		if err := precondition(g.Kind.Kind, req.Action, check(rec, in)); err != nil {
			return nil, err
		}
	}
	if req.Check != nil {
		if err := precondition(g.Kind.Kind, req.Action, req.Check(ctx)); err != nil {
			return nil, err
		}
	}

	rec.SetStatus(next)
	if effect, ok := g.Kind.Effects[req.Action]; ok {
		if err := effect(rec, in); err != nil {
			return nil, err
		}
	}
	g.derive(rec, req.Action, in.Now)
	to := rec.CurrentStatus()
	if to != from && g.Kind.OnStatusChange != nil {
		g.Kind.OnStatusChange(rec, from, to, in)
	}
	rec.Meta().UpdatedAt = in.Now
	if err := g.Backend.Put(ctx, rec, Change{Kind: g.Kind.Kind, Action: req.Action, From: from, To: to, ActorID: actor.ID}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record, or moves it to the soft-delete status. check
// may add store-backed preconditions.
func (g Guard[T, P]) Delete(ctx context.Context, actor auth.Actor, id string, check func(rec P) error) (P, error) {
	rec, err := g.Backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.Check(g.Kind.Delete, rec.Meta().OwnerID); err != nil {
		return nil, err
	}
	status := rec.CurrentStatus()
	if slices.Contains(g.Kind.DeleteBlocked, status) {
		return nil, Blocked(g.Kind.Kind, ActionDelete, "cannot delete a "+string(status)+" "+g.Kind.Kind)
	}
	if check != nil {
		if err := precondition(g.Kind.Kind, ActionDelete, check(rec)); err != nil {
			return nil, err
		}
	}
	c := Change{Kind: g.Kind.Kind, Action: ActionDelete, From: status, ActorID: actor.ID}
	if g.Kind.SoftDelete != "" {
		rec.SetStatus(g.Kind.SoftDelete)
		rec.Meta().UpdatedAt = g.now()
		c.To = g.Kind.SoftDelete
		if err := g.Backend.Put(ctx, rec, c); err != nil {
			return nil, err
		}
		return rec, nil
	}
	if err := g.Backend.Remove(ctx, rec, c); err != nil {
		return nil, err
	}
	return rec, nil
}

// Recompute reruns every derivation registered for action without
// persisting.
func (g Guard[T, P]) Recompute(rec P, action Action) {
	g.derive(rec, action, g.now())
}

func (g Guard[T, P]) derive(rec P, action Action, now time.Time) {
	for _, d := range g.Kind.Derive {
		if d.runsAfter(action) {
			d.Apply(rec, now)
		}
	}
}

func (g Guard[T, P]) validate(rec P) error {
	if err := Validate(g.Kind.Kind, rec); err != nil {
		return err
	}
	if g.Kind.Validate != nil {
		return g.Kind.Validate(rec)
	}
	return nil
}
