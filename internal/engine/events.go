package engine

import (
	"context"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/events"
)

// PermEventRead gates the audit log.
const PermEventRead = "event.read"

// ListEvents reads the audit log newest first.
func (e Engine) ListEvents(ctx context.Context, actor auth.Actor, f events.Filter) ([]domain.Event, error) {
	if err := auth.Require(actor, PermEventRead); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return e.Events.List(ctx, f)
}

// History is the audit trail of one record.
func (e Engine) History(ctx context.Context, actor auth.Actor, kind, id string) ([]domain.Event, error) {
	return e.ListEvents(ctx, actor, events.Filter{EntityKind: kind, EntityID: id})
}

// EventsAfter pages the log forward from cursor.
func (e Engine) EventsAfter(ctx context.Context, actor auth.Actor, cursor int64, limit int) ([]domain.Event, error) {
	if err := auth.Require(actor, PermEventRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.Events.After(ctx, cursor, limit)
}
