package engine

import (
	"context"
	"strings"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Tickets() Records[domain.Ticket, *domain.Ticket] { return records(e, kinds.Ticket) }

// CreateTicket numbers the ticket, fills SLA hours from config when unset
// and normalises the requester phone.
func (e Engine) CreateTicket(ctx context.Context, actor auth.Actor, t *domain.Ticket) (*domain.Ticket, error) {
	if t.SLA.ResponseTime == 0 {
		t.SLA.ResponseTime = e.Config.SLA.ResponseHours
	}
	if t.SLA.ResolutionTime == 0 {
		t.SLA.ResolutionTime = e.Config.SLA.ResolutionHours
	}
	t.SLA.IsBreached = false
	t.Comments = []domain.Comment{}
	t.FirstResponseTime, t.ResolutionTime = nil, nil
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	phone, err := e.normalizePhone(domain.KindTicket, "requester.phone", t.Requester.Phone)
	if err != nil {
		return nil, err
	}
	t.Requester.Phone = phone
	tickets := e.Tickets()
	t.TicketNumber, err = nextNumber(ctx, tickets, e.Config.Numbering.Ticket, func(x *domain.Ticket) string { return x.TicketNumber })
	if err != nil {
		return nil, err
	}
	return tickets.Create(ctx, actor, t)
}

// TicketPatch lists the client-editable ticket fields.
type TicketPatch struct {
	Title          *string                `json:"title,omitempty"`
	Description    *string                `json:"description,omitempty"`
	Priority       *domain.TicketPriority `json:"priority,omitempty"`
	Category       *domain.TicketCategory `json:"category,omitempty"`
	Requester      *domain.Requester      `json:"requester,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Attributes     domain.Attributes      `json:"attributes,omitempty"`
	ResponseHours  *int                   `json:"response_hours,omitempty"`
	ResolutionHour *int                   `json:"resolution_hours,omitempty"`
}

func (e Engine) UpdateTicket(ctx context.Context, actor auth.Actor, id string, p TicketPatch) (*domain.Ticket, error) {
	return e.Tickets().Update(ctx, actor, id, func(t *domain.Ticket) error {
		set(&t.Title, p.Title)
		set(&t.Description, p.Description)
		set(&t.Priority, p.Priority)
		set(&t.Category, p.Category)
		set(&t.SLA.ResponseTime, p.ResponseHours)
		set(&t.SLA.ResolutionTime, p.ResolutionHour)
		if p.Requester != nil {
			phone, err := e.normalizePhone(domain.KindTicket, "requester.phone", p.Requester.Phone)
			if err != nil {
				return err
			}
			t.Requester = *p.Requester
			t.Requester.Phone = phone
		}
		if p.Tags != nil {
			t.Tags = p.Tags
		}
		if p.Attributes != nil {
			t.Attributes = p.Attributes
		}
		return nil
	})
}

func (e Engine) TransitionTicket(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action, target domain.Status) (*domain.Ticket, error) {
	return e.Tickets().Do(ctx, actor, id, lifecycle.Request{Action: action, Target: target})
}

// CloseTicket closes a resolved ticket, recording note as an internal
// comment when given.
func (e Engine) CloseTicket(ctx context.Context, actor auth.Actor, id, note string) (*domain.Ticket, error) {
	req := lifecycle.Request{Action: kinds.Close}
	if note != "" {
		req.Data = note
	}
	return e.Tickets().Do(ctx, actor, id, req)
}

func (e Engine) AssignTicket(ctx context.Context, actor auth.Actor, id, assignee string) (*domain.Ticket, error) {
	return e.Tickets().Do(ctx, actor, id, lifecycle.Request{Action: kinds.Assign, Data: strings.TrimSpace(assignee)})
}

func (e Engine) CommentTicket(ctx context.Context, actor auth.Actor, id, text string, internal bool) (*domain.Ticket, error) {
	return e.Tickets().Do(ctx, actor, id, lifecycle.Request{
		Action: kinds.Comment,
		Data:   kinds.TicketComment{Text: text, IsInternal: internal},
	})
}

func (e Engine) CheckTicketSLA(ctx context.Context, actor auth.Actor, id string) (*domain.Ticket, error) {
	return e.Tickets().Do(ctx, actor, id, lifecycle.Request{Action: kinds.CheckSLA})
}

func (e Engine) DeleteTicket(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Tickets().Delete(ctx, actor, id, nil)
	return err
}

type TicketFilter struct {
	Status     []domain.Status
	Priority   domain.TicketPriority
	Category   domain.TicketCategory
	AssignedTo string
	Breached   *bool
	Limit      int
}

func (e Engine) ListTickets(ctx context.Context, f TicketFilter) ([]*domain.Ticket, error) {
	return e.Tickets().List(ctx, store.Query{Status: statusStrings(f.Status), Limit: f.Limit}, func(t *domain.Ticket) bool {
		if f.Priority != "" && t.Priority != f.Priority {
			return false
		}
		if f.Category != "" && t.Category != f.Category {
			return false
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			return false
		}
		if f.Breached != nil && t.SLA.IsBreached != *f.Breached {
			return false
		}
		return true
	})
}
