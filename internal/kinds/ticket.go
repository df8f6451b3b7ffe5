package kinds

import (
	"strings"
	"time"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

var ticketStatuses = []domain.Status{
	domain.TicketOpen, domain.TicketInProgress, domain.TicketOnHold,
	domain.TicketResolved, domain.TicketClosed,
}

// TicketComment is the payload of the comment action.
type TicketComment struct {
	Text       string
	IsInternal bool
}

// Ticket wires support tickets. Any authenticated actor may work a
// ticket; only admins delete.
var Ticket = lifecycle.Kind[domain.Ticket, *domain.Ticket]{
	Table: lifecycle.Table{
		Kind:     domain.KindTicket,
		Initial:  domain.TicketOpen,
		Statuses: ticketStatuses,
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Start:     {From: from(domain.TicketOpen), To: domain.TicketInProgress},
			Hold:      {From: from(domain.TicketInProgress), To: domain.TicketOnHold},
			Resume:    {From: from(domain.TicketOnHold), To: domain.TicketInProgress},
			Resolve:   {From: from(domain.TicketOpen, domain.TicketInProgress, domain.TicketOnHold), To: domain.TicketResolved},
			Close:     {From: from(domain.TicketResolved), To: domain.TicketClosed},
			Reopen:    {From: from(domain.TicketResolved), To: domain.TicketInProgress},
			SetStatus: {From: except(ticketStatuses, domain.TicketClosed), Free: true},
			Assign:    {From: except(ticketStatuses, domain.TicketClosed)},
			Comment:   {},
			CheckSLA:  {},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			Close: {domain.TicketClosed: "already closed"},
		},
		Edit:   auth.Open,
		Act:    auth.Open,
		Delete: auth.Admin,
	},
	Validate: func(t *domain.Ticket) error {
		return attributes(domain.KindTicket, "attributes", t.Attributes)
	},
	Require: map[lifecycle.Action]func(*domain.Ticket, lifecycle.Input) error{
		Assign: func(t *domain.Ticket, in lifecycle.Input) error {
			id, err := payload[string](domain.KindTicket, in)
			if err == nil && strings.TrimSpace(id) == "" {
				err = lifecycle.Invalid(domain.KindTicket, "assigned_to", "required")
			}
			return err
		},
		Comment: func(t *domain.Ticket, in lifecycle.Input) error {
			c, err := payload[TicketComment](domain.KindTicket, in)
			if err == nil && strings.TrimSpace(c.Text) == "" {
				err = lifecycle.Invalid(domain.KindTicket, "text", "required")
			}
			return err
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Ticket, lifecycle.Input) error{
		Resolve:   stampResolution,
		Close:     closeTicket,
		SetStatus: stampResolution,
		Assign: func(t *domain.Ticket, in lifecycle.Input) error {
			t.AssignedTo = in.Data.(string)
			return nil
		},
		Comment: func(t *domain.Ticket, in lifecycle.Input) error {
			c := in.Data.(TicketComment)
			prependComment(t, domain.Comment{Text: c.Text, CreatedBy: in.Actor.ID, IsInternal: c.IsInternal, CreatedAt: in.Now})
			if t.FirstResponseTime == nil && !isRequester(t, in.Actor) {
				t.FirstResponseTime = domain.Stamp(in.Now)
			}
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.Ticket]{
		{
			Name:  "sla_deadlines",
			After: []lifecycle.Action{lifecycle.ActionCreate, lifecycle.ActionUpdate},
			Apply: func(t *domain.Ticket, _ time.Time) {
				t.SLA.ResponseDeadline, t.SLA.ResolutionDeadline = derive.SLADeadlines(t.CreatedAt, t.SLA.ResponseTime, t.SLA.ResolutionTime)
			},
		},
		{
			Name: "sla_breach",
			Apply: func(t *domain.Ticket, now time.Time) {
				if t.SLA.IsBreached || !derive.SLABreached(t.SLA, t.FirstResponseTime, t.ResolutionTime, now) {
					return
				}
				t.SLA.IsBreached = true
				prependComment(t, domain.Comment{Text: "SLA breach detected", CreatedBy: auth.System.ID, IsInternal: true, CreatedAt: now})
			},
		},
	},
	OnStatusChange: func(t *domain.Ticket, _, to domain.Status, in lifecycle.Input) {
		prependComment(t, domain.Comment{
			Text:       "Ticket status changed to " + string(to),
			CreatedBy:  in.Actor.ID,
			IsInternal: true,
			CreatedAt:  in.Now,
		})
	},
}

func stampResolution(t *domain.Ticket, in lifecycle.Input) error {
	if (t.Status == domain.TicketResolved || t.Status == domain.TicketClosed) && t.ResolutionTime == nil {
		t.ResolutionTime = domain.Stamp(in.Now)
	}
	return nil
}

// closeTicket accepts an optional note recorded as an internal comment.
func closeTicket(t *domain.Ticket, in lifecycle.Input) error {
	if note, ok := in.Data.(string); ok && note != "" {
		prependComment(t, domain.Comment{Text: note, CreatedBy: in.Actor.ID, IsInternal: true, CreatedAt: in.Now})
	}
	return stampResolution(t, in)
}

func prependComment(t *domain.Ticket, c domain.Comment) {
	t.Comments = append([]domain.Comment{c}, t.Comments...)
}

func isRequester(t *domain.Ticket, a auth.Actor) bool {
	return a.Email != "" && strings.EqualFold(a.Email, t.Requester.Email)
}
