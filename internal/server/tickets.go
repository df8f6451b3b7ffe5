package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/domain"
	"crmline/internal/engine"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
)

func registerTickets(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Ticket, *domain.Ticket, engine.TicketPatch]{
		Path:   "/tickets",
		Name:   "ticket",
		Tag:    "tickets",
		Create: e.CreateTicket,
		Get:    getter(e.Tickets().Get),
		Update: e.UpdateTicket,
		Transition: func(ctx context.Context, actor auth.Actor, id string, req TransitionRequest) (*domain.Ticket, error) {
			if lifecycle.Action(req.Action) == kinds.Close {
				return e.CloseTicket(ctx, actor, id, req.Note)
			}
			return e.TransitionTicket(ctx, actor, id, lifecycle.Action(req.Action), domain.Status(req.Status))
		},
		Delete: e.DeleteTicket,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/tickets",
		Summary:     "List tickets",
		Tags:        []string{"tickets"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" doc:"Comma-separated statuses"`
		Priority   string `query:"priority"`
		Category   string `query:"category"`
		AssignedTo string `query:"assigned_to"`
		Breached   string `query:"breached" doc:"true or false"`
		Limit      int    `query:"limit" default:"50"`
	}) (*output[[]*domain.Ticket], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		f := engine.TicketFilter{
			Status:     parseStatuses(input.Status),
			Priority:   domain.TicketPriority(input.Priority),
			Category:   domain.TicketCategory(input.Category),
			AssignedTo: input.AssignedTo,
			Limit:      normalizeLimit(input.Limit),
		}
		if input.Breached != "" {
			breached := input.Breached == "true"
			f.Breached = &breached
		}
		items, err := e.ListTickets(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "comment-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/comments",
		Summary:     "Add a comment",
		Tags:        []string{"tickets"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body CommentRequest `json:"body"`
	}) (*output[*domain.Ticket], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CommentTicket(ctx, actor, input.ID, input.Body.Text, input.Body.IsInternal)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/assign",
		Summary:     "Assign a ticket",
		Tags:        []string{"tickets"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*output[*domain.Ticket], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignTicket(ctx, actor, input.ID, input.Body.AssignedTo)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-ticket-sla",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/check-sla",
		Summary:     "Re-evaluate the SLA breach flag",
		Tags:        []string{"tickets"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Ticket], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CheckTicketSLA(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})
}
