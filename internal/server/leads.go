package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/domain"
	"crmline/internal/engine"
)

func registerLeads(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Lead, *domain.Lead, engine.LeadPatch]{
		Path:       "/leads",
		Name:       "lead",
		Tag:        "leads",
		Create:     e.CreateLead,
		Get:        getter(e.Leads().Get),
		Update:     e.UpdateLead,
		Transition: action(e.TransitionLead),
		Delete:     e.DeleteLead,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leads",
		Method:      http.MethodGet,
		Path:        "/leads",
		Summary:     "List leads",
		Tags:        []string{"leads"},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		Source      string `query:"source"`
		StageID     string `query:"stage_id"`
		AssignedTo  string `query:"assigned_to"`
		Search      string `query:"q"`
		MinScore    int    `query:"min_score"`
		NeedsFollow bool   `query:"needs_follow_up"`
		Limit       int    `query:"limit" default:"50"`
	}) (*output[[]*domain.Lead], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		var (
			items []*domain.Lead
			err   error
		)
		if input.NeedsFollow {
			items, err = e.LeadsNeedingFollowUp(ctx)
		} else {
			items, err = e.ListLeads(ctx, engine.LeadFilter{
				Status:     parseStatuses(input.Status),
				Source:     domain.LeadSource(input.Source),
				StageID:    input.StageID,
				AssignedTo: input.AssignedTo,
				Search:     input.Search,
				MinScore:   input.MinScore,
				Limit:      normalizeLimit(input.Limit),
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-lead-activity",
		Method:      http.MethodPost,
		Path:        "/leads/{id}/activities",
		Summary:     "Log an activity",
		Tags:        []string{"leads"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Lead], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var a domain.Activity
		if err := decodeBody(ctx, &a); err != nil {
			return nil, err
		}
		l, err := e.AddLeadActivity(ctx, actor, input.ID, a)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-lead-stage",
		Method:      http.MethodPost,
		Path:        "/leads/{id}/stage",
		Summary:     "Move a lead to another pipeline stage",
		Tags:        []string{"leads"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body MoveStageRequest `json:"body"`
	}) (*output[*domain.Lead], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.MoveLeadStage(ctx, actor, input.ID, input.Body.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(l), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recalculate-lead",
		Method:      http.MethodPost,
		Path:        "/leads/{id}/recalculate",
		Summary:     "Recompute the lead score",
		Tags:        []string{"leads"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Lead], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.RecalculateLead(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(l), nil
	})

	registerResource(api, resource[domain.PipelineStage, *domain.PipelineStage, engine.StagePatch]{
		Path:       "/stages",
		Name:       "stage",
		Tag:        "leads",
		Create:     e.CreateStage,
		Get:        getter(e.Stages().Get),
		Update:     e.UpdateStage,
		Transition: action(e.TransitionStage),
		Delete:     e.DeleteStage,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List stages in pipeline order",
		Tags:        []string{"leads"},
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active"`
	}) (*output[[]*domain.PipelineStage], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListStages(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-conversion-rate",
		Method:      http.MethodGet,
		Path:        "/stages/{id}/conversion-rate",
		Summary:     "Share of leads that reached the next stage",
		Tags:        []string{"leads"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idInput) (*output[ConversionRateResponse], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		rate, err := e.StageConversionRate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ConversionRateResponse{StageID: input.ID, Rate: rate}), nil
	})
}
