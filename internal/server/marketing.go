package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/domain"
	"crmline/internal/engine"
)

func registerCampaigns(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.Campaign, *domain.Campaign, engine.CampaignPatch]{
		Path:       "/campaigns",
		Name:       "campaign",
		Tag:        "campaigns",
		Create:     e.CreateCampaign,
		Get:        getter(e.Campaigns().Get),
		Update:     e.UpdateCampaign,
		Transition: action(e.TransitionCampaign),
		Delete:     e.DeleteCampaign,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
		Tags:        []string{"campaigns"},
	}, func(ctx context.Context, input *struct {
		Status         string `query:"status"`
		Type           string `query:"type"`
		NeedsAttention bool   `query:"needs_attention"`
	}) (*output[[]*domain.Campaign], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		var (
			items []*domain.Campaign
			err   error
		)
		if input.NeedsAttention {
			items, err = e.CampaignsNeedingAttention(ctx)
		} else {
			items, err = e.ListCampaigns(ctx, parseStatuses(input.Status), domain.CampaignType(input.Type))
		}
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-campaign-metrics",
		Method:      http.MethodPost,
		Path:        "/campaigns/{id}/metrics",
		Summary:     "Record performance metrics",
		Tags:        []string{"campaigns"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.Campaign], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var m domain.PerformanceMetrics
		if err := decodeBody(ctx, &m); err != nil {
			return nil, err
		}
		c, err := e.RecordCampaignMetrics(ctx, actor, input.ID, m)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})
}

func registerSocial(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.SocialAccount, *domain.SocialAccount, engine.SocialAccountPatch]{
		Path:   "/social/accounts",
		Name:   "social-account",
		Tag:    "social",
		Create: e.CreateSocialAccount,
		Get:    getter(e.SocialAccounts().Get),
		Update: e.UpdateSocialAccount,
		Delete: softDelete(e.DeactivateSocialAccount),
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-social-accounts",
		Method:      http.MethodGet,
		Path:        "/social/accounts",
		Summary:     "List active social accounts",
		Tags:        []string{"social"},
	}, func(ctx context.Context, input *struct {
		Platform string `query:"platform"`
	}) (*output[[]*domain.SocialAccount], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSocialAccounts(ctx, domain.Platform(input.Platform))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	registerResource(api, resource[domain.SocialPost, *domain.SocialPost, engine.PostPatch]{
		Path:       "/social/posts",
		Name:       "social-post",
		Tag:        "social",
		Create:     e.CreatePost,
		Get:        getter(e.Posts().Get),
		Update:     e.UpdatePost,
		Transition: action(e.TransitionPost),
		Delete:     e.DeletePost,
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-social-posts",
		Method:      http.MethodGet,
		Path:        "/social/posts",
		Summary:     "List posts",
		Tags:        []string{"social"},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		AccountID  string `query:"account_id"`
		CampaignID string `query:"campaign_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*output[[]*domain.SocialPost], error) {
		if _, authErr := requireActor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListPosts(ctx, engine.PostFilter{
			Status:     parseStatuses(input.Status),
			AccountID:  input.AccountID,
			CampaignID: input.CampaignID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-social-post",
		Method:      http.MethodPost,
		Path:        "/social/posts/{id}/schedule",
		Summary:     "Schedule a draft post",
		Tags:        []string{"social"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ScheduleRequest `json:"body"`
	}) (*output[*domain.SocialPost], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SchedulePost(ctx, actor, input.ID, input.Body.ScheduledTime)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-social-post",
		Method:      http.MethodPost,
		Path:        "/social/posts/{id}/publish",
		Summary:     "Publish now",
		Description: "A delivery failure is recorded on the post (status failed, error_details) and is not an HTTP error.",
		Tags:        []string{"social"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.SocialPost], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.PublishPost(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-social-post-analytics",
		Method:      http.MethodPost,
		Path:        "/social/posts/{id}/analytics",
		Summary:     "Record engagement analytics",
		Tags:        []string{"social"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.SocialPost], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var a domain.PostAnalytics
		if err := decodeBody(ctx, &a); err != nil {
			return nil, err
		}
		p, err := e.RecordPostAnalytics(ctx, actor, input.ID, a)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}
