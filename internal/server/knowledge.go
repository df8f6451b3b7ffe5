package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"crmline/internal/domain"
	"crmline/internal/engine"
)

func registerKnowledge(api huma.API, e engine.Engine) {
	registerResource(api, resource[domain.KnowledgeArticle, *domain.KnowledgeArticle, engine.ArticlePatch]{
		Path:       "/articles",
		Name:       "article",
		Tag:        "knowledge",
		Create:     e.CreateArticle,
		Get:        e.GetArticle,
		Update:     e.UpdateArticle,
		Transition: action(e.TransitionArticle),
		Delete:     softDelete(e.ArchiveArticle),
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-articles",
		Method:      http.MethodGet,
		Path:        "/articles",
		Summary:     "Search articles",
		Description: "Non-admin callers only see published articles.",
		Tags:        []string{"knowledge"},
	}, func(ctx context.Context, input *struct {
		Query    string `query:"q"`
		Category string `query:"category"`
		Status   string `query:"status"`
		Limit    int    `query:"limit" default:"50"`
	}) (*output[[]*domain.KnowledgeArticle], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.SearchArticles(ctx, actor, engine.ArticleFilter{
			Query:    input.Query,
			Category: domain.ArticleCategory(input.Category),
			Status:   parseStatuses(input.Status),
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "view-article",
		Method:      http.MethodPost,
		Path:        "/articles/{id}/views",
		Summary:     "Count a view",
		Tags:        []string{"knowledge"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idInput) (*output[*domain.KnowledgeArticle], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ViewArticle(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "article-feedback",
		Method:      http.MethodPost,
		Path:        "/articles/{id}/feedback",
		Summary:     "Rate an article helpful or not",
		Tags:        []string{"knowledge"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body FeedbackRequest `json:"body"`
	}) (*output[*domain.KnowledgeArticle], error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ArticleFeedback(ctx, actor, input.ID, input.Body.Helpful)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})
}
