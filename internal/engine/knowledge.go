package engine

import (
	"context"
	"slices"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Articles() Records[domain.KnowledgeArticle, *domain.KnowledgeArticle] {
	return records(e, kinds.KnowledgeArticle)
}

func (e Engine) CreateArticle(ctx context.Context, actor auth.Actor, a *domain.KnowledgeArticle) (*domain.KnowledgeArticle, error) {
	a.ViewCount, a.HelpfulCount, a.UnhelpfulCount = 0, 0, 0
	return e.Articles().Create(ctx, actor, a)
}

type ArticlePatch struct {
	Title          *string                 `json:"title,omitempty"`
	Content        *string                 `json:"content,omitempty"`
	Category       *domain.ArticleCategory `json:"category,omitempty"`
	Tags           []string                `json:"tags,omitempty"`
	RelatedTickets []string                `json:"related_tickets,omitempty"`
}

func (e Engine) UpdateArticle(ctx context.Context, actor auth.Actor, id string, p ArticlePatch) (*domain.KnowledgeArticle, error) {
	return e.Articles().Update(ctx, actor, id, func(a *domain.KnowledgeArticle) error {
		set(&a.Title, p.Title)
		set(&a.Content, p.Content)
		set(&a.Category, p.Category)
		if p.Tags != nil {
			a.Tags = p.Tags
		}
		if p.RelatedTickets != nil {
			a.RelatedTickets = p.RelatedTickets
		}
		return nil
	})
}

func (e Engine) TransitionArticle(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.KnowledgeArticle, error) {
	return e.Articles().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

// ViewArticle returns the article and counts the view.
func (e Engine) ViewArticle(ctx context.Context, actor auth.Actor, id string) (*domain.KnowledgeArticle, error) {
	return e.Articles().Do(ctx, actor, id, lifecycle.Request{Action: kinds.View})
}

func (e Engine) ArticleFeedback(ctx context.Context, actor auth.Actor, id string, helpful bool) (*domain.KnowledgeArticle, error) {
	return e.Articles().Do(ctx, actor, id, lifecycle.Request{Action: kinds.Feedback, Data: helpful})
}

// ArchiveArticle is the article delete.
func (e Engine) ArchiveArticle(ctx context.Context, actor auth.Actor, id string) (*domain.KnowledgeArticle, error) {
	return e.Articles().Delete(ctx, actor, id, nil)
}

// GetArticle hides unpublished articles from non-admin readers who do not
// own them.
func (e Engine) GetArticle(ctx context.Context, actor auth.Actor, id string) (*domain.KnowledgeArticle, error) {
	a, err := e.Articles().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, a) {
		return nil, notFound(domain.KindKnowledgeArticle, id)
	}
	return a, nil
}

type ArticleFilter struct {
	Query    string
	Category domain.ArticleCategory
	Status   []domain.Status
	Limit    int
}

// SearchArticles matches the keyword against title, content and tags.
// Non-admins only see published articles.
func (e Engine) SearchArticles(ctx context.Context, actor auth.Actor, f ArticleFilter) ([]*domain.KnowledgeArticle, error) {
	q := store.Query{Status: statusStrings(f.Status), Limit: f.Limit}
	if !actor.IsAdmin() {
		q.Status = []string{string(domain.ArticlePublished)}
	}
	return e.Articles().List(ctx, q, func(a *domain.KnowledgeArticle) bool {
		if f.Category != "" && a.Category != f.Category {
			return false
		}
		return f.Query == "" || matchesArticle(a, f.Query)
	})
}

func matchesArticle(a *domain.KnowledgeArticle, keyword string) bool {
	if containsFold(a.Title, keyword) || containsFold(a.Content, keyword) {
		return true
	}
	return slices.ContainsFunc(a.Tags, func(t string) bool { return containsFold(t, keyword) })
}

func canRead(actor auth.Actor, a *domain.KnowledgeArticle) bool {
	return a.Status == domain.ArticlePublished || actor.IsAdmin() || actor.IsOwner(a.OwnerID)
}
