package kinds

import (
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

// KnowledgeArticle wires knowledge-base articles. Readers may view and
// rate published articles; deleting archives.
var KnowledgeArticle = lifecycle.Kind[domain.KnowledgeArticle, *domain.KnowledgeArticle]{
	Table: lifecycle.Table{
		Kind:     domain.KindKnowledgeArticle,
		Initial:  domain.ArticleDraft,
		Statuses: []domain.Status{domain.ArticleDraft, domain.ArticlePublished, domain.ArticleArchived},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Publish:  {From: from(domain.ArticleDraft, domain.ArticleArchived), To: domain.ArticlePublished},
			Archive:  {From: from(domain.ArticleDraft, domain.ArticlePublished), To: domain.ArticleArchived},
			View:     {From: from(domain.ArticlePublished)},
			Feedback: {From: from(domain.ArticlePublished)},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			View:     {domain.ArticleDraft: "article is not published", domain.ArticleArchived: "article is not published"},
			Feedback: {domain.ArticleDraft: "article is not published", domain.ArticleArchived: "article is not published"},
		},
		Edit: auth.Owner,
		Act:  auth.Owner,
		ActionAuth: map[lifecycle.Action]auth.Rule{
			View:     auth.Open,
			Feedback: auth.Open,
		},
		Delete:     auth.Owner,
		SoftDelete: domain.ArticleArchived,
	},
	Require: map[lifecycle.Action]func(*domain.KnowledgeArticle, lifecycle.Input) error{
		Feedback: func(_ *domain.KnowledgeArticle, in lifecycle.Input) error {
			_, err := payload[bool](domain.KindKnowledgeArticle, in)
			return err
		},
	},
	Effects: map[lifecycle.Action]func(*domain.KnowledgeArticle, lifecycle.Input) error{
		View: func(a *domain.KnowledgeArticle, _ lifecycle.Input) error {
			a.ViewCount++
			return nil
		},
		Feedback: func(a *domain.KnowledgeArticle, in lifecycle.Input) error {
			if in.Data.(bool) {
				a.HelpfulCount++
			} else {
				a.UnhelpfulCount++
			}
			return nil
		},
	},
}
