package domain

const (
	ArticleDraft     Status = "draft"
	ArticlePublished Status = "published"
	ArticleArchived  Status = "archived"
)

type ArticleCategory string

const (
	ArticleTechnical       ArticleCategory = "technical"
	ArticleProcedural      ArticleCategory = "procedural"
	ArticlePolicy          ArticleCategory = "policy"
	ArticleFAQ             ArticleCategory = "faq"
	ArticleTroubleshooting ArticleCategory = "troubleshooting"
	ArticleOther           ArticleCategory = "other"
)

type KnowledgeArticle struct {
	Record
	Title          string          `json:"title" validate:"required"`
	Content        string          `json:"content" validate:"required"`
	Category       ArticleCategory `json:"category" validate:"required,oneof=technical procedural policy faq troubleshooting other"`
	Tags           []string        `json:"tags,omitempty"`
	Status         Status          `json:"status"`
	ViewCount      int             `json:"view_count"`
	HelpfulCount   int             `json:"helpful_count"`
	UnhelpfulCount int             `json:"unhelpful_count"`
	RelatedTickets []string        `json:"related_tickets,omitempty"`
}

func (k *KnowledgeArticle) CurrentStatus() Status { return k.Status }
func (k *KnowledgeArticle) SetStatus(s Status)    { k.Status = s }
