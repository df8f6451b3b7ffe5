package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"crmline/internal/delivery"
	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

func (e Engine) Campaigns() Records[domain.Campaign, *domain.Campaign] {
	return records(e, kinds.Campaign)
}

func (e Engine) Posts() Records[domain.SocialPost, *domain.SocialPost] {
	return records(e, kinds.SocialPost)
}

func (e Engine) SocialAccounts() Records[domain.SocialAccount, *domain.SocialAccount] {
	return records(e, kinds.SocialAccount)
}

func (e Engine) CreateCampaign(ctx context.Context, actor auth.Actor, c *domain.Campaign) (*domain.Campaign, error) {
	c.PerformanceMetrics = domain.PerformanceMetrics{Revenue: decimal.Zero}
	return e.Campaigns().Create(ctx, actor, c)
}

type CampaignPatch struct {
	Name           *string               `json:"name,omitempty"`
	Description    *string               `json:"description,omitempty"`
	Type           *domain.CampaignType  `json:"type,omitempty"`
	TargetAudience domain.Attributes     `json:"target_audience,omitempty"`
	StartDate      *time.Time            `json:"start_date,omitempty"`
	EndDate        *time.Time            `json:"end_date,omitempty"`
	Budget         *decimal.Decimal      `json:"budget,omitempty"`
	Goals          *domain.CampaignGoals `json:"goals,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
}

func (e Engine) UpdateCampaign(ctx context.Context, actor auth.Actor, id string, p CampaignPatch) (*domain.Campaign, error) {
	return e.Campaigns().Update(ctx, actor, id, func(c *domain.Campaign) error {
		set(&c.Name, p.Name)
		set(&c.Description, p.Description)
		set(&c.Type, p.Type)
		set(&c.Budget, p.Budget)
		set(&c.Goals, p.Goals)
		if p.StartDate != nil {
			c.StartDate = p.StartDate
		}
		if p.EndDate != nil {
			c.EndDate = p.EndDate
		}
		if p.TargetAudience != nil {
			c.TargetAudience = p.TargetAudience
		}
		if p.Tags != nil {
			c.Tags = p.Tags
		}
		return nil
	})
}

func (e Engine) TransitionCampaign(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.Campaign, error) {
	return e.Campaigns().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

func (e Engine) RecordCampaignMetrics(ctx context.Context, actor auth.Actor, id string, m domain.PerformanceMetrics) (*domain.Campaign, error) {
	return e.Campaigns().Do(ctx, actor, id, lifecycle.Request{Action: kinds.RecordMetrics, Data: m})
}

func (e Engine) DeleteCampaign(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Campaigns().Delete(ctx, actor, id, nil)
	return err
}

func (e Engine) ListCampaigns(ctx context.Context, status []domain.Status, typ domain.CampaignType) ([]*domain.Campaign, error) {
	return e.Campaigns().List(ctx, store.Query{Status: statusStrings(status)}, func(c *domain.Campaign) bool {
		return typ == "" || c.Type == typ
	})
}

// CampaignsNeedingAttention lists active campaigns under the configured
// lead or conversion floor.
func (e Engine) CampaignsNeedingAttention(ctx context.Context) ([]*domain.Campaign, error) {
	minLeads, minConv := e.Config.Automation.CampaignMinLeads, e.Config.Automation.CampaignMinConversions
	return e.Campaigns().List(ctx, store.Query{Status: []string{string(domain.CampaignActive)}}, func(c *domain.Campaign) bool {
		return derive.NeedsAttention(*c, minLeads, minConv)
	})
}

func (e Engine) CreateSocialAccount(ctx context.Context, actor auth.Actor, a *domain.SocialAccount) (*domain.SocialAccount, error) {
	if a.ConnectionStatus == "" {
		a.ConnectionStatus = domain.ConnectionPending
	}
	return e.SocialAccounts().Create(ctx, actor, a)
}

type SocialAccountPatch struct {
	AccountName      *string                  `json:"account_name,omitempty"`
	AccountID        *string                  `json:"account_id,omitempty"`
	ConnectionStatus *domain.ConnectionStatus `json:"connection_status,omitempty"`
}

func (e Engine) UpdateSocialAccount(ctx context.Context, actor auth.Actor, id string, p SocialAccountPatch) (*domain.SocialAccount, error) {
	return e.SocialAccounts().Update(ctx, actor, id, func(a *domain.SocialAccount) error {
		set(&a.AccountName, p.AccountName)
		set(&a.AccountID, p.AccountID)
		set(&a.ConnectionStatus, p.ConnectionStatus)
		return nil
	})
}

// DeactivateSocialAccount is the account delete.
func (e Engine) DeactivateSocialAccount(ctx context.Context, actor auth.Actor, id string) (*domain.SocialAccount, error) {
	return e.SocialAccounts().Delete(ctx, actor, id, nil)
}

func (e Engine) ListSocialAccounts(ctx context.Context, platform domain.Platform) ([]*domain.SocialAccount, error) {
	return e.SocialAccounts().List(ctx, store.Query{Status: []string{string(domain.StatusActive)}}, func(a *domain.SocialAccount) bool {
		return platform == "" || a.Platform == platform
	})
}

// CreatePost checks that the account and optional campaign exist.
func (e Engine) CreatePost(ctx context.Context, actor auth.Actor, p *domain.SocialPost) (*domain.SocialPost, error) {
	if err := e.checkPostRefs(ctx, p); err != nil {
		return nil, err
	}
	p.PublishedTime, p.PostID, p.PostURL, p.ErrorDetails = nil, "", "", nil
	p.Analytics = domain.PostAnalytics{}
	return e.Posts().Create(ctx, actor, p)
}

func (e Engine) checkPostRefs(ctx context.Context, p *domain.SocialPost) error {
	if p.AccountID != "" {
		if _, err := e.SocialAccounts().Get(ctx, p.AccountID); err != nil {
			return refError(domain.KindSocialPost, "account_id", err)
		}
	}
	if p.CampaignID != "" {
		if _, err := e.Campaigns().Get(ctx, p.CampaignID); err != nil {
			return refError(domain.KindSocialPost, "campaign_id", err)
		}
	}
	return nil
}

type PostPatch struct {
	Content    *domain.PostContent `json:"content,omitempty"`
	AccountID  *string             `json:"account_id,omitempty"`
	CampaignID *string             `json:"campaign_id,omitempty"`
}

func (e Engine) UpdatePost(ctx context.Context, actor auth.Actor, id string, p PostPatch) (*domain.SocialPost, error) {
	return e.Posts().Update(ctx, actor, id, func(post *domain.SocialPost) error {
		set(&post.Content, p.Content)
		set(&post.AccountID, p.AccountID)
		set(&post.CampaignID, p.CampaignID)
		return e.checkPostRefs(ctx, post)
	})
}

func (e Engine) SchedulePost(ctx context.Context, actor auth.Actor, id string, at time.Time) (*domain.SocialPost, error) {
	return e.Posts().Do(ctx, actor, id, lifecycle.Request{Action: kinds.Schedule, Data: at})
}

// PublishPost sends the post through the delivery collaborator. A failed
// send leaves the post failed with the error recorded; it is not retried.
func (e Engine) PublishPost(ctx context.Context, actor auth.Actor, id string) (*domain.SocialPost, error) {
	posts := e.Posts()
	post, err := posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.Check(posts.Table().AuthFor(kinds.Publish), post.OwnerID); err != nil {
		return nil, err
	}
	if _, err := posts.Table().Next(post.Status, kinds.Publish, ""); err != nil {
		return nil, err
	}
	res := e.publishResult(ctx, post)
	return posts.Apply(ctx, actor, post, lifecycle.Request{Action: kinds.Publish, Data: res})
}

func (e Engine) publishResult(ctx context.Context, post *domain.SocialPost) kinds.PublishResult {
	acct, err := e.SocialAccounts().Get(ctx, post.AccountID)
	if err != nil {
		return kinds.PublishResult{Error: &domain.ErrorDetails{Message: err.Error(), Code: "ACCOUNT_ERROR", Timestamp: e.now()}}
	}
	if acct.ConnectionStatus != domain.ConnectionConnected || !acct.IsActive {
		return kinds.PublishResult{Error: &domain.ErrorDetails{
			Message:   "Social media account is not connected",
			Code:      "ACCOUNT_ERROR",
			Timestamp: e.now(),
		}}
	}
	res := e.Delivery.Send(ctx, delivery.Notification{
		Channel:   delivery.ChannelSocial,
		Body:      post.Content.Text,
		Platform:  string(acct.Platform),
		AccountID: acct.AccountID,
		RefKind:   domain.KindSocialPost,
		RefID:     post.ID,
	})
	if !res.OK {
		e.logFailure("publishResult", "deliver post", map[string]string{"post": post.ID, "code": res.Code}, errors.New(res.Message))
		return kinds.PublishResult{Error: &domain.ErrorDetails{Message: res.Message, Code: res.Code, Timestamp: e.now()}}
	}
	return kinds.PublishResult{PostID: res.ExternalID, URL: res.URL}
}

func (e Engine) TransitionPost(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.SocialPost, error) {
	if action == kinds.Publish {
		return e.PublishPost(ctx, actor, id)
	}
	return e.Posts().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

func (e Engine) RecordPostAnalytics(ctx context.Context, actor auth.Actor, id string, a domain.PostAnalytics) (*domain.SocialPost, error) {
	return e.Posts().Do(ctx, actor, id, lifecycle.Request{Action: kinds.RecordAnalytic, Data: a})
}

func (e Engine) DeletePost(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Posts().Delete(ctx, actor, id, nil)
	return err
}

type PostFilter struct {
	Status     []domain.Status
	AccountID  string
	CampaignID string
	Limit      int
}

func (e Engine) ListPosts(ctx context.Context, f PostFilter) ([]*domain.SocialPost, error) {
	return e.Posts().List(ctx, store.Query{Status: statusStrings(f.Status), Limit: f.Limit}, func(p *domain.SocialPost) bool {
		if f.AccountID != "" && p.AccountID != f.AccountID {
			return false
		}
		return f.CampaignID == "" || p.CampaignID == f.CampaignID
	})
}

// DuePosts lists scheduled posts whose time has come, oldest first.
func (e Engine) DuePosts(ctx context.Context) ([]*domain.SocialPost, error) {
	now := e.now()
	q := store.Query{Status: []string{string(domain.PostScheduled)}, Order: store.OldestFirst}
	return e.Posts().List(ctx, q, func(p *domain.SocialPost) bool {
		return p.ScheduledTime != nil && !p.ScheduledTime.After(now)
	})
}

func refError(kind, field string, err error) error {
	if lifecycle.Code(err) == lifecycle.CodeNotFound {
		return lifecycle.Invalid(kind, field, "does not exist")
	}
	return err
}
