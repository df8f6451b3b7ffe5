package kinds

import (
	"time"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

// Campaign wires marketing campaigns.
var Campaign = lifecycle.Kind[domain.Campaign, *domain.Campaign]{
	Table: lifecycle.Table{
		Kind:    domain.KindCampaign,
		Initial: domain.CampaignDraft,
		Statuses: []domain.Status{
			domain.CampaignDraft, domain.CampaignActive, domain.CampaignPaused, domain.CampaignCompleted,
		},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Start:         {From: from(domain.CampaignDraft, domain.CampaignPaused), To: domain.CampaignActive},
			Pause:         {From: from(domain.CampaignActive), To: domain.CampaignPaused},
			Complete:      {From: from(domain.CampaignActive, domain.CampaignPaused), To: domain.CampaignCompleted},
			RecordMetrics: {From: from(domain.CampaignActive, domain.CampaignPaused)},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			Start:    {domain.CampaignActive: "already active"},
			Complete: {domain.CampaignCompleted: "already completed"},
		},
		Edit:   auth.Owner,
		Act:    auth.Owner,
		Delete: auth.Owner,
	},
	Validate: func(c *domain.Campaign) error {
		if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
			return lifecycle.Invalid(domain.KindCampaign, "end_date", "must not precede start_date")
		}
		return attributes(domain.KindCampaign, "target_audience", c.TargetAudience)
	},
	Require: map[lifecycle.Action]func(*domain.Campaign, lifecycle.Input) error{
		RecordMetrics: func(_ *domain.Campaign, in lifecycle.Input) error {
			m, err := payload[domain.PerformanceMetrics](domain.KindCampaign, in)
			if err != nil {
				return err
			}
			return lifecycle.Validate(domain.KindCampaign, m)
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Campaign, lifecycle.Input) error{
		Start: func(c *domain.Campaign, in lifecycle.Input) error {
			if c.StartDate == nil {
				c.StartDate = domain.Stamp(in.Now)
			}
			return nil
		},
		Complete: func(c *domain.Campaign, in lifecycle.Input) error {
			c.EndDate = domain.Stamp(in.Now)
			return nil
		},
		RecordMetrics: func(c *domain.Campaign, in lifecycle.Input) error {
			c.PerformanceMetrics = in.Data.(domain.PerformanceMetrics)
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.Campaign]{{
		Name: "effectiveness",
		Apply: func(c *domain.Campaign, _ time.Time) {
			c.Effectiveness = derive.Effectiveness(c.Budget, c.PerformanceMetrics)
		},
	}},
}

// PublishResult is the delivery outcome handed to the publish action. A
// non-nil Error flips the post to failed.
type PublishResult struct {
	PostID string
	URL    string
	Error  *domain.ErrorDetails
}

// SocialPost wires scheduled social media posts.
var SocialPost = lifecycle.Kind[domain.SocialPost, *domain.SocialPost]{
	Table: lifecycle.Table{
		Kind:    domain.KindSocialPost,
		Initial: domain.PostDraft,
		Statuses: []domain.Status{
			domain.PostDraft, domain.PostScheduled, domain.PostPublished, domain.PostFailed, domain.PostArchived,
		},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Schedule:       {From: from(domain.PostDraft, domain.PostFailed), To: domain.PostScheduled},
			Publish:        {From: from(domain.PostDraft, domain.PostScheduled, domain.PostFailed), To: domain.PostPublished},
			Archive:        {From: from(domain.PostDraft, domain.PostScheduled, domain.PostFailed), To: domain.PostArchived},
			Redraft:        {From: from(domain.PostFailed), To: domain.PostDraft},
			RecordAnalytic: {From: from(domain.PostPublished)},
		},
		Reasons: map[lifecycle.Action]map[domain.Status]string{
			Publish: {domain.PostPublished: "already published"},
			Archive: {domain.PostPublished: "published posts cannot be archived"},
		},
		Edit:          auth.Owner,
		Act:           auth.Owner,
		Delete:        auth.Owner,
		EditBlocked:   from(domain.PostPublished, domain.PostArchived),
		DeleteBlocked: from(domain.PostPublished),
	},
	Require: map[lifecycle.Action]func(*domain.SocialPost, lifecycle.Input) error{
		Schedule: func(_ *domain.SocialPost, in lifecycle.Input) error {
			at, err := payload[time.Time](domain.KindSocialPost, in)
			if err != nil {
				return err
			}
			if !at.After(in.Now) {
				return lifecycle.Invalid(domain.KindSocialPost, "scheduled_time", "must be in the future")
			}
			return nil
		},
		Publish: func(_ *domain.SocialPost, in lifecycle.Input) error {
			_, err := payload[PublishResult](domain.KindSocialPost, in)
			return err
		},
		RecordAnalytic: func(_ *domain.SocialPost, in lifecycle.Input) error {
			a, err := payload[domain.PostAnalytics](domain.KindSocialPost, in)
			if err != nil {
				return err
			}
			return lifecycle.Validate(domain.KindSocialPost, a)
		},
	},
	Effects: map[lifecycle.Action]func(*domain.SocialPost, lifecycle.Input) error{
		Schedule: func(p *domain.SocialPost, in lifecycle.Input) error {
			at := in.Data.(time.Time).UTC()
			p.ScheduledTime = &at
			p.ErrorDetails = nil
			return nil
		},
		Publish: func(p *domain.SocialPost, in lifecycle.Input) error {
			res := in.Data.(PublishResult)
			if res.Error != nil {
				p.Status = domain.PostFailed
				p.ErrorDetails = res.Error
				return nil
			}
			p.PublishedTime = domain.Stamp(in.Now)
			p.PostID = res.PostID
			p.PostURL = res.URL
			p.ErrorDetails = nil
			return nil
		},
		Redraft: func(p *domain.SocialPost, _ lifecycle.Input) error {
			p.ScheduledTime = nil
			p.ErrorDetails = nil
			return nil
		},
		RecordAnalytic: func(p *domain.SocialPost, in lifecycle.Input) error {
			p.Analytics = in.Data.(domain.PostAnalytics)
			return nil
		},
	},
}

// SocialAccount wires connected social profiles. Deleting deactivates.
var SocialAccount = lifecycle.Kind[domain.SocialAccount, *domain.SocialAccount]{
	Table: lifecycle.Table{
		Kind:     domain.KindSocialAccount,
		Initial:  domain.StatusActive,
		Statuses: []domain.Status{domain.StatusActive, domain.StatusInactive},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Activate:   {From: from(domain.StatusInactive), To: domain.StatusActive},
			Deactivate: {From: from(domain.StatusActive), To: domain.StatusInactive},
		},
		Edit:       auth.Owner,
		Act:        auth.Owner,
		Delete:     auth.Owner,
		SoftDelete: domain.StatusInactive,
	},
}
