package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CampaignDraft     Status = "draft"
	CampaignActive    Status = "active"
	CampaignPaused    Status = "paused"
	CampaignCompleted Status = "completed"
)

type CampaignType string

const (
	CampaignEmail   CampaignType = "email"
	CampaignSocial  CampaignType = "social"
	CampaignWebinar CampaignType = "webinar"
	CampaignContent CampaignType = "content"
	CampaignOther   CampaignType = "other"
)

type CampaignGoals struct {
	Leads       int             `json:"leads" validate:"gte=0"`
	Conversions int             `json:"conversions" validate:"gte=0"`
	Revenue     decimal.Decimal `json:"revenue" validate:"gte=0"`
}

type PerformanceMetrics struct {
	Impressions int             `json:"impressions" validate:"gte=0"`
	Clicks      int             `json:"clicks" validate:"gte=0"`
	Leads       int             `json:"leads" validate:"gte=0"`
	Conversions int             `json:"conversions" validate:"gte=0"`
	Revenue     decimal.Decimal `json:"revenue" validate:"gte=0"`
}

// Effectiveness is derived from a campaign's budget and metrics.
type Effectiveness struct {
	CostPerLead       decimal.Decimal `json:"cost_per_lead"`
	CostPerConversion decimal.Decimal `json:"cost_per_conversion"`
	ROI               decimal.Decimal `json:"roi"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
}

type Campaign struct {
	Record
	Name               string             `json:"name" validate:"required"`
	Description        string             `json:"description,omitempty"`
	Status             Status             `json:"status"`
	Type               CampaignType       `json:"type" validate:"required,oneof=email social webinar content other"`
	TargetAudience     Attributes         `json:"target_audience,omitempty"`
	StartDate          *time.Time         `json:"start_date,omitempty"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	Budget             decimal.Decimal    `json:"budget" validate:"gte=0"`
	Goals              CampaignGoals      `json:"goals"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	Effectiveness      Effectiveness      `json:"effectiveness"`
	Tags               []string           `json:"tags,omitempty"`
}

func (c *Campaign) CurrentStatus() Status { return c.Status }
func (c *Campaign) SetStatus(s Status)    { c.Status = s }

const (
	PostDraft     Status = "draft"
	PostScheduled Status = "scheduled"
	PostPublished Status = "published"
	PostFailed    Status = "failed"
	PostArchived  Status = "archived"
)

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformOther     Platform = "other"
)

type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionError        ConnectionStatus = "error"
)

type SocialAccount struct {
	Record
	Platform         Platform         `json:"platform" validate:"required,oneof=facebook twitter linkedin instagram other"`
	AccountName      string           `json:"account_name" validate:"required"`
	AccountID        string           `json:"account_id,omitempty"`
	ConnectionStatus ConnectionStatus `json:"connection_status" validate:"omitempty,oneof=connected disconnected pending error"`
	IsActive         bool             `json:"is_active"`
}

func (a *SocialAccount) CurrentStatus() Status { return activeStatus(a.IsActive) }
func (a *SocialAccount) SetStatus(s Status)    { a.IsActive = s == StatusActive }

type PostContent struct {
	Text   string   `json:"text" validate:"required"`
	Images []string `json:"images,omitempty"`
	Video  string   `json:"video,omitempty"`
	Link   string   `json:"link,omitempty" validate:"omitempty,url"`
}

type PostAnalytics struct {
	Likes       int `json:"likes" validate:"gte=0"`
	Shares      int `json:"shares" validate:"gte=0"`
	Comments    int `json:"comments" validate:"gte=0"`
	Impressions int `json:"impressions" validate:"gte=0"`
	Clicks      int `json:"clicks" validate:"gte=0"`
}

type ErrorDetails struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

type SocialPost struct {
	Record
	AccountID     string        `json:"account_id" validate:"required"`
	Content       PostContent   `json:"content"`
	Status        Status        `json:"status"`
	ScheduledTime *time.Time    `json:"scheduled_time,omitempty"`
	PublishedTime *time.Time    `json:"published_time,omitempty"`
	PostID        string        `json:"post_id,omitempty"`
	PostURL       string        `json:"post_url,omitempty"`
	Analytics     PostAnalytics `json:"analytics"`
	ErrorDetails  *ErrorDetails `json:"error_details,omitempty"`
	CampaignID    string        `json:"campaign_id,omitempty"`
}

func (p *SocialPost) CurrentStatus() Status { return p.Status }
func (p *SocialPost) SetStatus(s Status)    { p.Status = s }
