package domain

import "time"

const (
	LeadNew         Status = "new"
	LeadContacted   Status = "contacted"
	LeadQualified   Status = "qualified"
	LeadProposal    Status = "proposal"
	LeadNegotiation Status = "negotiation"
	LeadWon         Status = "won"
	LeadLost        Status = "lost"
)

type LeadSource string

const (
	SourceWebsite       LeadSource = "website"
	SourceReferral      LeadSource = "referral"
	SourceSocialMedia   LeadSource = "social_media"
	SourceEmailCampaign LeadSource = "email_campaign"
	SourceWebinar       LeadSource = "webinar"
	SourceOther         LeadSource = "other"
)

type ActivityType string

const (
	ActivityEmail   ActivityType = "email"
	ActivityCall    ActivityType = "call"
	ActivityMeeting ActivityType = "meeting"
	ActivityTask    ActivityType = "task"
	ActivityNote    ActivityType = "note"
)

// Activity is an immutable entry in a lead's history, stored newest-first.
type Activity struct {
	Type        ActivityType `json:"type" validate:"required,oneof=email call meeting task note"`
	Description string       `json:"description" validate:"required"`
	Date        time.Time    `json:"date"`
	Completed   bool         `json:"completed"`
	CreatedBy   string       `json:"created_by,omitempty"`
}

type Lead struct {
	Record
	Email        string     `json:"email" validate:"required,email"`
	Name         string     `json:"name" validate:"required"`
	Company      string     `json:"company,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Source       LeadSource `json:"source" validate:"required,oneof=website referral social_media email_campaign webinar other"`
	Score        int        `json:"score"`
	Status       Status     `json:"status"`
	StageID      string     `json:"stage_id,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CustomFields Attributes `json:"custom_fields,omitempty"`
	Activities   []Activity `json:"activities"`
	LastActivity time.Time  `json:"last_activity"`
}

func (l *Lead) CurrentStatus() Status { return l.Status }
func (l *Lead) SetStatus(s Status)    { l.Status = s }

type AutomationRule struct {
	Trigger string     `json:"trigger" validate:"required"`
	Action  string     `json:"action" validate:"required"`
	Params  Attributes `json:"params,omitempty"`
}

type PipelineStage struct {
	Record
	Name            string           `json:"name" validate:"required"`
	Description     string           `json:"description,omitempty"`
	Order           int              `json:"order" validate:"gte=0"`
	ConversionGoal  int              `json:"conversion_goal" validate:"gte=0,lte=100"`
	IsActive        bool             `json:"is_active"`
	AutomationRules []AutomationRule `json:"automation_rules,omitempty" validate:"dive"`
}

func (p *PipelineStage) CurrentStatus() Status { return activeStatus(p.IsActive) }
func (p *PipelineStage) SetStatus(s Status)    { p.IsActive = s == StatusActive }
