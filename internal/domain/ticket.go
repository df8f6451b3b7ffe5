package domain

import "time"

const (
	TicketOpen       Status = "open"
	TicketInProgress Status = "in_progress"
	TicketOnHold     Status = "on_hold"
	TicketResolved   Status = "resolved"
	TicketClosed     Status = "closed"
)

type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

type TicketCategory string

const (
	TicketTechnicalIssue TicketCategory = "technical_issue"
	TicketServiceRequest TicketCategory = "service_request"
	TicketAccountAccess  TicketCategory = "account_access"
	TicketSecurity       TicketCategory = "security"
	TicketNetwork        TicketCategory = "network"
	TicketSoftware       TicketCategory = "software"
	TicketHardware       TicketCategory = "hardware"
	TicketOther          TicketCategory = "other"
)

// Requester is the person who raised the ticket.
type Requester struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// Comment is an immutable entry in a ticket's history.
type Comment struct {
	Text       string    `json:"text"`
	CreatedBy  string    `json:"created_by,omitempty"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// SLA holds response and resolution targets in hours and the deadlines
// derived from them.
type SLA struct {
	ResponseTime       int       `json:"response_time" validate:"gte=0"`
	ResolutionTime     int       `json:"resolution_time" validate:"gte=0"`
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	IsBreached         bool      `json:"is_breached"`
}

type Ticket struct {
	Record
	TicketNumber      string         `json:"ticket_number"`
	Title             string         `json:"title" validate:"required"`
	Description       string         `json:"description" validate:"required"`
	Status            Status         `json:"status"`
	Priority          TicketPriority `json:"priority" validate:"required,oneof=low medium high critical"`
	Category          TicketCategory `json:"category" validate:"required,oneof=technical_issue service_request account_access security network software hardware other"`
	Requester         Requester      `json:"requester"`
	AssignedTo        string         `json:"assigned_to,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	Attributes        Attributes     `json:"attributes,omitempty"`
	Comments          []Comment      `json:"comments"`
	SLA               SLA            `json:"sla"`
	FirstResponseTime *time.Time     `json:"first_response_time,omitempty"`
	ResolutionTime    *time.Time     `json:"resolution_time,omitempty"`
}

func (t *Ticket) CurrentStatus() Status { return t.Status }
func (t *Ticket) SetStatus(s Status)    { t.Status = s }
