package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a record. Each kind defines its own set.
type Status string

// Synthetic statuses for kinds that only carry an isActive flag.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Kind names used by the store, the event log and the wiring tables.
const (
	KindTicket           = "ticket"
	KindInvoice          = "invoice"
	KindBudget           = "budget"
	KindExpense          = "expense"
	KindCampaign         = "campaign"
	KindSocialPost       = "social_post"
	KindSocialAccount    = "social_account"
	KindKnowledgeArticle = "knowledge_article"
	KindLead             = "lead"
	KindPipelineStage    = "pipeline_stage"
	KindFinancialAccount = "financial_account"
	KindUser             = "user"
)

// Record carries identity and audit fields shared by every stored entity.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta exposes the embedded record to generic code.
func (r *Record) Meta() *Record { return r }

// Attributes is an open key-value map. Values are restricted to strings,
// numbers and booleans.
type Attributes map[string]any

// Validate reports the first key holding a value outside the allowed variants.
func (a Attributes) Validate() error {
	for k, v := range a {
		switch v.(type) {
		case string, bool, float64, float32, int, int64, int32, json.Number, nil:
		default:
			return fmt.Errorf("attribute %q has unsupported type %T", k, v)
		}
	}
	return nil
}

// Event is one row of the audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

func timePtr(t time.Time) *time.Time { return &t }

// Stamp returns a pointer to t, used for optional timestamps set once.
func Stamp(t time.Time) *time.Time { return timePtr(t.UTC()) }

// Entity is the pointer-side contract shared by stored lifecycle records.
type Entity[T any] interface {
	*T
	Meta() *Record
	CurrentStatus() Status
	SetStatus(Status)
}
