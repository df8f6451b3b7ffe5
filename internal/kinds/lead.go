package kinds

import (
	"fmt"
	"strings"
	"time"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/lifecycle"
)

var leadStatuses = []domain.Status{
	domain.LeadNew, domain.LeadContacted, domain.LeadQualified, domain.LeadProposal,
	domain.LeadNegotiation, domain.LeadWon, domain.LeadLost,
}

var leadOpen = except(leadStatuses, domain.LeadWon, domain.LeadLost)

// StageMove is the payload of move_stage. The engine resolves the stage
// before the transition runs.
type StageMove struct {
	StageID   string
	StageName string
}

// Lead wires sales leads through the pipeline.
var Lead = lifecycle.Kind[domain.Lead, *domain.Lead]{
	Table: lifecycle.Table{
		Kind:     domain.KindLead,
		Initial:  domain.LeadNew,
		Statuses: leadStatuses,
		Actions: map[lifecycle.Action]lifecycle.Rule{
			AddActivity: {From: leadOpen},
			MoveStage:   {From: leadOpen},
			Contact:     {From: from(domain.LeadNew), To: domain.LeadContacted},
			Qualify:     {From: from(domain.LeadNew, domain.LeadContacted), To: domain.LeadQualified},
			Propose:     {From: from(domain.LeadQualified), To: domain.LeadProposal},
			Negotiate:   {From: from(domain.LeadProposal), To: domain.LeadNegotiation},
			Win:         {From: from(domain.LeadProposal, domain.LeadNegotiation), To: domain.LeadWon},
			Lose:        {From: leadOpen, To: domain.LeadLost},
			Recalculate: {},
		},
		Edit:   auth.Owner,
		Act:    auth.Owner,
		Delete: auth.Owner,
	},
	Validate: func(l *domain.Lead) error {
		return attributes(domain.KindLead, "custom_fields", l.CustomFields)
	},
	Require: map[lifecycle.Action]func(*domain.Lead, lifecycle.Input) error{
		AddActivity: func(_ *domain.Lead, in lifecycle.Input) error {
			a, err := payload[domain.Activity](domain.KindLead, in)
			if err != nil {
				return err
			}
			return lifecycle.Validate(domain.KindLead, a)
		},
		MoveStage: func(l *domain.Lead, in lifecycle.Input) error {
			m, err := payload[StageMove](domain.KindLead, in)
			if err != nil {
				return err
			}
			if strings.TrimSpace(m.StageID) == "" {
				return lifecycle.Invalid(domain.KindLead, "stage_id", "required")
			}
			if m.StageID == l.StageID {
				return lifecycle.Blocked(domain.KindLead, MoveStage, "lead is already in stage "+m.StageName)
			}
			return nil
		},
	},
	Effects: map[lifecycle.Action]func(*domain.Lead, lifecycle.Input) error{
		AddActivity: func(l *domain.Lead, in lifecycle.Input) error {
			a := in.Data.(domain.Activity)
			if a.Date.IsZero() {
				a.Date = in.Now
			}
			if a.CreatedBy == "" {
				a.CreatedBy = in.Actor.ID
			}
			prependActivity(l, a, in.Now)
			return nil
		},
		MoveStage: func(l *domain.Lead, in lifecycle.Input) error {
			m := in.Data.(StageMove)
			l.StageID = m.StageID
			prependActivity(l, domain.Activity{
				Type:        domain.ActivityNote,
				Description: "Moved to stage: " + m.StageName,
				Date:        in.Now,
				Completed:   true,
				CreatedBy:   in.Actor.ID,
			}, in.Now)
			return nil
		},
	},
	Derive: []lifecycle.Derivation[*domain.Lead]{
		{
			Name:  "last_activity",
			After: []lifecycle.Action{lifecycle.ActionCreate},
			Apply: func(l *domain.Lead, now time.Time) {
				if l.LastActivity.IsZero() {
					l.LastActivity = now
				}
			},
		},
		{
			Name: "score",
			Apply: func(l *domain.Lead, _ time.Time) {
				l.Score = derive.LeadScore(*l)
			},
		},
	},
}

func prependActivity(l *domain.Lead, a domain.Activity, now time.Time) {
	l.Activities = append([]domain.Activity{a}, l.Activities...)
	l.LastActivity = now
}

// PipelineStage wires sales stages. Deletion is refused while leads
// reference the stage; the engine supplies that check.
var PipelineStage = lifecycle.Kind[domain.PipelineStage, *domain.PipelineStage]{
	Table: lifecycle.Table{
		Kind:     domain.KindPipelineStage,
		Initial:  domain.StatusActive,
		Statuses: []domain.Status{domain.StatusActive, domain.StatusInactive},
		Actions: map[lifecycle.Action]lifecycle.Rule{
			Activate:   {From: from(domain.StatusInactive), To: domain.StatusActive},
			Deactivate: {From: from(domain.StatusActive), To: domain.StatusInactive},
		},
		Edit:   auth.Owner,
		Act:    auth.Owner,
		Delete: auth.Owner,
	},
	Validate: func(s *domain.PipelineStage) error {
		for i, r := range s.AutomationRules {
			if err := r.Params.Validate(); err != nil {
				return lifecycle.Invalid(domain.KindPipelineStage, fmt.Sprintf("automation_rules[%d].params", i), err.Error())
			}
		}
		return nil
	},
}
