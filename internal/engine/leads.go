package engine

import (
	"context"
	"slices"
	"strings"

	"crmline/internal/derive"
	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

const stageHasLeads = "Cannot delete stage with leads. Move leads to another stage first."

func (e Engine) Leads() Records[domain.Lead, *domain.Lead] {
	return records(e, kinds.Lead)
}

func (e Engine) Stages() Records[domain.PipelineStage, *domain.PipelineStage] {
	return records(e, kinds.PipelineStage)
}

// CreateLead enforces a unique email and normalises the phone number.
func (e Engine) CreateLead(ctx context.Context, actor auth.Actor, l *domain.Lead) (*domain.Lead, error) {
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	if l.Email != "" {
		n, err := e.Leads().coll().Count(ctx, store.Query{}, func(o *domain.Lead) bool { return o.Email == l.Email })
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, lifecycle.Invalid(domain.KindLead, "email", "Lead already exists")
		}
	}
	phone, err := e.normalizePhone(domain.KindLead, "phone", l.Phone)
	if err != nil {
		return nil, err
	}
	l.Phone = phone
	if l.StageID != "" {
		if err := e.checkStage(ctx, l.StageID); err != nil {
			return nil, err
		}
	}
	if l.Activities == nil {
		l.Activities = []domain.Activity{}
	}
	return e.Leads().Create(ctx, actor, l)
}

type LeadPatch struct {
	Name         *string            `json:"name,omitempty"`
	Company      *string            `json:"company,omitempty"`
	Phone        *string            `json:"phone,omitempty"`
	Source       *domain.LeadSource `json:"source,omitempty"`
	AssignedTo   *string            `json:"assigned_to,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	CustomFields domain.Attributes  `json:"custom_fields,omitempty"`
}

// UpdateLead edits profile fields. The score follows through derivation.
func (e Engine) UpdateLead(ctx context.Context, actor auth.Actor, id string, p LeadPatch) (*domain.Lead, error) {
	return e.Leads().Update(ctx, actor, id, func(l *domain.Lead) error {
		set(&l.Name, p.Name)
		set(&l.Company, p.Company)
		set(&l.Source, p.Source)
		set(&l.AssignedTo, p.AssignedTo)
		set(&l.Notes, p.Notes)
		if p.Phone != nil {
			phone, err := e.normalizePhone(domain.KindLead, "phone", *p.Phone)
			if err != nil {
				return err
			}
			l.Phone = phone
		}
		if p.CustomFields != nil {
			l.CustomFields = p.CustomFields
		}
		return nil
	})
}

func (e Engine) AddLeadActivity(ctx context.Context, actor auth.Actor, id string, a domain.Activity) (*domain.Lead, error) {
	return e.Leads().Do(ctx, actor, id, lifecycle.Request{Action: kinds.AddActivity, Data: a})
}

// MoveLeadStage moves the lead to an existing active stage.
func (e Engine) MoveLeadStage(ctx context.Context, actor auth.Actor, id, stageID string) (*domain.Lead, error) {
	move := kinds.StageMove{StageID: stageID}
	if st, err := e.Stages().Get(ctx, stageID); err == nil {
		move.StageName = st.Name
	}
	return e.Leads().Do(ctx, actor, id, lifecycle.Request{
		Action: kinds.MoveStage,
		Data:   move,
		Check:  func(ctx context.Context) error { return e.checkStage(ctx, stageID) },
	})
}

func (e Engine) checkStage(ctx context.Context, stageID string) error {
	st, err := e.Stages().Get(ctx, stageID)
	if err != nil {
		return refError(domain.KindLead, "stage_id", err)
	}
	if !st.IsActive {
		return lifecycle.Invalid(domain.KindLead, "stage_id", "stage is inactive")
	}
	return nil
}

func (e Engine) TransitionLead(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.Lead, error) {
	return e.Leads().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

func (e Engine) RecalculateLead(ctx context.Context, actor auth.Actor, id string) (*domain.Lead, error) {
	return e.Leads().Do(ctx, actor, id, lifecycle.Request{Action: kinds.Recalculate})
}

func (e Engine) DeleteLead(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Leads().Delete(ctx, actor, id, nil)
	return err
}

type LeadFilter struct {
	Status     []domain.Status
	Source     domain.LeadSource
	StageID    string
	AssignedTo string
	Search     string
	MinScore   int
	Limit      int
}

func (e Engine) ListLeads(ctx context.Context, f LeadFilter) ([]*domain.Lead, error) {
	return e.Leads().List(ctx, store.Query{Status: statusStrings(f.Status), Limit: f.Limit}, func(l *domain.Lead) bool {
		switch {
		case f.Source != "" && l.Source != f.Source:
			return false
		case f.StageID != "" && l.StageID != f.StageID:
			return false
		case f.AssignedTo != "" && l.AssignedTo != f.AssignedTo:
			return false
		case l.Score < f.MinScore:
			return false
		}
		if f.Search == "" {
			return true
		}
		return containsFold(l.Name, f.Search) || containsFold(l.Email, f.Search) || containsFold(l.Company, f.Search)
	})
}

// LeadsNeedingFollowUp lists open leads idle for the configured days,
// longest idle first.
func (e Engine) LeadsNeedingFollowUp(ctx context.Context) ([]*domain.Lead, error) {
	now, days := e.now(), e.Config.Automation.FollowUpDays
	leads, err := e.Leads().List(ctx, store.Query{}, func(l *domain.Lead) bool {
		return derive.NeedsFollowUp(*l, now, days)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(leads, func(a, b *domain.Lead) int { return a.LastActivity.Compare(b.LastActivity) })
	return leads, nil
}

func (e Engine) CreateStage(ctx context.Context, actor auth.Actor, s *domain.PipelineStage) (*domain.PipelineStage, error) {
	return e.Stages().Create(ctx, actor, s)
}

type StagePatch struct {
	Name            *string                 `json:"name,omitempty"`
	Description     *string                 `json:"description,omitempty"`
	Order           *int                    `json:"order,omitempty"`
	ConversionGoal  *int                    `json:"conversion_goal,omitempty"`
	AutomationRules []domain.AutomationRule `json:"automation_rules,omitempty"`
}

func (e Engine) UpdateStage(ctx context.Context, actor auth.Actor, id string, p StagePatch) (*domain.PipelineStage, error) {
	return e.Stages().Update(ctx, actor, id, func(s *domain.PipelineStage) error {
		set(&s.Name, p.Name)
		set(&s.Description, p.Description)
		set(&s.Order, p.Order)
		set(&s.ConversionGoal, p.ConversionGoal)
		if p.AutomationRules != nil {
			s.AutomationRules = p.AutomationRules
		}
		return nil
	})
}

func (e Engine) TransitionStage(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.PipelineStage, error) {
	return e.Stages().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

// DeleteStage refuses while any lead still references the stage.
func (e Engine) DeleteStage(ctx context.Context, actor auth.Actor, id string) error {
	_, err := e.Stages().Delete(ctx, actor, id, func(s *domain.PipelineStage) error {
		n, err := e.leadsInStage(ctx, s.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return lifecycle.Blocked(domain.KindPipelineStage, lifecycle.ActionDelete, stageHasLeads)
		}
		return nil
	})
	return err
}

// ListStages returns stages in pipeline order.
func (e Engine) ListStages(ctx context.Context, activeOnly bool) ([]*domain.PipelineStage, error) {
	q := store.Query{}
	if activeOnly {
		q.Status = []string{string(domain.StatusActive)}
	}
	return e.Stages().coll().Find(ctx, q, nil, func(a, b *domain.PipelineStage) int { return a.Order - b.Order })
}

// StageConversionRate compares the stage's lead count with the next
// active stage's.
func (e Engine) StageConversionRate(ctx context.Context, id string) (float64, error) {
	st, err := e.Stages().Get(ctx, id)
	if err != nil {
		return 0, err
	}
	stages, err := e.ListStages(ctx, true)
	if err != nil {
		return 0, err
	}
	next, ok := derive.NextStage(derefStages(stages), st.Order)
	if !ok {
		return 0, nil
	}
	current, err := e.leadsInStage(ctx, st.ID)
	if err != nil {
		return 0, err
	}
	following, err := e.leadsInStage(ctx, next.ID)
	if err != nil {
		return 0, err
	}
	return derive.ConversionRate(current, following), nil
}

func (e Engine) leadsInStage(ctx context.Context, stageID string) (int, error) {
	return e.Leads().coll().Count(ctx, store.Query{}, func(l *domain.Lead) bool { return l.StageID == stageID })
}

func derefStages(in []*domain.PipelineStage) []domain.PipelineStage {
	out := make([]domain.PipelineStage, 0, len(in))
	for _, s := range in {
		out = append(out, *s)
	}
	return out
}
