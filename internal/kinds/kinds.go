// Package kinds holds the wiring table for every lifecycle entity: its
// statuses, the actions legal from each, which derived values run after
// them, and who may perform them.
package kinds

import (
	"fmt"
	"slices"

	"crmline/internal/domain"
	"crmline/internal/lifecycle"
)

// Transition actions. Several kinds share a name.
const (
	Start          lifecycle.Action = "start"
	Hold           lifecycle.Action = "hold"
	Resume         lifecycle.Action = "resume"
	Resolve        lifecycle.Action = "resolve"
	Close          lifecycle.Action = "close"
	Reopen         lifecycle.Action = "reopen"
	SetStatus      lifecycle.Action = "set_status"
	Assign         lifecycle.Action = "assign"
	Comment        lifecycle.Action = "comment"
	CheckSLA       lifecycle.Action = "check_sla"
	Send           lifecycle.Action = "send"
	MarkPaid       lifecycle.Action = "mark_paid"
	MarkOverdue    lifecycle.Action = "mark_overdue"
	Cancel         lifecycle.Action = "cancel"
	Activate       lifecycle.Action = "activate"
	Deactivate     lifecycle.Action = "deactivate"
	RefreshActuals lifecycle.Action = "refresh_actuals"
	Approve        lifecycle.Action = "approve"
	Reject         lifecycle.Action = "reject"
	Pause          lifecycle.Action = "pause"
	Complete       lifecycle.Action = "complete"
	RecordMetrics  lifecycle.Action = "record_metrics"
	Schedule       lifecycle.Action = "schedule"
	Publish        lifecycle.Action = "publish"
	Archive        lifecycle.Action = "archive"
	Redraft        lifecycle.Action = "redraft"
	RecordAnalytic lifecycle.Action = "record_analytics"
	View           lifecycle.Action = "view"
	Feedback       lifecycle.Action = "feedback"
	AddActivity    lifecycle.Action = "add_activity"
	MoveStage      lifecycle.Action = "move_stage"
	Contact        lifecycle.Action = "contact"
	Qualify        lifecycle.Action = "qualify"
	Propose        lifecycle.Action = "propose"
	Negotiate      lifecycle.Action = "negotiate"
	Win            lifecycle.Action = "win"
	Lose           lifecycle.Action = "lose"
	Recalculate    lifecycle.Action = "recalculate"
	AddTransaction lifecycle.Action = "add_transaction"

	// AdvanceRecurrence moves a recurring expense to its next due date.
	AdvanceRecurrence lifecycle.Action = "advance_recurrence"
)

// PermExpenseApprove gates expense approval and rejection.
const PermExpenseApprove = "expense.approve"

func from(s ...domain.Status) []domain.Status { return s }

func except(all []domain.Status, drop ...domain.Status) []domain.Status {
	return slices.DeleteFunc(slices.Clone(all), func(s domain.Status) bool {
		return slices.Contains(drop, s)
	})
}

// payload extracts the action data as T.
func payload[T any](kind string, in lifecycle.Input) (T, error) {
	v, ok := in.Data.(T)
	if !ok {
		var zero T
		return zero, lifecycle.Invalid(kind, "data", fmt.Sprintf("%s expects %T", in.Action, zero))
	}
	return v, nil
}

func attributes(kind, field string, a domain.Attributes) error {
	if err := a.Validate(); err != nil {
		return lifecycle.Invalid(kind, field, err.Error())
	}
	return nil
}
