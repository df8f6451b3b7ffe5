package lifecycle

import (
	"slices"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
)

// Action names a mutation applied to a record.
type Action string

// Actions every kind supports outside its transition map.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Rule is one row of a transition table. An empty From admits every
// status. An empty To keeps the current status. Free rules take the target
// from the request, restricted to the table's statuses.
type Rule struct {
	From []domain.Status
	To   domain.Status
	Free bool
}

// Table is the declarative description of one entity kind.
type Table struct {
	Kind     string
	Initial  domain.Status
	Statuses []domain.Status
	Actions  map[Action]Rule

	// Reasons refines InvalidTransition messages for specific
	// (action, current status) pairs.
	Reasons map[Action]map[domain.Status]string

	Edit       auth.Rule
	Act        auth.Rule
	ActionAuth map[Action]auth.Rule
	Delete     auth.Rule

	// EditBlocked and DeleteBlocked list statuses that refuse update and
	// delete with PreconditionFailed.
	EditBlocked   []domain.Status
	DeleteBlocked []domain.Status
	// SoftDelete, when set, is the status a delete moves the record to
	// instead of removing it.
	SoftDelete domain.Status
}

// Has reports whether s belongs to the kind's status set.
func (t Table) Has(s domain.Status) bool { return slices.Contains(t.Statuses, s) }

// Next resolves the status reached by applying action from current.
func (t Table) Next(current domain.Status, action Action, target domain.Status) (domain.Status, error) {
	rule, ok := t.Actions[action]
	if !ok {
		return "", InvalidTransitionError{Kind: t.Kind, Status: current, Action: action, Reason: "unknown action"}
	}
	if len(rule.From) > 0 && !slices.Contains(rule.From, current) {
		return "", InvalidTransitionError{Kind: t.Kind, Status: current, Action: action, Reason: t.Reasons[action][current]}
	}
	if rule.Free {
		if target == "" {
			return "", Invalid(t.Kind, "status", "required")
		}
		if !t.Has(target) {
			return "", Invalid(t.Kind, "status", "unknown status "+string(target))
		}
		return target, nil
	}
	if rule.To == "" {
		return current, nil
	}
	return rule.To, nil
}

// AuthFor returns the authorization rule governing action.
func (t Table) AuthFor(action Action) auth.Rule {
	switch action {
	case ActionUpdate:
		return t.Edit
	case ActionDelete:
		return t.Delete
	}
	if r, ok := t.ActionAuth[action]; ok {
		return r
	}
	return t.Act
}

// ActionsFrom lists the actions legal from status, for display.
func (t Table) ActionsFrom(status domain.Status) []Action {
	var out []Action
	for a, r := range t.Actions {
		if len(r.From) == 0 || slices.Contains(r.From, status) {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}
