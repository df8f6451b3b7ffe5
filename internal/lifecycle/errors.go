package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/store"
)

// ValidationError reports missing or malformed input, keyed by field path.
type ValidationError struct {
	Kind   string
	Fields map[string]string
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

// Invalid builds a single-field ValidationError.
func Invalid(kind, field, msg string) ValidationError {
	return ValidationError{Kind: kind, Fields: map[string]string{field: msg}}
}

// InvalidTransitionError reports an action that is not legal from the
// record's current status.
type InvalidTransitionError struct {
	Kind   string
	Status domain.Status
	Action Action
	Reason string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition: cannot %s from status %s", e.Kind, e.Action, e.Status)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// PreconditionError reports a legal action blocked by the record's data.
type PreconditionError struct {
	Kind   string
	Action Action
	Reason string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("%s %s blocked: %s", e.Kind, e.Action, e.Reason)
}

// Blocked builds a PreconditionError.
func Blocked(kind string, action Action, reason string) PreconditionError {
	return PreconditionError{Kind: kind, Action: action, Reason: reason}
}

// precondition wraps plain errors from precondition checks. Errors that
// already carry a caller-facing classification pass through unchanged.
func precondition(kind string, action Action, err error) error {
	switch Code(err) {
	case "":
		return nil
	case CodeInternal:
		return Blocked(kind, action, err.Error())
	}
	return err
}

// Error codes shared by the HTTP surface, metrics and automation reports.
const (
	CodeValidation   = "validation_error"
	CodeTransition   = "invalid_transition"
	CodePrecondition = "precondition_failed"
	CodeNotFound     = "not_found"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

// Code classifies err into the caller-visible taxonomy. It returns "" for
// a nil error.
func Code(err error) string {
	var (
		ve ValidationError
		te InvalidTransitionError
		pe PreconditionError
		fe auth.ForbiddenError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &te):
		return CodeTransition
	case errors.As(err, &pe):
		return CodePrecondition
	case errors.As(err, &fe):
		return CodeForbidden
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}
