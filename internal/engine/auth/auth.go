package auth

import (
	"fmt"
	"sort"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"

	// Wildcard grants every permission.
	Wildcard = "*"
)

// ForbiddenError indicates the actor lacks a permission or ownership.
type ForbiddenError struct {
	Permission string
	Reason     string
}

func (e ForbiddenError) Error() string {
	if e.Permission != "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	if e.Reason != "" {
		return e.Reason
	}
	return "forbidden"
}

// Policy is the coarse authorization predicate attached to an operation.
type Policy int

const (
	// PolicyOpen allows any authenticated actor.
	PolicyOpen Policy = iota
	// PolicyOwner allows the record owner and admins.
	PolicyOwner
	// PolicyAdmin allows admins only.
	PolicyAdmin
)

func (p Policy) String() string {
	switch p {
	case PolicyOwner:
		return "owner"
	case PolicyAdmin:
		return "admin"
	default:
		return "open"
	}
}

// Rule combines a policy with an optional named permission. When
// Permission is set it replaces the policy check.
type Rule struct {
	Policy     Policy
	Permission string
}

var (
	Open  = Rule{Policy: PolicyOpen}
	Owner = Rule{Policy: PolicyOwner}
	Admin = Rule{Policy: PolicyAdmin}
)

// Permission builds a rule that requires perm.
func Permission(perm string) Rule { return Rule{Permission: perm} }

// Actor is the resolved caller of an operation.
type Actor struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// System is the actor used by batch automation.
var System = Actor{ID: "system", Role: RoleAdmin, Permissions: []string{Wildcard}}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin || a.Has(Wildcard) }

func (a Actor) Has(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm || p == Wildcard {
			return true
		}
	}
	return false
}

func (a Actor) IsOwner(ownerID string) bool { return a.ID != "" && a.ID == ownerID }

// CanEdit reports whether the actor satisfies r for a record owned by ownerID.
func (a Actor) CanEdit(r Rule, ownerID string) bool {
	if a.ID == "" {
		return false
	}
	if r.Permission != "" {
		return a.IsAdmin() || a.Has(r.Permission)
	}
	switch r.Policy {
	case PolicyAdmin:
		return a.IsAdmin()
	case PolicyOwner:
		return a.IsAdmin() || a.IsOwner(ownerID)
	default:
		return true
	}
}

// Check is CanEdit returning a ForbiddenError.
func (a Actor) Check(r Rule, ownerID string) error {
	if a.CanEdit(r, ownerID) {
		return nil
	}
	if r.Permission != "" {
		return ForbiddenError{Permission: r.Permission}
	}
	if r.Policy == PolicyAdmin {
		return ForbiddenError{Reason: "admin role required"}
	}
	return ForbiddenError{Reason: "only the owner or an admin may do this"}
}

// Service resolves role permissions from the configured role table.
type Service struct {
	Roles map[string][]string
}

// PermissionsFor returns the sorted permission set granted to role.
func (s Service) PermissionsFor(role string) []string {
	perms := append([]string(nil), s.Roles[role]...)
	sort.Strings(perms)
	return perms
}

// ActorFor builds the actor for a user id and role.
func (s Service) ActorFor(id, role string) Actor {
	return Actor{ID: id, Role: role, Permissions: s.PermissionsFor(role)}
}

// ActorForUser is ActorFor carrying the user's email.
func (s Service) ActorForUser(id, email, role string) Actor {
	a := s.ActorFor(id, role)
	a.Email = email
	return a
}

// Require fails unless the actor holds perm.
func Require(a Actor, perm string) error {
	if a.IsAdmin() || a.Has(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
