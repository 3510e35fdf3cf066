package authz

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Role is a business-scoped role held through a membership
type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Valid reports whether the role is one of the closed set
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role string
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", errors.New("unknown role: " + value)
	}
	return role, nil
}

// RoleSet is a non-empty set of acceptable roles for an operation
type RoleSet map[Role]struct{}

// NewRoleSet builds a role set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether the role is a member of the set
func (s RoleSet) Contains(role Role) bool {
	_, ok := s[role]
	return ok
}

// String renders the set in stable order, e.g. "manager,owner"
func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// ResourceType identifies a business-scoped protected resource type
type ResourceType string

const (
	ResourceTypeBusiness ResourceType = "business"
	ResourceTypeOrder    ResourceType = "order"
	ResourceTypePayment  ResourceType = "payment"
	ResourceTypeProduct  ResourceType = "product"
	ResourceTypeInsight  ResourceType = "insight"
)

// HasOwner reports whether the resource type carries a resource-owner
// reference eligible for the ownership short-circuit. Orders and payments
// record the actor who created them; businesses and products are role-gated
// only.
func (rt ResourceType) HasOwner() bool {
	switch rt {
	case ResourceTypeOrder, ResourceTypePayment:
		return true
	}
	return false
}

// DefaultRequiredRoles returns the operation default role set for a resource
// type. Callers may override per operation; the evaluator falls back to this
// when no explicit set is given.
func DefaultRequiredRoles(rt ResourceType) RoleSet {
	switch rt {
	case ResourceTypeInsight:
		return NewRoleSet(RoleOwner, RoleManager, RoleEmployee)
	default:
		return NewRoleSet(RoleOwner, RoleManager)
	}
}

// Membership binds an actor to a business with a role. At most one
// membership exists per (actor, business) pair.
type Membership struct {
	ActorID    int64     `json:"actor_id"`
	BusinessID int64     `json:"business_id"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Resource is the evaluator's view of a protected resource: its type, the
// business that owns it, and optionally the actor who created it.
type Resource struct {
	ID         int64        `json:"id"`
	Type       ResourceType `json:"type"`
	BusinessID int64        `json:"business_id"`
	OwnerID    *int64       `json:"owner_id,omitempty"`
}

// Verdict is the outcome of a permission check. Denials are values, not
// errors; only datastore failures surface as errors.
type Verdict struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func allow(reason string) *Verdict {
	return &Verdict{Allowed: true, Reason: reason, CheckedAt: time.Now()}
}

func deny(reason string) *Verdict {
	return &Verdict{Allowed: false, Reason: reason, CheckedAt: time.Now()}
}

// ErrNotFound marks a missing membership or resource row. It is an expected
// outcome, distinct from a datastore failure.
var ErrNotFound = errors.New("authz: not found")
