package authz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resolver looks up the membership binding an actor to a business. Returns
// ErrNotFound when no membership exists; any other error is a datastore
// failure the caller must treat as "cannot verify".
type Resolver interface {
	Resolve(ctx context.Context, actorID, businessID int64) (*Membership, error)
}

// ResourceFinder looks up a protected resource with its owning business and
// optional resource owner populated. Returns ErrNotFound for unknown IDs.
type ResourceFinder interface {
	FindResource(ctx context.Context, resourceType ResourceType, resourceID int64) (*Resource, error)
}

// DecisionObserver receives evaluator outcomes for metrics
type DecisionObserver interface {
	ObserveAuthzDecision(resource string, allowed bool)
}

// Evaluator decides whether an actor may operate on a business-scoped
// resource. It is stateless apart from an optional membership cache and is
// safe for concurrent use.
type Evaluator struct {
	resolver  Resolver
	resources ResourceFinder
	cache     *membershipCache
	observer  DecisionObserver
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithCache enables an LRU membership cache of the given size. Entries
// expire after ttl; membership writes must call Invalidate synchronously,
// since a stale allow is a security defect.
func WithCache(size int, ttl time.Duration) Option {
	return func(e *Evaluator) {
		if size > 0 {
			e.cache = newMembershipCache(size, ttl)
		}
	}
}

// WithObserver wires decision metrics
func WithObserver(observer DecisionObserver) Option {
	return func(e *Evaluator) {
		e.observer = observer
	}
}

// NewEvaluator creates a permission evaluator
func NewEvaluator(resolver Resolver, resources ResourceFinder, opts ...Option) (*Evaluator, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if resources == nil {
		return nil, errors.New("resource finder is required")
	}
	e := &Evaluator{resolver: resolver, resources: resources}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Authorize decides whether the actor may perform an operation on the given
// resource. required may be nil to use the resource type's default role set.
//
// The decision order is fixed:
//  1. unknown resource -> deny (ownership of a missing row cannot be proven)
//  2. resource owner equals actor -> allow, regardless of membership
//  3. membership role member of required set -> allow
//  4. otherwise -> deny
//
// A non-nil error means the underlying lookup failed and no verdict could be
// produced; callers must treat that as a denial, never an allow.
func (e *Evaluator) Authorize(ctx context.Context, actorID int64, resourceType ResourceType, resourceID int64, required RoleSet) (*Verdict, error) {
	if len(required) == 0 {
		required = DefaultRequiredRoles(resourceType)
	}

	resource, err := e.resources.FindResource(ctx, resourceType, resourceID)
	if errors.Is(err, ErrNotFound) {
		return e.observed(resourceType, deny("resource not found")), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %d: %w", resourceType, resourceID, err)
	}

	if resourceType.HasOwner() && resource.OwnerID != nil && *resource.OwnerID == actorID {
		return e.observed(resourceType, allow("resource owner")), nil
	}

	ok, err := e.HasPermission(ctx, actorID, resource.BusinessID, required)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.observed(resourceType, allow("role in "+required.String())), nil
	}
	return e.observed(resourceType, deny("no qualifying membership")), nil
}

// HasPermission reports whether the actor holds a membership in the business
// whose role belongs to the allowed set. A missing membership is false, not
// an error.
func (e *Evaluator) HasPermission(ctx context.Context, actorID, businessID int64, allowed RoleSet) (bool, error) {
	role, found, err := e.membershipRole(ctx, actorID, businessID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return allowed.Contains(role), nil
}

// membershipRole resolves the actor's role, consulting the cache when
// enabled. Both present and absent memberships are cached; either way the
// entry is dropped synchronously on membership writes.
func (e *Evaluator) membershipRole(ctx context.Context, actorID, businessID int64) (Role, bool, error) {
	if e.cache != nil {
		if role, found, ok := e.cache.get(actorID, businessID); ok {
			return role, found, nil
		}
	}

	membership, err := e.resolver.Resolve(ctx, actorID, businessID)
	if errors.Is(err, ErrNotFound) {
		if e.cache != nil {
			e.cache.put(actorID, businessID, "", false)
		}
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve membership actor=%d business=%d: %w", actorID, businessID, err)
	}

	if e.cache != nil {
		e.cache.put(actorID, businessID, membership.Role, true)
	}
	return membership.Role, true, nil
}

// Invalidate drops the cached membership for one (actor, business) pair.
// Must be called synchronously from every membership write path.
func (e *Evaluator) Invalidate(actorID, businessID int64) {
	if e.cache != nil {
		e.cache.invalidate(actorID, businessID)
	}
}

// InvalidateBusiness drops every cached membership for a business, for bulk
// changes such as business suspension.
func (e *Evaluator) InvalidateBusiness(businessID int64) {
	if e.cache != nil {
		e.cache.invalidateBusiness(businessID)
	}
}

func (e *Evaluator) observed(rt ResourceType, v *Verdict) *Verdict {
	if e.observer != nil {
		e.observer.ObserveAuthzDecision(string(rt), v.Allowed)
	}
	return v
}
