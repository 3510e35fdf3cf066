package authz

import (
	"net/http"
	"strconv"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/observability"
)

// ActorIDFunc extracts the authenticated actor's ID from a request. The
// second return is false when the request is unauthenticated.
type ActorIDFunc func(r *http.Request) (int64, bool)

// ResourceIDFunc extracts the target resource ID from a request, typically a
// mux path variable.
type ResourceIDFunc func(r *http.Request) (int64, error)

// Middleware gates HTTP handlers on evaluator verdicts
type Middleware struct {
	evaluator *Evaluator
	actorID   ActorIDFunc
}

// NewMiddleware creates authorization middleware
func NewMiddleware(evaluator *Evaluator, actorID ActorIDFunc) *Middleware {
	return &Middleware{evaluator: evaluator, actorID: actorID}
}

// Require wraps a handler so it only runs when the actor is authorized for
// the resource. required may be nil for the resource type's default set.
// Denials map to 403 with a generic body; lookup failures map to 503, never
// to an allow.
func (m *Middleware) Require(resourceType ResourceType, required RoleSet, resourceID ResourceIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := m.actorID(r)
			if !ok {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			id, err := resourceID(r)
			if err != nil {
				httputil.WriteValidationError(w, err.Error())
				return
			}

			verdict, err := m.evaluator.Authorize(r.Context(), actorID, resourceType, id, required)
			if err != nil {
				observability.FromContext(r.Context()).
					WithError(err).
					WithField("resource_type", string(resourceType)).
					WithField("resource_id", id).
					Error("authorization lookup failed")
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authorization unavailable")
				return
			}

			if !verdict.Allowed {
				// Reasons stay server-side; the response body is generic.
				observability.FromContext(r.Context()).
					WithField("resource_type", string(resourceType)).
					WithField("resource_id", id).
					WithField("actor_id", actorID).
					WithField("reason", verdict.Reason).
					Info("authorization denied")
				if err := audit.LogDenied(r.Context(), &actorID,
					audit.ResourceType(resourceType), strconv.FormatInt(id, 10), verdict.Reason); err != nil {
					observability.FromContext(r.Context()).
						WithError(err).
						Warn("failed to record denial")
				}
				httputil.WriteForbiddenError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
