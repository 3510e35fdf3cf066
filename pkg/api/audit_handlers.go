package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/httputil"
)

// AuditSearcher queries recorded audit events
type AuditSearcher interface {
	Search(ctx context.Context, businessID *int64, limit int) ([]*audit.Event, error)
}

// AuditHandlers exposes a business's audit trail to its managers
type AuditHandlers struct {
	searcher AuditSearcher
	authz    *authz.Middleware
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(searcher AuditSearcher, authzMW *authz.Middleware) *AuditHandlers {
	return &AuditHandlers{searcher: searcher, authz: authzMW}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	manage := h.authz.Require(authz.ResourceTypeBusiness, nil, pathID("id"))
	router.Handle("/businesses/{id}/audit", manage(http.HandlerFunc(h.ListEvents))).Methods("GET")
}

// ListEvents returns a business's recent audit events, newest first
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	limit := httputil.ParseQueryInt(r, "limit", 100)
	events, err := h.searcher.Search(r.Context(), &businessID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, events)
}
