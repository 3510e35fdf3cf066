package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/storage"
)

// InsightHandlers serves analytics summaries. Insights are readable by every
// role in the business, including employees.
type InsightHandlers struct {
	store *storage.PostgresStore
	authz *authz.Middleware
}

// NewInsightHandlers creates a new InsightHandlers
func NewInsightHandlers(store *storage.PostgresStore, authzMW *authz.Middleware) *InsightHandlers {
	return &InsightHandlers{store: store, authz: authzMW}
}

// RegisterRoutes registers insight routes
func (h *InsightHandlers) RegisterRoutes(router *mux.Router) {
	read := h.authz.Require(authz.ResourceTypeInsight, nil, pathID("id"))
	router.Handle("/businesses/{id}/insights/revenue", read(http.HandlerFunc(h.GetRevenueSummary))).Methods("GET")
}

// GetRevenueSummary returns aggregated order and payment totals
func (h *InsightHandlers) GetRevenueSummary(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.store.RevenueSummary(r.Context(), businessID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, summary)
}
