package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/contextkeys"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/tenants"
)

// BusinessContextMiddleware resolves the business named in the route and
// stores it in the request context. Routes may address a business by
// business_id or business_slug.
func BusinessContextMiddleware(service *tenants.PostgresService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			if idStr, ok := vars["business_id"]; ok {
				id, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					httputil.WriteValidationError(w, "invalid business ID")
					return
				}

				business, err := service.GetBusiness(r.Context(), id)
				if errors.Is(err, tenants.ErrNotFound) {
					httputil.WriteNotFoundError(w, "business not found")
					return
				}
				if err != nil {
					httputil.WriteInternalError(w, err)
					return
				}

				ctx := contextkeys.WithBusiness(r.Context(), business)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if slug, ok := vars["business_slug"]; ok {
				business, err := service.GetBusinessBySlug(r.Context(), slug)
				if errors.Is(err, tenants.ErrNotFound) {
					httputil.WriteNotFoundError(w, "business not found")
					return
				}
				if err != nil {
					httputil.WriteInternalError(w, err)
					return
				}

				ctx := contextkeys.WithBusiness(r.Context(), business)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetBusiness extracts the resolved business from the request context
func GetBusiness(r *http.Request) *tenants.Business {
	value := r.Context().Value(contextkeys.BusinessKey)
	if value == nil {
		return nil
	}
	business, ok := value.(*tenants.Business)
	if !ok {
		return nil
	}
	return business
}
