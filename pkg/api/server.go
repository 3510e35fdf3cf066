package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/auth"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/middleware"
	"github.com/merchantry/merchantry/pkg/observability"
	"github.com/merchantry/merchantry/pkg/storage"
	"github.com/merchantry/merchantry/pkg/tenants"
	"github.com/merchantry/merchantry/pkg/webhooks"
)

// Dependencies carries the collaborators the API server wires together.
// Gate, RateLimit, WebhookRateLimit, Metrics and Audit are optional.
type Dependencies struct {
	Evaluator        *authz.Evaluator
	Tenants          *tenants.PostgresService
	Store            *storage.PostgresStore
	Tokens           *auth.TokenManager
	Gate             *webhooks.Gate
	RateLimit        *middleware.RateLimitMiddleware
	WebhookRateLimit *middleware.DistributedRateLimitMiddleware
	Metrics          *observability.Metrics
	Audit            audit.Logger
	AuditSearch      AuditSearcher
	Logger           *logrus.Logger
}

// Server represents our API server
type Server struct {
	router *mux.Router
	deps   Dependencies
	authz  *authz.Middleware
	logger *logrus.Logger
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNoOpLogger()
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		authz:  authz.NewMiddleware(deps.Evaluator, middleware.ActorID),
		logger: deps.Logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.auditContext)
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.HTTPMiddleware)
	}

	// Payment provider callbacks authenticate with an HMAC signature, not a
	// bearer token, so they sit outside the authenticated subrouter.
	callbacks := s.router.PathPrefix("/webhooks").Subrouter()
	if s.deps.WebhookRateLimit != nil {
		callbacks.Use(s.deps.WebhookRateLimit.Handler)
	}
	if s.deps.Gate != nil {
		callbacks.Use(s.deps.Gate.Middleware)
	}
	callbacks.HandleFunc("/payments", s.handlePaymentCallback).Methods("POST")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	authMW := middleware.NewAuthMiddleware(s.deps.Tokens, false)
	v1.Use(authMW.Handler)
	if s.deps.RateLimit != nil {
		v1.Use(s.deps.RateLimit.Handler)
	}

	NewBusinessHandlers(s.deps.Tenants, s.authz, s.deps.Audit).RegisterRoutes(v1)
	NewOrderHandlers(s.deps.Store, s.authz, s.deps.Audit).RegisterRoutes(v1)
	NewPaymentHandlers(s.deps.Store, s.authz, s.deps.Audit).RegisterRoutes(v1)
	NewProductHandlers(s.deps.Store, s.authz, s.deps.Audit).RegisterRoutes(v1)
	NewInsightHandlers(s.deps.Store, s.authz).RegisterRoutes(v1)
	NewTokenHandlers(s.deps.Tokens, s.deps.Audit).RegisterRoutes(v1)
	if s.deps.AuditSearch != nil {
		NewAuditHandlers(s.deps.AuditSearch, s.authz).RegisterRoutes(v1)
	}
}

// auditContext makes the audit logger reachable from the authorization and
// webhook middlewares, which record denials through the request context.
func (s *Server) auditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), s.deps.Audit)))
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// handlePaymentCallback applies a verified provider event to the matching
// payment. The signature gate has already run by the time this handler does.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var event storage.ProviderEvent
	if !httputil.ParseJSONOrError(w, r, &event) {
		return
	}

	payment, err := s.deps.Store.ApplyProviderEvent(r.Context(), &event)
	if err == storage.ErrNotFound {
		// Unknown references are acknowledged so the provider stops retrying.
		s.logger.WithField("provider_ref", event.ProviderRef).Warn("callback for unknown payment reference")
		httputil.WriteSuccess(w, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to apply provider event")
		s.deps.Audit.Log(r.Context(), &audit.Event{
			EventType:    audit.EventTypeWebhookCallbackFail,
			Status:       audit.EventStatusFailure,
			ResourceType: audit.ResourceTypeWebhook,
			ResourceID:   event.EventID,
			ErrorMessage: err.Error(),
		})
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypePaymentUpdate, nil, &payment.BusinessID,
		audit.ResourceTypePayment, event.ProviderRef, "provider event applied")
	httputil.WriteSuccess(w, payment)
}

// pathID builds a ResourceIDFunc for a mux path variable
func pathID(key string) authz.ResourceIDFunc {
	return func(r *http.Request) (int64, error) {
		return httputil.ParsePathInt64(r, key)
	}
}

// contextBusinessID reads the business placed in the request context by the
// business context middleware.
func contextBusinessID(r *http.Request) (int64, error) {
	business := middleware.GetBusiness(r)
	if business == nil {
		return 0, errors.New("business not resolved")
	}
	return business.ID, nil
}

// memberRoles is the read set for business-scoped data: any member may view.
func memberRoles() authz.RoleSet {
	return authz.NewRoleSet(authz.RoleOwner, authz.RoleManager, authz.RoleEmployee)
}
