package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/middleware"
	"github.com/merchantry/merchantry/pkg/storage"
)

// PaymentHandlers handles payment HTTP requests
type PaymentHandlers struct {
	store *storage.PostgresStore
	authz *authz.Middleware
	audit audit.Logger
}

// NewPaymentHandlers creates a new PaymentHandlers
func NewPaymentHandlers(store *storage.PostgresStore, authzMW *authz.Middleware, auditLogger audit.Logger) *PaymentHandlers {
	return &PaymentHandlers{store: store, authz: authzMW, audit: auditLogger}
}

// RegisterRoutes registers payment routes. Reads addressed by payment ID run
// the payment's owner short-circuit for the user who initiated it.
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	listOrCreate := h.authz.Require(authz.ResourceTypeBusiness, nil, pathID("id"))
	list := h.authz.Require(authz.ResourceTypeBusiness, memberRoles(), pathID("id"))
	router.Handle("/businesses/{id}/payments", list(http.HandlerFunc(h.ListPayments))).Methods("GET")
	router.Handle("/businesses/{id}/payments", listOrCreate(http.HandlerFunc(h.CreatePayment))).Methods("POST")

	read := h.authz.Require(authz.ResourceTypePayment, memberRoles(), pathID("payment_id"))
	router.Handle("/payments/{payment_id}", read(http.HandlerFunc(h.GetPayment))).Methods("GET")
}

// CreatePayment records a payment attempt against a business
func (h *PaymentHandlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req storage.CreatePaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	actorID, _ := middleware.ActorID(r)
	payment, err := h.store.CreatePayment(r.Context(), businessID, &actorID, &req)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypePaymentCreate, &actorID, &businessID,
		audit.ResourceTypePayment, strconv.FormatInt(payment.ID, 10), "payment created")
	httputil.WriteCreated(w, payment)
}

// ListPayments lists a business's payments
func (h *PaymentHandlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.store.ListPayments(r.Context(), businessID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, payments)
}

// GetPayment retrieves a payment by ID
func (h *PaymentHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := httputil.ParsePathInt64OrError(w, r, "payment_id")
	if !ok {
		return
	}

	payment, err := h.store.GetPayment(r.Context(), paymentID)
	if err == storage.ErrNotFound {
		httputil.WriteNotFoundError(w, "payment not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, payment)
}
