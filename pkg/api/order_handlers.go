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

// OrderHandlers handles order HTTP requests
type OrderHandlers struct {
	store *storage.PostgresStore
	authz *authz.Middleware
	audit audit.Logger
}

// NewOrderHandlers creates a new OrderHandlers
func NewOrderHandlers(store *storage.PostgresStore, authzMW *authz.Middleware, auditLogger audit.Logger) *OrderHandlers {
	return &OrderHandlers{store: store, authz: authzMW, audit: auditLogger}
}

// RegisterRoutes registers order routes. Routes addressed by order ID run
// the order's owner short-circuit: the customer who placed the order passes
// without a membership lookup.
func (h *OrderHandlers) RegisterRoutes(router *mux.Router) {
	listOrCreate := h.authz.Require(authz.ResourceTypeBusiness, memberRoles(), pathID("id"))
	router.Handle("/businesses/{id}/orders", listOrCreate(http.HandlerFunc(h.ListOrders))).Methods("GET")
	router.Handle("/businesses/{id}/orders", listOrCreate(http.HandlerFunc(h.CreateOrder))).Methods("POST")

	read := h.authz.Require(authz.ResourceTypeOrder, memberRoles(), pathID("order_id"))
	mutate := h.authz.Require(authz.ResourceTypeOrder, nil, pathID("order_id"))
	router.Handle("/orders/{order_id}", read(http.HandlerFunc(h.GetOrder))).Methods("GET")
	router.Handle("/orders/{order_id}/status", mutate(http.HandlerFunc(h.UpdateOrderStatus))).Methods("PUT")
	router.Handle("/orders/{order_id}", mutate(http.HandlerFunc(h.DeleteOrder))).Methods("DELETE")
}

// CreateOrder creates an order for a business
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req storage.CreateOrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	order, err := h.store.CreateOrder(r.Context(), businessID, &req)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeOrderCreate, &actorID, &businessID,
		audit.ResourceTypeOrder, strconv.FormatInt(order.ID, 10), "order created")
	httputil.WriteCreated(w, order)
}

// ListOrders lists a business's orders
func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	orders, err := h.store.ListOrders(r.Context(), businessID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, orders)
}

// GetOrder retrieves an order by ID
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParsePathInt64OrError(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err == storage.ErrNotFound {
		httputil.WriteNotFoundError(w, "order not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, order)
}

// UpdateOrderStatusRequest carries an order status transition
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus transitions an order's status
func (h *OrderHandlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParsePathInt64OrError(w, r, "order_id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	status := storage.OrderStatus(req.Status)
	if err := h.store.UpdateOrderStatus(r.Context(), orderID, status); err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteNotFoundError(w, "order not found")
			return
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeOrderUpdate, &actorID, nil,
		audit.ResourceTypeOrder, strconv.FormatInt(orderID, 10), "order status set to "+req.Status)
	httputil.WriteNoContent(w)
}

// DeleteOrder removes an order
func (h *OrderHandlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParsePathInt64OrError(w, r, "order_id")
	if !ok {
		return
	}

	if err := h.store.DeleteOrder(r.Context(), orderID); err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteNotFoundError(w, "order not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeOrderDelete, &actorID, nil,
		audit.ResourceTypeOrder, strconv.FormatInt(orderID, 10), "order deleted")
	httputil.WriteNoContent(w)
}
