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

// ProductHandlers handles product catalog HTTP requests
type ProductHandlers struct {
	store *storage.PostgresStore
	authz *authz.Middleware
	audit audit.Logger
}

// NewProductHandlers creates a new ProductHandlers
func NewProductHandlers(store *storage.PostgresStore, authzMW *authz.Middleware, auditLogger audit.Logger) *ProductHandlers {
	return &ProductHandlers{store: store, authz: authzMW, audit: auditLogger}
}

// RegisterRoutes registers product routes. Products have no owner field, so
// every route is a pure role check against the business.
func (h *ProductHandlers) RegisterRoutes(router *mux.Router) {
	read := h.authz.Require(authz.ResourceTypeBusiness, memberRoles(), pathID("id"))
	manage := h.authz.Require(authz.ResourceTypeBusiness, nil, pathID("id"))
	router.Handle("/businesses/{id}/products", read(http.HandlerFunc(h.ListProducts))).Methods("GET")
	router.Handle("/businesses/{id}/products", manage(http.HandlerFunc(h.CreateProduct))).Methods("POST")

	readOne := h.authz.Require(authz.ResourceTypeProduct, memberRoles(), pathID("product_id"))
	mutate := h.authz.Require(authz.ResourceTypeProduct, nil, pathID("product_id"))
	router.Handle("/products/{product_id}", readOne(http.HandlerFunc(h.GetProduct))).Methods("GET")
	router.Handle("/products/{product_id}", mutate(http.HandlerFunc(h.UpdateProduct))).Methods("PUT")
	router.Handle("/products/{product_id}", mutate(http.HandlerFunc(h.DeleteProduct))).Methods("DELETE")
}

// CreateProduct adds a product to a business's catalog
func (h *ProductHandlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req storage.CreateProductRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	product, err := h.store.CreateProduct(r.Context(), businessID, &req)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeProductCreate, &actorID, &businessID,
		audit.ResourceTypeProduct, product.SKU, "product created")
	httputil.WriteCreated(w, product)
}

// ListProducts lists a business's catalog
func (h *ProductHandlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	products, err := h.store.ListProducts(r.Context(), businessID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, products)
}

// GetProduct retrieves a product by ID
func (h *ProductHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), productID)
	if err == storage.ErrNotFound {
		httputil.WriteNotFoundError(w, "product not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, product)
}

// UpdateProduct applies a partial update to a product
func (h *ProductHandlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	var req storage.UpdateProductRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.UpdateProduct(r.Context(), productID, &req); err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteNotFoundError(w, "product not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeProductUpdate, &actorID, nil,
		audit.ResourceTypeProduct, strconv.FormatInt(productID, 10), "product updated")
	httputil.WriteNoContent(w)
}

// DeleteProduct removes a product from the catalog
func (h *ProductHandlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	if err := h.store.DeleteProduct(r.Context(), productID); err != nil {
		if err == storage.ErrNotFound {
			httputil.WriteNotFoundError(w, "product not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeProductDelete, &actorID, nil,
		audit.ResourceTypeProduct, strconv.FormatInt(productID, 10), "product deleted")
	httputil.WriteNoContent(w)
}
