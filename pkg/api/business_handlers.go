package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/middleware"
	"github.com/merchantry/merchantry/pkg/tenants"
)

// BusinessHandlers handles business and membership HTTP requests
type BusinessHandlers struct {
	service *tenants.PostgresService
	authz   *authz.Middleware
	audit   audit.Logger
}

// NewBusinessHandlers creates a new BusinessHandlers
func NewBusinessHandlers(service *tenants.PostgresService, authzMW *authz.Middleware, auditLogger audit.Logger) *BusinessHandlers {
	return &BusinessHandlers{service: service, authz: authzMW, audit: auditLogger}
}

// RegisterRoutes registers business routes
func (h *BusinessHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/businesses", h.CreateBusiness).Methods("POST")
	router.HandleFunc("/businesses", h.ListBusinesses).Methods("GET")

	read := h.authz.Require(authz.ResourceTypeBusiness, memberRoles(), pathID("id"))
	manage := h.authz.Require(authz.ResourceTypeBusiness, nil, pathID("id"))

	router.Handle("/businesses/{id}", read(http.HandlerFunc(h.GetBusiness))).Methods("GET")

	bizCtx := middleware.BusinessContextMiddleware(h.service)
	readResolved := h.authz.Require(authz.ResourceTypeBusiness, memberRoles(), contextBusinessID)
	router.Handle("/businesses/by-slug/{business_slug}",
		bizCtx(readResolved(http.HandlerFunc(h.GetBusinessBySlug)))).Methods("GET")

	router.Handle("/businesses/{id}", manage(http.HandlerFunc(h.UpdateBusiness))).Methods("PUT")
	router.Handle("/businesses/{id}", manage(http.HandlerFunc(h.DeleteBusiness))).Methods("DELETE")
	router.Handle("/businesses/{id}/suspend", manage(http.HandlerFunc(h.SuspendBusiness))).Methods("POST")

	// Members
	router.Handle("/businesses/{id}/members", read(http.HandlerFunc(h.ListMembers))).Methods("GET")
	router.Handle("/businesses/{id}/members", manage(http.HandlerFunc(h.AddMember))).Methods("POST")
	router.Handle("/businesses/{id}/members/{user_id}", manage(http.HandlerFunc(h.UpdateMember))).Methods("PUT")
	router.Handle("/businesses/{id}/members/{user_id}", manage(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")

	// Invitations
	router.Handle("/businesses/{id}/invitations", manage(http.HandlerFunc(h.CreateInvitation))).Methods("POST")
	router.Handle("/businesses/{id}/invitations", manage(http.HandlerFunc(h.ListInvitations))).Methods("GET")
	router.Handle("/businesses/{id}/invitations/{invitation_id}", manage(http.HandlerFunc(h.RevokeInvitation))).Methods("DELETE")
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")
}

// CreateBusinessRequest carries the fields accepted when creating a business
type CreateBusinessRequest struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Description string            `json:"description,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}

// CreateBusiness creates a new business owned by the caller
func (h *BusinessHandlers) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateBusinessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "business name is required")
		return
	}

	business := &tenants.Business{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		OwnerID:     &actorID,
		Settings:    req.Settings,
	}
	if err := h.service.CreateBusiness(r.Context(), business); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeBusinessCreate, &actorID, &business.ID,
		audit.ResourceTypeBusiness, business.Slug, "business created")
	httputil.WriteCreated(w, business)
}

// ListBusinesses lists the businesses the caller belongs to
func (h *BusinessHandlers) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	businesses, err := h.service.ListBusinesses(r.Context(), actorID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, businesses)
}

// GetBusiness retrieves a business by ID
func (h *BusinessHandlers) GetBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	business, err := h.service.GetBusiness(r.Context(), id)
	if err == tenants.ErrNotFound {
		httputil.WriteNotFoundError(w, "business not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, business)
}

// GetBusinessBySlug serves a business already resolved from its slug by the
// business context middleware.
func (h *BusinessHandlers) GetBusinessBySlug(w http.ResponseWriter, r *http.Request) {
	business := middleware.GetBusiness(r)
	if business == nil {
		httputil.WriteNotFoundError(w, "business not found")
		return
	}

	httputil.WriteSuccess(w, business)
}

// UpdateBusiness applies a partial update to a business
func (h *BusinessHandlers) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req tenants.UpdateBusinessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.UpdateBusiness(r.Context(), id, &req); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "business not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeBusinessUpdate, &actorID, &id,
		audit.ResourceTypeBusiness, "", "business updated")
	httputil.WriteNoContent(w)
}

// SuspendBusiness marks a business as suspended
func (h *BusinessHandlers) SuspendBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.SuspendBusiness(r.Context(), id); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "business not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeBusinessUpdate, &actorID, &id,
		audit.ResourceTypeBusiness, "", "business suspended")
	httputil.WriteNoContent(w)
}

// DeleteBusiness soft-deletes a business
func (h *BusinessHandlers) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteBusiness(r.Context(), id); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "business not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeBusinessDelete, &actorID, &id,
		audit.ResourceTypeBusiness, "", "business deleted")
	httputil.WriteNoContent(w)
}

// ListMembers lists a business's members
func (h *BusinessHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}

// AddMemberRequest carries the fields accepted when adding a member
type AddMemberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember adds a user to a business with a role
func (h *BusinessHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	actorID, _ := middleware.ActorID(r)
	if err := h.service.AddMember(r.Context(), id, req.UserID, role, &actorID); err != nil {
		httputil.WriteError(w, http.StatusConflict, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeMemberAdd, &actorID, &id,
		audit.ResourceTypeMember, "", "member added with role "+string(role))
	httputil.WriteCreated(w, map[string]interface{}{
		"business_id": id,
		"user_id":     req.UserID,
		"role":        role,
	})
}

// UpdateMemberRequest carries a member role change
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// UpdateMember changes a member's role
func (h *BusinessHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), id, userID, role); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "member not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeMemberRoleChange, &actorID, &id,
		audit.ResourceTypeMember, "", "member role changed to "+string(role))
	httputil.WriteNoContent(w)
}

// RemoveMember removes a user from a business
func (h *BusinessHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), id, userID); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "member not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actorID, _ := middleware.ActorID(r)
	h.audit.LogDataMutation(r.Context(), audit.EventTypeMemberRemove, &actorID, &id,
		audit.ResourceTypeMember, "", "member removed")
	httputil.WriteNoContent(w)
}

// CreateInvitationRequest carries the fields accepted when inviting
type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateInvitation invites an email address to join a business
func (h *BusinessHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteValidationError(w, "email is required")
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	actorID, _ := middleware.ActorID(r)
	invitation := &tenants.Invitation{
		BusinessID: id,
		Email:      req.Email,
		Role:       role,
		InvitedBy:  actorID,
	}
	if err := h.service.CreateInvitation(r.Context(), invitation); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeMemberInvite, &actorID, &id,
		audit.ResourceTypeMember, req.Email, "invitation created")
	httputil.WriteCreated(w, invitation)
}

// ListInvitations lists a business's pending invitations
func (h *BusinessHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	invitations, err := h.service.ListInvitations(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, invitations)
}

// RevokeInvitation revokes a pending invitation
func (h *BusinessHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.service.RevokeInvitation(r.Context(), invitationID); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "invitation not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AcceptInvitation lets the caller accept an invitation by token
func (h *BusinessHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	token := mux.Vars(r)["token"]
	if err := h.service.AcceptInvitation(r.Context(), token, actorID); err != nil {
		if err == tenants.ErrNotFound {
			httputil.WriteNotFoundError(w, "invitation not found")
			return
		}
		httputil.WriteError(w, http.StatusConflict, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"status": "accepted"})
}
