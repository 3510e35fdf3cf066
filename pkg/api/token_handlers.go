package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/auth"
	"github.com/merchantry/merchantry/pkg/httputil"
	"github.com/merchantry/merchantry/pkg/middleware"
)

// TokenHandlers handles API token self-service requests
type TokenHandlers struct {
	tokens *auth.TokenManager
	audit  audit.Logger
}

// NewTokenHandlers creates a new TokenHandlers
func NewTokenHandlers(tokens *auth.TokenManager, auditLogger audit.Logger) *TokenHandlers {
	return &TokenHandlers{tokens: tokens, audit: auditLogger}
}

// RegisterRoutes registers token routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tokens", h.CreateToken).Methods("POST")
	router.HandleFunc("/tokens", h.ListTokens).Methods("GET")
	router.HandleFunc("/tokens/{token_id}", h.RevokeToken).Methods("DELETE")
}

// CreateTokenRequest carries the fields accepted when minting a token
type CreateTokenRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateTokenResponse returns the minted token. The plaintext token appears
// only here; at rest only its hash survives.
type CreateTokenResponse struct {
	Token    *auth.APIToken `json:"token"`
	TokenKey string         `json:"token_key"`
}

// CreateToken mints a new API token for the caller
func (h *TokenHandlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "token name is required")
		return
	}

	scopes := make([]auth.Scope, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		scopes = append(scopes, auth.Scope(s))
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), actorID, req.Name, req.Description, scopes, req.ExpiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeAuthTokenCreate, &actorID, nil,
		audit.ResourceTypeToken, strconv.FormatInt(token.ID, 10), "api token created")
	httputil.WriteCreated(w, &CreateTokenResponse{Token: token, TokenKey: plaintext})
}

// ListTokens lists the caller's tokens
func (h *TokenHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tokens, err := h.tokens.ListUserTokens(r.Context(), actorID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tokens)
}

// RevokeToken revokes one of the caller's tokens
func (h *TokenHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorID(r)
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), tokenID, actorID, "revoked via api"); err != nil {
		if err == auth.ErrTokenNotFound {
			httputil.WriteNotFoundError(w, "token not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit.LogDataMutation(r.Context(), audit.EventTypeAuthTokenRevoke, &actorID, nil,
		audit.ResourceTypeToken, strconv.FormatInt(tokenID, 10), "api token revoked")
	httputil.WriteNoContent(w)
}
