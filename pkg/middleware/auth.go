package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/merchantry/merchantry/pkg/auth"
	"github.com/merchantry/merchantry/pkg/contextkeys"
	"github.com/merchantry/merchantry/pkg/httputil"
)

// AuthMiddleware provides bearer token authentication
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	optional     bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenManager *auth.TokenManager, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		authCtx := &auth.AuthContext{
			Token:  apiToken,
			Scopes: apiToken.Scopes,
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(apiToken.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ctx := r.Context().Value(contextkeys.AuthKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// ActorID extracts the authenticated user's ID from the request. Used as
// the actor source for authorization checks.
func ActorID(r *http.Request) (int64, bool) {
	authCtx := GetAuthContext(r)
	if authCtx == nil || authCtx.Token == nil {
		return 0, false
	}
	return authCtx.Token.UserID, true
}

// RequireScope creates middleware that checks for a specific token scope
func RequireScope(scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !authCtx.HasScope(scope) {
				httputil.WriteForbiddenError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
