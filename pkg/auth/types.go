package auth

import "time"

// User represents a user account
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	GlobalRole  GlobalRole `json:"global_role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// GlobalRole is the coarse system-wide classification of a user, distinct
// from the business-scoped roles that drive authorization decisions.
type GlobalRole string

const (
	GlobalRoleUser  GlobalRole = "user"
	GlobalRoleOwner GlobalRole = "owner"
	GlobalRoleAdmin GlobalRole = "admin"
)

// Valid reports whether the global role is one of the closed set
func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalRoleUser, GlobalRoleOwner, GlobalRoleAdmin:
		return true
	}
	return false
}

// Scope represents API token scopes
type Scope string

const (
	ScopeBusinessRead  Scope = "business:read"
	ScopeBusinessWrite Scope = "business:write"
	ScopeOrderRead     Scope = "order:read"
	ScopeOrderWrite    Scope = "order:write"
	ScopePaymentRead   Scope = "payment:read"
	ScopePaymentWrite  Scope = "payment:write"
	ScopeProductRead   Scope = "product:read"
	ScopeProductWrite  Scope = "product:write"
	ScopeInsightRead   Scope = "insight:read"
	ScopeTokenCreate   Scope = "token:create"
	ScopeTokenRevoke   Scope = "token:revoke"
	ScopeAll           Scope = "*"
)

// APIToken represents an API token
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"` // Never expose hash
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Scopes       []Scope    `json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// AuthContext holds authenticated user information for a request
type AuthContext struct {
	User   *User
	Token  *APIToken
	Scopes []Scope
}

// HasScope checks if the context has a specific scope
func (ac *AuthContext) HasScope(scope Scope) bool {
	for _, s := range ac.Scopes {
		if s == ScopeAll {
			return true
		}
		if s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the authenticated user holds the admin global role
func (ac *AuthContext) IsAdmin() bool {
	return ac.User != nil && ac.User.GlobalRole == GlobalRoleAdmin
}
