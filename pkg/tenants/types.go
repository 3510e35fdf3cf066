package tenants

import (
	"time"

	"github.com/merchantry/merchantry/pkg/authz"
)

// BusinessStatus represents the lifecycle state of a business
type BusinessStatus string

const (
	BusinessStatusActive    BusinessStatus = "active"
	BusinessStatusSuspended BusinessStatus = "suspended"
	BusinessStatusDeleted   BusinessStatus = "deleted"
)

// Business is a tenant: the unit of isolation for members, orders,
// payments, products and insights.
type Business struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description,omitempty"`
	OwnerID     *int64            `json:"owner_id,omitempty"`
	Status      BusinessStatus    `json:"status"`
	IsActive    bool              `json:"is_active"`
	Settings    map[string]string `json:"settings,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Member is a user's membership in a business
type Member struct {
	ID         int64      `json:"id"`
	BusinessID int64      `json:"business_id"`
	UserID     int64      `json:"user_id"`
	Role       authz.Role `json:"role"`
	InvitedBy  *int64     `json:"invited_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Invitation is a pending offer to join a business with a role
type Invitation struct {
	ID         int64      `json:"id"`
	BusinessID int64      `json:"business_id"`
	Email      string     `json:"email"`
	Role       authz.Role `json:"role"`
	Token      string     `json:"token,omitempty"`
	InvitedBy  int64      `json:"invited_by"`
	InvitedAt  time.Time  `json:"invited_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy *int64     `json:"accepted_by,omitempty"`
}

// UpdateBusinessRequest carries the mutable business fields; nil means
// leave unchanged.
type UpdateBusinessRequest struct {
	DisplayName *string           `json:"display_name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}
