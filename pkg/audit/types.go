package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate       EventType = "auth.token_create"
	EventTypeAuthTokenRevoke       EventType = "auth.token_revoke"
	EventTypeAuthTokenValidateFail EventType = "auth.token_validate_fail"

	// Authorization events
	EventTypeAuthzPermissionCheck EventType = "authz.permission_check"
	EventTypeAuthzAccessDenied    EventType = "authz.access_denied"
	EventTypeAuthzRoleChange      EventType = "authz.role_change"

	// Membership events
	EventTypeMemberAdd        EventType = "member.add"
	EventTypeMemberRemove     EventType = "member.remove"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberInvite     EventType = "member.invite"

	// Data mutation events
	EventTypeBusinessCreate EventType = "data.business_create"
	EventTypeBusinessUpdate EventType = "data.business_update"
	EventTypeBusinessDelete EventType = "data.business_delete"
	EventTypeOrderCreate    EventType = "data.order_create"
	EventTypeOrderUpdate    EventType = "data.order_update"
	EventTypeOrderDelete    EventType = "data.order_delete"
	EventTypePaymentCreate  EventType = "data.payment_create"
	EventTypePaymentUpdate  EventType = "data.payment_update"
	EventTypeProductCreate  EventType = "data.product_create"
	EventTypeProductUpdate  EventType = "data.product_update"
	EventTypeProductDelete  EventType = "data.product_delete"

	// Webhook events
	EventTypeWebhookVerified     EventType = "webhook.verified"
	EventTypeWebhookRejected     EventType = "webhook.rejected"
	EventTypeWebhookCallbackFail EventType = "webhook.callback_fail"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType names the entity an event concerns
type ResourceType string

const (
	ResourceTypeBusiness ResourceType = "business"
	ResourceTypeMember   ResourceType = "member"
	ResourceTypeOrder    ResourceType = "order"
	ResourceTypePayment  ResourceType = "payment"
	ResourceTypeProduct  ResourceType = "product"
	ResourceTypeToken    ResourceType = "token"
	ResourceTypeWebhook  ResourceType = "webhook"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID     *int64 `json:"user_id,omitempty"`
	BusinessID *int64 `json:"business_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
