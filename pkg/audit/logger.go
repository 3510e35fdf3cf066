package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/merchantry/merchantry/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// LogAuthorization records a permission decision
	LogAuthorization(ctx context.Context, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogDataMutation records a create/update/delete on a tenant resource
	LogDataMutation(ctx context.Context, eventType EventType, userID *int64, businessID *int64, resourceType ResourceType, resourceID string, message string) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// NewNoOpLogger returns a logger that discards every event
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

// noOpLogger discards every event
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (l *noOpLogger) LogAuthorization(ctx context.Context, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, businessID *int64, resourceType ResourceType, resourceID string, message string) error {
	return nil
}

func (l *noOpLogger) Close() error { return nil }

// newEvent builds an event with the request-scoped fields filled in
func newEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// LogDenied records an access denial through the context logger
func LogDenied(ctx context.Context, userID *int64, resourceType ResourceType, resourceID string, reason string) error {
	return FromContext(ctx).LogAuthorization(ctx, userID, resourceType, resourceID,
		EventStatusDenied, fmt.Sprintf("access denied: %s", reason))
}

// LogWebhookRejected records a failed callback signature check through the
// context logger.
func LogWebhookRejected(ctx context.Context, remoteAddr string, hasSignature bool) error {
	logger := FromContext(ctx)
	event := newEvent(ctx, EventTypeWebhookRejected, EventStatusDenied)
	event.ResourceType = ResourceTypeWebhook
	event.IPAddress = remoteAddr
	if hasSignature {
		event.Message = "signature verification failed"
	} else {
		event.Message = "signature missing"
	}
	return logger.Log(ctx, event)
}
