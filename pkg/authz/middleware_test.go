package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/merchantry/merchantry/pkg/audit"
)

type recordingAudit struct {
	events []*audit.Event
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) LogAuthorization(ctx context.Context, userID *int64, resourceType audit.ResourceType, resourceID string, status audit.EventStatus, message string) error {
	eventType := audit.EventTypeAuthzPermissionCheck
	if status == audit.EventStatusDenied {
		eventType = audit.EventTypeAuthzAccessDenied
	}
	r.events = append(r.events, &audit.Event{
		EventType:    eventType,
		Status:       status,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Message:      message,
	})
	return nil
}

func (r *recordingAudit) LogDataMutation(ctx context.Context, eventType audit.EventType, userID *int64, businessID *int64, resourceType audit.ResourceType, resourceID string, message string) error {
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func newDenyingMiddleware(t *testing.T) *Middleware {
	t.Helper()
	resolver := &fakeResolver{memberships: map[cacheKey]Role{
		{actorID: 7, businessID: 1}: RoleEmployee,
	}}
	finder := &fakeFinder{resources: map[int64]*Resource{
		1: {ID: 1, Type: ResourceTypeBusiness, BusinessID: 1},
	}}
	evaluator, err := NewEvaluator(resolver, finder)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	return NewMiddleware(evaluator, func(r *http.Request) (int64, bool) {
		return 7, true
	})
}

func requireHandler(m *Middleware, required RoleSet) http.Handler {
	gate := m.Require(ResourceTypeBusiness, required, func(r *http.Request) (int64, error) {
		return 1, nil
	})
	return gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareDenialRecordsAuditEvent(t *testing.T) {
	m := newDenyingMiddleware(t)
	recorder := &recordingAudit{}

	// Employee hitting a manage-only gate.
	req := httptest.NewRequest("PUT", "/businesses/1", nil)
	req = req.WithContext(audit.WithLogger(req.Context(), recorder))
	rec := httptest.NewRecorder()
	requireHandler(m, NewRoleSet(RoleOwner, RoleManager)).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.EventType != audit.EventTypeAuthzAccessDenied {
		t.Errorf("event type = %q, want %q", event.EventType, audit.EventTypeAuthzAccessDenied)
	}
	if event.UserID == nil || *event.UserID != 7 {
		t.Errorf("event user ID = %v, want 7", event.UserID)
	}
	if event.ResourceType != audit.ResourceTypeBusiness {
		t.Errorf("event resource type = %q, want %q", event.ResourceType, audit.ResourceTypeBusiness)
	}
	if event.ResourceID != "1" {
		t.Errorf("event resource ID = %q, want %q", event.ResourceID, "1")
	}
}

func TestMiddlewareAllowRecordsNothing(t *testing.T) {
	m := newDenyingMiddleware(t)
	recorder := &recordingAudit{}

	req := httptest.NewRequest("GET", "/businesses/1", nil)
	req = req.WithContext(audit.WithLogger(req.Context(), recorder))
	rec := httptest.NewRecorder()
	requireHandler(m, NewRoleSet(RoleOwner, RoleManager, RoleEmployee)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(recorder.events) != 0 {
		t.Errorf("expected no audit events on allow, got %d", len(recorder.events))
	}
}
