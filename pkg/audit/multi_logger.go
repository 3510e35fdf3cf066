package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans audit events out to multiple loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		return m.logAsync(ctx, event)
	}

	return m.logSync(ctx, event)
}

func (m *MultiLogger) logSync(ctx context.Context, event *Event) error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Keep logging to the remaining destinations
		}
	}

	return firstErr
}

func (m *MultiLogger) logAsync(ctx context.Context, event *Event) error {
	// The write outlives the request: detach from its cancellation while
	// keeping request-scoped values.
	writeCtx := context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(writeCtx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}

	return nil
}

// LogAuthorization records a permission decision
func (m *MultiLogger) LogAuthorization(ctx context.Context, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	eventType := EventTypeAuthzPermissionCheck
	if status == EventStatusDenied {
		eventType = EventTypeAuthzAccessDenied
	}

	event := newEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return m.Log(ctx, event)
}

// LogDataMutation records a create/update/delete on a tenant resource
func (m *MultiLogger) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, businessID *int64, resourceType ResourceType, resourceID string, message string) error {
	event := newEvent(ctx, eventType, EventStatusSuccess)
	event.UserID = userID
	event.BusinessID = businessID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return m.Log(ctx, event)
}

// Wait blocks until all async logging operations complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains any errors that occurred during async logging
func (m *MultiLogger) GetErrors() []error {
	var errors []error
	for {
		select {
		case err := <-m.errChan:
			errors = append(errors, err)
		default:
			return errors
		}
	}
}

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close logger: %w", err)
			}
		}
	}

	close(m.errChan)
	return firstErr
}
