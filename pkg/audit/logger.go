package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/itellico/mono-access/pkg/access"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// contextKey is the type for context keys
type contextKey string

const (
	// AuditLoggerKey is the context key for the audit logger
	AuditLoggerKey contextKey = "audit_logger"
)

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// NewNoopLogger returns a logger that discards every event
func NewNoopLogger() Logger {
	return &noOpLogger{}
}

// newBaseEvent creates an audit event with common fields populated
func newBaseEvent(eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// DecisionEvent builds the audit event for one access decision. The
// pattern field carries the grant that matched on allow, or the
// fully-qualified permission that was missing on deny. evalErr is the
// internal error on an error-path denial and is recorded verbatim; it
// is never shown to the caller.
func DecisionEvent(actx access.Context, result access.Result, scope access.Scope, pattern string, duration time.Duration, evalErr error) *AuditEvent {
	status := EventStatusDenied
	if result.Allowed {
		status = EventStatusAllowed
	}
	if evalErr != nil {
		status = EventStatusError
	}

	event := newBaseEvent(EventTypeAccessCheck, status)
	if result.UserID != 0 {
		uid := result.UserID
		event.UserID = &uid
	}
	event.TenantID = result.TenantID
	event.Roles = result.Roles
	event.Action = actx.Action
	event.Resource = actx.Resource
	event.ResourceID = actx.ResourceID
	event.Scope = string(scope)
	event.Pattern = pattern
	event.Reason = result.Reason
	event.Bypass = result.IsSuperAdminBypass
	event.ReadOnly = result.IsReadOnly
	event.DurationMS = duration.Milliseconds()
	if evalErr != nil {
		event.ErrorMessage = evalErr.Error()
	}
	for k, v := range actx.Metadata {
		event.Metadata[k] = v
	}
	return event
}

// MutationEvent builds the audit event for a grant or role mutation
// performed through the admin surface.
func MutationEvent(eventType EventType, actorID *int64, tenantID *int64, pattern, message string) *AuditEvent {
	event := newBaseEvent(eventType, EventStatusSuccess)
	event.UserID = actorID
	event.TenantID = tenantID
	event.Pattern = pattern
	event.Message = message
	return event
}
