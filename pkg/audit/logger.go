package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

// Logger is the interface for audit sinks
type Logger interface {
	// Log writes an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes buffered events and releases resources
	Close() error
}

// contextKey is the type for context keys
type contextKey string

const (
	// AuditLoggerKey is the context key for the audit logger
	AuditLoggerKey contextKey = "audit_logger"

	requestInfoKey contextKey = "audit_request_info"
)

// requestInfo is the request context copied into every event
type requestInfo struct {
	IPAddress string
	UserAgent string
	Method    string
	Path      string
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// WithRequest records request metadata for events logged under ctx
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey, requestInfo{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
	})
}

// NewEvent creates an event populated from the actor and request context
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, actor Actor) *Event {
	event := &Event{
		ID:             ids.NewLower(),
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		Status:         status,
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		ActorRole:      actor.Role,
		OrganizationID: actor.OrganizationID,
		RequestID:      observability.GetRequestID(ctx),
	}
	if info, ok := ctx.Value(requestInfoKey).(requestInfo); ok {
		event.IPAddress = info.IPAddress
		event.UserAgent = info.UserAgent
		event.Method = info.Method
		event.Path = info.Path
	}
	return event
}

// On sets the resource an event refers to
func (e *Event) On(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithMessage sets the event message
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithError records a failure reason
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// WithChanges records before/after values
func (e *Event) WithChanges(before, after map[string]interface{}) *Event {
	if len(before) == 0 && len(after) == 0 {
		return e
	}
	e.Changes = &ChangeDetails{Before: before, After: after}
	return e
}

// WithMetadata adds a metadata entry
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Emit writes an event and logs, rather than returns, any sink failure
func Emit(ctx context.Context, logger Logger, event *Event) {
	if logger == nil || event == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// noOpLogger discards events
type noOpLogger struct{}

// NoOp returns a logger that discards events
func NoOp() Logger {
	return noOpLogger{}
}

func (noOpLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (noOpLogger) Close() error {
	return nil
}

// SlogLogger writes events as structured log entries
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates a sink writing through logger. A nil logger uses the default.
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	if logger == nil {
		logger = observability.Default()
	}
	return &SlogLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event at info level, or warn for denials and failures
func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_id":      event.ID,
		"event_type":    string(event.EventType),
		"status":        string(event.Status),
		"actor_id":      event.ActorID,
		"actor_role":    event.ActorRole,
		"org_id":        event.OrganizationID,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error_message"] = event.ErrorMessage
	}
	entry := l.logger.WithFields(fields)

	message := event.Message
	if message == "" {
		message = string(event.EventType)
	}
	if event.Status == EventStatusSuccess {
		entry.Info(message)
	} else {
		entry.Warn(message)
	}
	return nil
}

// Close is a no-op
// Name identifies the sink in multi-logger metrics
func (l *SlogLogger) Name() string { return "log" }

func (l *SlogLogger) Close() error {
	return nil
}
