package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levelNames[InfoLevel]
	}
	return levelNames[l]
}

func (l LogLevel) slog() slog.Level {
	if l < DebugLevel || l > ErrorLevel {
		return slog.LevelInfo
	}
	return slogLevels[l]
}

// ParseLogLevel converts a level name to a LogLevel, defaulting to InfoLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Logger writes JSON lines through slog. Derived loggers share the parent's handler.
type Logger struct {
	sl    *slog.Logger
	level LogLevel
}

// NewLogger returns a JSON logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	h := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slog()})
	return &Logger{sl: slog.New(h), level: level}
}

// Level reports the minimum level this logger emits
func (l *Logger) Level() LogLevel { return l.level }

func (l *Logger) with(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...), level: l.level}
}

// WithField returns a logger that adds key=value to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields returns a logger that adds every pair in fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError attaches err under "error". A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) emit(level LogLevel, msg string) {
	l.sl.Log(context.Background(), level.slog(), msg)
}

func (l *Logger) Debug(message string) { l.emit(DebugLevel, message) }
func (l *Logger) Info(message string)  { l.emit(InfoLevel, message) }
func (l *Logger) Warn(message string)  { l.emit(WarnLevel, message) }
func (l *Logger) Error(message string) { l.emit(ErrorLevel, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(DebugLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(InfoLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(WarnLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(ErrorLevel, fmt.Sprintf(format, args...))
}

type ctxKey int

const (
	loggerCtxKey ctxKey = iota
	requestIDCtxKey
	userIDCtxKey
	orgIDCtxKey
)

// scopedFields are copied from the context onto every FromContext logger, in order
var scopedFields = []struct {
	key   ctxKey
	field string
}{
	{requestIDCtxKey, "request_id"},
	{userIDCtxKey, "user_id"},
	{orgIDCtxKey, "org_id"},
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRequestID stores the request correlation ID on ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// GetRequestID returns the request correlation ID, or ""
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDCtxKey) }

// WithUserID stores the authenticated caller's user ID on ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// GetUserID returns the caller's user ID, or ""
func GetUserID(ctx context.Context) string { return stringValue(ctx, userIDCtxKey) }

// WithOrganizationID stores the caller's organization ID on ctx
func WithOrganizationID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDCtxKey, orgID)
}

// GetOrganizationID returns the caller's organization ID, or ""
func GetOrganizationID(ctx context.Context) string { return stringValue(ctx, orgIDCtxKey) }

var fallback atomic.Pointer[Logger]

func init() {
	fallback.Store(NewLogger(InfoLevel, os.Stdout))
}

// SetDefault replaces the logger used when a context carries none. nil is ignored.
func SetDefault(logger *Logger) {
	if logger != nil {
		fallback.Store(logger)
	}
}

// Default returns the process-wide fallback logger
func Default() *Logger { return fallback.Load() }

// WithLogger stores logger on ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// GetLogger returns the logger stored on ctx, or Default
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// FromContext returns GetLogger(ctx) tagged with the request, user and organization IDs on ctx
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	var args []any
	for _, f := range scopedFields {
		if v := stringValue(ctx, f.key); v != "" {
			args = append(args, f.field, v)
		}
	}
	if len(args) == 0 {
		return logger
	}
	return logger.with(args...)
}
