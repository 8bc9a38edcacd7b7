package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	subjectIDKey     contextKey = "subject_id"
	roleKey          contextKey = "role"
	loggerKey        contextKey = "logger"
)

// New creates a new structured logger with the given service name and level.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter creates a new structured logger writing to the given writer.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})

	return slog.New(handler).With(
		slog.String("service", serviceName),
	)
}

// ParseLevel maps a textual level to slog.Level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record. Used by tests and by
// library code constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from the context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSubject returns a new context carrying the authenticated subject id and
// role for logging.
func WithSubject(ctx context.Context, subjectID, role string) context.Context {
	ctx = context.WithValue(ctx, subjectIDKey, subjectID)
	if role != "" {
		ctx = context.WithValue(ctx, roleKey, role)
	}
	return ctx
}

// SubjectIDFromContext extracts the subject id stored by the logger package.
func SubjectIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(subjectIDKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext extracts the role stored by the logger package.
func RoleFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(roleKey).(string); ok {
		return r
	}
	return ""
}

// NewContext returns a new context with the given logger stored in it.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request-scoped logger stored in context.
// Returns slog.Default() if no logger is stored.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns a logger with context-derived fields (correlation_id,
// subject_id, role, trace_id, span_id).
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.With(slog.String("correlation_id", id))
	}

	if id := SubjectIDFromContext(ctx); id != "" {
		l = l.With(slog.String("subject_id", id))
	}
	if role := RoleFromContext(ctx); role != "" {
		l = l.With(slog.String("role", role))
	}

	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		l = l.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return l
}
