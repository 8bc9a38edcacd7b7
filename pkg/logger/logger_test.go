package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func withSpan(ctx context.Context, traceHex, spanHex string) context.Context {
	traceID, _ := trace.TraceIDFromHex(traceHex)
	spanID, _ := trace.SpanIDFromHex(spanHex)
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func logWith(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	WithContext(ctx, NewWithWriter("auth", "info", &buf)).Info("line")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestWithContext(t *testing.T) {
	const traceHex, spanHex = "abcdef1234567890abcdef1234567890", "1234567890abcdef"

	tests := []struct {
		name   string
		ctx    context.Context
		want   map[string]any
		absent []string
	}{
		{
			name:   "empty context",
			ctx:    context.Background(),
			want:   map[string]any{"service": "auth", "msg": "line"},
			absent: []string{"correlation_id", "subject_id", "role", "trace_id", "span_id"},
		},
		{
			name: "correlation id",
			ctx:  WithCorrelationID(context.Background(), "req-123"),
			want: map[string]any{"correlation_id": "req-123"},
		},
		{
			name: "subject and role",
			ctx:  WithSubject(context.Background(), "subj-789", "trainer"),
			want: map[string]any{"subject_id": "subj-789", "role": "trainer"},
		},
		{
			name:   "subject without role",
			ctx:    WithSubject(context.Background(), "subj-1", ""),
			want:   map[string]any{"subject_id": "subj-1"},
			absent: []string{"role"},
		},
		{
			name: "span",
			ctx:  withSpan(context.Background(), traceHex, spanHex),
			want: map[string]any{"trace_id": traceHex, "span_id": spanHex},
		},
		{
			name: "everything",
			ctx: WithSubject(
				WithCorrelationID(withSpan(context.Background(), traceHex, spanHex), "corr-all"),
				"subj-all", "admin"),
			want: map[string]any{
				"correlation_id": "corr-all",
				"subject_id":     "subj-all",
				"role":           "admin",
				"trace_id":       traceHex,
				"span_id":        spanHex,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := logWith(t, tt.ctx)
			for k, v := range tt.want {
				assert.Equal(t, v, out[k], k)
			}
			for _, k := range tt.absent {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	l := Discard()
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextAccessors(t *testing.T) {
	ctx := WithSubject(WithCorrelationID(context.Background(), "c-1"), "s-1", "learner")

	assert.Equal(t, "c-1", CorrelationIDFromContext(ctx))
	assert.Equal(t, "s-1", SubjectIDFromContext(ctx))
	assert.Equal(t, "learner", RoleFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("auth", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":     slog.LevelDebug,
		"INFO":      slog.LevelInfo,
		"warn":      slog.LevelWarn,
		" warning ": slog.LevelWarn,
		"error":     slog.LevelError,
		"bogus":     slog.LevelInfo,
		"":          slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
