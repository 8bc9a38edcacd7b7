package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, hf http.HandlerFunc) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	hf.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func ok(context.Context) error { return nil }

func TestLiveness(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", func(context.Context) error { return errors.New("down") })

	code, resp := probe(t, h.LivenessHandler())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadiness(t *testing.T) {
	refused := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		setup    func(h *Handler)
		wantCode int
		want     Status
	}{
		{
			name:     "no dependencies",
			setup:    func(*Handler) {},
			wantCode: http.StatusOK,
			want:     StatusUp,
		},
		{
			name: "all up",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterCritical("redis", ok)
				h.RegisterNonCritical("kafka", ok)
			},
			wantCode: http.StatusOK,
			want:     StatusUp,
		},
		{
			name: "broker down degrades",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterNonCritical("kafka", refused)
			},
			wantCode: http.StatusOK,
			want:     StatusDegraded,
		},
		{
			name: "registry down",
			setup: func(h *Handler) {
				h.RegisterCritical("postgres", ok)
				h.RegisterCritical("redis", refused)
				h.RegisterNonCritical("kafka", refused)
			},
			wantCode: http.StatusServiceUnavailable,
			want:     StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			tt.setup(h)

			code, resp := probe(t, h.ReadinessHandler())

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestReadiness_ReportsEachCheck(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", ok)
	h.RegisterNonCritical("kafka", func(context.Context) error { return errors.New("no brokers") })

	_, resp := probe(t, h.ReadinessHandler())

	require.Len(t, resp.Checks, 2)
	assert.Equal(t, CheckResult{Status: StatusUp, Critical: true}, resp.Checks["postgres"])
	assert.Equal(t, CheckResult{Status: StatusDown, Error: "no brokers"}, resp.Checks["kafka"])
}

func TestReadiness_ChecksRunConcurrently(t *testing.T) {
	h := NewHandler()
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.RegisterCritical("postgres", slow)
	h.RegisterCritical("redis", slow)
	h.RegisterNonCritical("kafka", slow)

	start := time.Now()
	code, _ := probe(t, h.ReadinessHandler())

	assert.Equal(t, http.StatusOK, code)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestReadiness_ReRegisterReplaces(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", func(context.Context) error { return errors.New("down") })
	h.RegisterNonCritical("redis", ok)

	code, resp := probe(t, h.ReadinessHandler())

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Checks["redis"].Critical)
}
