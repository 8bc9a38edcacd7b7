// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

// Status of the service or of one dependency.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// probeTimeout bounds one readiness probe across all checks.
const probeTimeout = 5 * time.Second

// Response is the probe body.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type dependency struct {
	check    Checker
	critical bool
}

// Handler aggregates dependency checks. A failing critical dependency (the
// identity database, the refresh registry) makes the service unready; a
// failing non-critical one (the event broker) only degrades it.
type Handler struct {
	mu   sync.RWMutex
	deps map[string]dependency
}

// NewHandler creates a handler with no registered dependencies.
func NewHandler() *Handler {
	return &Handler{deps: make(map[string]dependency)}
}

// RegisterCritical adds a dependency whose failure makes the service unready.
func (h *Handler) RegisterCritical(name string, check Checker) {
	h.add(name, dependency{check: check, critical: true})
}

// RegisterNonCritical adds a dependency whose failure only degrades the service.
func (h *Handler) RegisterNonCritical(name string, check Checker) {
	h.add(name, dependency{check: check})
}

func (h *Handler) add(name string, d dependency) {
	h.mu.Lock()
	h.deps[name] = d
	h.mu.Unlock()
}

// LivenessHandler answers 200 while the process serves HTTP.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs all checks concurrently. It answers 503 when a
// critical check fails and 200 otherwise.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		checks := h.run(ctx)
		overall := summarize(checks)

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		write(w, code, Response{Status: overall, Timestamp: time.Now().UTC(), Checks: checks})
	}
}

func (h *Handler) run(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	deps := maps.Clone(h.deps)
	h.mu.RUnlock()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]CheckResult, len(deps))
	)
	for name, d := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := CheckResult{Status: StatusUp, Critical: d.critical}
			if err := d.check(ctx); err != nil {
				res.Status, res.Error = StatusDown, err.Error()
			}
			mu.Lock()
			out[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func summarize(checks map[string]CheckResult) Status {
	overall := StatusUp
	for _, res := range checks {
		if res.Status != StatusDown {
			continue
		}
		if res.Critical {
			return StatusDown
		}
		overall = StatusDegraded
	}
	return overall
}

func write(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
