package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerConfig tunes a breaker. The breaker trips once at least
// MinRequests calls were seen in the current Interval and the share of
// failures reaches FailureRatio. It stays open for Timeout and then lets
// MaxRequests probes through.
type CircuitBreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the breaker settings used by the auth
// client.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "http_client_circuit_breaker_state",
		Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open).",
	},
	[]string{"name"},
)

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return -1
}

// CircuitBreakerClient fails fast with ErrCircuitOpen while the upstream
// keeps answering 5xx or cannot be reached.
type CircuitBreakerClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

// NewCircuitBreakerClient wraps client with a breaker configured by cfg.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &CircuitBreakerClient{client: client, breaker: breaker, name: cfg.Name}
}

// Do sends req through the breaker. A 5xx answer counts as a failure and
// comes back as the decoded *AppError. 4xx answers, including the 401 of an
// expired access token, are returned as responses and do not trip it.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, ParseResponseError(resp, c.name)
		}
		return resp, nil
	})
}

// Jar exposes the wrapped client's cookie jar.
func (c *CircuitBreakerClient) Jar() http.CookieJar {
	return c.client.Jar()
}

// State reports the breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
