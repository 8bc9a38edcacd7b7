package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int

	// Jar stores cookies between calls (the refresh cookie lives here).
	Jar http.CookieJar
	// Transport overrides the pooled default transport when set.
	Transport http.RoundTripper
}

// DefaultConfig retries three times between 1s and 5s.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Client wraps http.Client with retry logic and better defaults.
// Only idempotent requests are retried; a POST is sent exactly once.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New builds a Client on a pooled transport unless cfg.Transport is set.
func New(cfg Config) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
			MaxConnsPerHost:       cfg.MaxConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			Jar:       cfg.Jar,
		},
		config: cfg,
	}
}

// Jar returns the cookie jar, or nil when none was configured.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// Do sends req, retrying network errors and 5xx answers (501 excepted) with
// capped exponential backoff. Non-idempotent methods get exactly one attempt.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	retries := c.config.MaxRetries
	if !isIdempotent(req.Method) {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		last := attempt >= retries || ctx.Err() != nil

		switch {
		case err != nil && (last || !isRetryableError(err)):
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		case err == nil && (last || !retryableStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		select {
		case <-time.After(addJitter(c.backoff(attempt))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if req, err = rewind(req); err != nil {
			return nil, err
		}
	}
}

// backoff is RetryWaitMin doubled per attempt, capped at RetryWaitMax.
func (c *Client) backoff(attempt int) time.Duration {
	return min(c.config.RetryWaitMin<<attempt, c.config.RetryWaitMax)
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// rewind returns a copy of req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	next := req.Clone(req.Context())
	next.Body = body
	return next, nil
}

// addJitter spreads d by ±25% so synchronized clients do not retry in lockstep.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.25
	return d + time.Duration(spread*(2*rand.Float64()-1)) // #nosec G404 -- non-cryptographic jitter
}

// isRetryableError reports transport failures (dial, reset, timeout).
func isRetryableError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
