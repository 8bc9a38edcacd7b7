package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff returns 1s, 2s, 4s... for attempt 0, 1, 2... spread by ±25%.
func retryBackoff(attempt int) time.Duration {
	attempt = max(attempt, 0)
	base := defaultRetryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- backoff jitter
	return base + jitter
}

var connErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"connect: connection",
	"dial tcp",
	"EOF",
	"connection timed out",
	"server closed the connection unexpectedly",
	"could not connect",
}

// isConnectionError reports whether err looks like a transient network
// failure rather than a SQL or constraint error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range connErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry runs op up to defaultRetryAttempts times, sleeping with backoff
// between attempts. It stops early when retryable(err) is false or ctx ends.
func withRetry(ctx context.Context, logger *slog.Logger, what string, retryable func(error) bool, op func() error) error {
	var err error
	for attempt := range defaultRetryAttempts {
		if err = op(); err == nil || !retryable(err) {
			return err
		}
		if attempt == defaultRetryAttempts-1 {
			break
		}

		wait := retryBackoff(attempt)
		if logger != nil {
			logger.Warn(what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", defaultRetryAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during retry: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, defaultRetryAttempts, err)
}

func always(error) bool { return true }
