package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
)

// ErrSessionExpired is returned to every request once the refresh token is
// no longer accepted. A fresh login is required.
var ErrSessionExpired = fmt.Errorf("session expired: %w", apperrors.ErrUnauthorized)

const defaultRefreshTimeout = 15 * time.Second

var refreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authclient_refresh_total",
		Help: "Silent refresh attempts by outcome",
	},
	[]string{"outcome"},
)

// State of the coordinator.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "logged_out"
	}
}

// Transport is the network side the coordinator drives. *API implements it.
type Transport interface {
	Send(ctx context.Context, req *http.Request, token string) Result
	Refresh(ctx context.Context) (string, error)
}

// Coordinator attaches the current access token to requests and, when the
// server answers 401, refreshes it once no matter how many requests fail at
// the same time. Every parked request is retried exactly once.
type Coordinator struct {
	transport      Transport
	store          TokenStore
	logger         *slog.Logger
	refreshTimeout time.Duration

	mu         sync.Mutex
	token      string
	generation uint64
	state      State
	onLogout   func()
	// refreshGen is the generation the running refresh replaces.
	refreshGen uint64

	// inflight is keyed by the generation being replaced.
	inflight singleflight.Group
}

// NewCoordinator creates a coordinator in the Idle state with no token.
func NewCoordinator(transport Transport, store TokenStore, logger *slog.Logger) *Coordinator {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		transport:      transport,
		store:          store,
		logger:         logger,
		refreshTimeout: defaultRefreshTimeout,
	}
}

// SetRefreshTimeout bounds how long a single refresh may take.
func (c *Coordinator) SetRefreshTimeout(d time.Duration) {
	if d > 0 {
		c.refreshTimeout = d
	}
}

// OnLogout registers fn to run after a failed refresh moved the coordinator
// to LoggedOut. It is called without internal locks held.
func (c *Coordinator) OnLogout(fn func()) {
	c.mu.Lock()
	c.onLogout = fn
	c.mu.Unlock()
}

// Restore loads the persisted token. It reports whether one was found.
func (c *Coordinator) Restore() (bool, error) {
	token, err := c.store.Load()
	if err != nil {
		return false, fmt.Errorf("load access token: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.generation++
	if token != "" {
		c.state = StateIdle
	}
	return token != "", nil
}

// Reset installs a token from a fresh login and returns to Idle.
func (c *Coordinator) Reset(token string) error {
	c.mu.Lock()
	c.token = token
	c.generation++
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.store.Save(token); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	return nil
}

// Logout drops the token and refuses further requests until Reset.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	c.token = ""
	c.generation++
	c.state = StateLoggedOut
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear persisted access token", slog.String("error", err.Error()))
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the current access token.
func (c *Coordinator) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Do sends req with the current token. On ResultAuthExpired it waits for a
// refresh, starting one only when none is running and none finished since
// req was sent, and then retries once. A second 401 surfaces the first error.
func (c *Coordinator) Do(ctx context.Context, req *http.Request) Result {
	c.mu.Lock()
	if c.state == StateLoggedOut {
		c.mu.Unlock()
		return errorResult(ErrSessionExpired)
	}
	token, gen := c.token, c.generation
	c.mu.Unlock()

	first := c.transport.Send(ctx, req, token)
	if first.Kind != ResultAuthExpired {
		return first
	}

	fresh, err := c.awaitRefresh(ctx, gen)
	if err != nil {
		return errorResult(err)
	}

	retry := c.transport.Send(ctx, req, fresh)
	if retry.Kind == ResultAuthExpired {
		c.logger.WarnContext(ctx, "request rejected after refresh",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		return errorResult(first.Err)
	}
	return retry
}

func (c *Coordinator) awaitRefresh(ctx context.Context, gen uint64) (string, error) {
	c.mu.Lock()
	if c.state == StateLoggedOut {
		c.mu.Unlock()
		return "", ErrSessionExpired
	}
	if c.generation != gen {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.state = StateRefreshing
	c.refreshGen = gen
	// Registering under mu means the refresh cannot commit between the
	// generation check and the join.
	ch := c.inflight.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), gen)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context, gen uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	token, err := c.transport.Refresh(ctx)

	c.mu.Lock()
	if c.generation != gen {
		// A login or logout happened meanwhile; it wins.
		if c.state == StateRefreshing && c.refreshGen == gen {
			c.state = StateIdle
		}
		current, state := c.token, c.state
		c.mu.Unlock()
		if state == StateLoggedOut {
			return "", ErrSessionExpired
		}
		return current, nil
	}

	if err != nil {
		c.token = ""
		c.generation++
		c.state = StateLoggedOut
		hook := c.onLogout
		c.mu.Unlock()

		refreshTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("silent refresh failed, session ended", slog.String("error", err.Error()))
		if clearErr := c.store.Clear(); clearErr != nil {
			c.logger.Warn("failed to clear persisted access token", slog.String("error", clearErr.Error()))
		}
		if hook != nil {
			hook()
		}
		return "", errors.Join(ErrSessionExpired, err)
	}

	c.token = token
	c.generation++
	c.state = StateIdle
	c.mu.Unlock()

	refreshTotal.WithLabelValues("success").Inc()
	if saveErr := c.store.Save(token); saveErr != nil {
		c.logger.Warn("failed to persist refreshed access token", slog.String("error", saveErr.Error()))
	}
	return token, nil
}
