package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/httpclient"
)

// SessionState is a snapshot of the session.
type SessionState struct {
	User    *Identity
	Loading bool
	Err     string
}

// SessionManager owns the signed-in identity. Create one per device context
// and pass it explicitly; there is no package-level session.
type SessionManager struct {
	api    *API
	coord  *Coordinator
	logger *slog.Logger

	mu    sync.RWMutex
	state SessionState
}

// Config configures New.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	Breaker        httpclient.CircuitBreakerConfig
}

// DefaultConfig returns client defaults for the service at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        10 * time.Second,
		RefreshTimeout: defaultRefreshTimeout,
		Breaker:        httpclient.DefaultCircuitBreakerConfig("auth-client"),
	}
}

// New wires a session manager over a retrying, circuit-broken HTTP client
// with its own cookie jar.
func New(cfg Config, store TokenStore, logger *slog.Logger) (*SessionManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout
	httpCfg.Jar = jar
	doer := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cfg.Breaker, logger)

	api := NewAPI(cfg.BaseURL, doer, logger)
	coord := NewCoordinator(api, store, logger)
	coord.SetRefreshTimeout(cfg.RefreshTimeout)
	return NewSessionManager(api, coord, logger), nil
}

// NewSessionManager creates a manager and subscribes it to the
// coordinator's forced logout.
func NewSessionManager(api *API, coord *Coordinator, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &SessionManager{api: api, coord: coord, logger: logger}
	coord.OnLogout(m.clearUser)
	return m
}

// State returns a copy of the current state.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Coordinator exposes the coordinator for issuing authenticated requests.
func (m *SessionManager) Coordinator() *Coordinator {
	return m.coord
}

// Do sends an authenticated request through the coordinator.
func (m *SessionManager) Do(ctx context.Context, req *http.Request) Result {
	return m.coord.Do(ctx, req)
}

// Init resumes a persisted session. Any failure ends up signed out without
// surfacing an error.
func (m *SessionManager) Init(ctx context.Context) {
	m.setLoading()
	defer m.doneLoading()

	found, err := m.coord.Restore()
	if err != nil {
		m.logger.WarnContext(ctx, "failed to restore session", slog.String("error", err.Error()))
	}
	if !found {
		return
	}

	user, err := m.currentUser(ctx)
	if err != nil {
		m.logger.InfoContext(ctx, "persisted session rejected", slog.String("error", err.Error()))
		m.coord.Logout()
		m.clearUser()
		return
	}
	m.setUser(user)
}

// Login signs in with credentials.
func (m *SessionManager) Login(ctx context.Context, creds Credentials) error {
	m.setLoading()
	sess, err := m.api.Login(ctx, creds)
	return m.establish(sess, err)
}

// Signup registers and signs in.
func (m *SessionManager) Signup(ctx context.Context, data SignupData) error {
	m.setLoading()
	sess, err := m.api.Signup(ctx, data)
	return m.establish(sess, err)
}

// Logout revokes the session on the server if it can be reached and always
// clears local state.
func (m *SessionManager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.WarnContext(ctx, "server logout failed", slog.String("error", err.Error()))
	}
	m.coord.Logout()
	m.clearUser()
}

// RefreshUser re-fetches the identity, ending the session on failure.
func (m *SessionManager) RefreshUser(ctx context.Context) error {
	user, err := m.currentUser(ctx)
	if err != nil {
		m.coord.Logout()
		m.clearUser()
		return err
	}
	m.setUser(user)
	return nil
}

func (m *SessionManager) establish(sess *AuthSession, err error) error {
	if err != nil {
		m.mu.Lock()
		m.state.Loading = false
		m.state.Err = errorMessage(err)
		m.mu.Unlock()
		return err
	}

	if err := m.coord.Reset(sess.AccessToken); err != nil {
		m.logger.Warn("failed to persist access token", slog.String("error", err.Error()))
	}
	user := sess.User
	m.mu.Lock()
	m.state = SessionState{User: &user}
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) currentUser(ctx context.Context) (*Identity, error) {
	req, err := m.api.CurrentUserRequest(ctx)
	if err != nil {
		return nil, err
	}
	res := m.coord.Do(ctx, req)
	if res.Kind != ResultOK {
		return nil, res.Err
	}
	var out userEnvelope
	if err := DecodeData(res.Response, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (m *SessionManager) setLoading() {
	m.mu.Lock()
	m.state.Loading = true
	m.state.Err = ""
	m.mu.Unlock()
}

func (m *SessionManager) doneLoading() {
	m.mu.Lock()
	m.state.Loading = false
	m.mu.Unlock()
}

func (m *SessionManager) setUser(u *Identity) {
	m.mu.Lock()
	m.state.User = u
	m.mu.Unlock()
}

func (m *SessionManager) clearUser() {
	m.mu.Lock()
	m.state.User = nil
	m.state.Loading = false
	m.mu.Unlock()
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
