package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/TrainingPlatform/pkg/httpclient"
)

const (
	authPrefix  = "/api/v1/auth"
	serviceName = "auth"
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// API talks to the auth service. It never refreshes on its own; the
// Coordinator decides what to do with a ResultAuthExpired.
type API struct {
	doer    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewAPI creates an API rooted at baseURL (scheme and host, no trailing path).
// The doer must carry a cookie jar for the refresh cookie to round-trip.
func NewAPI(baseURL string, doer HTTPDoer, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NewRequest builds a request against the service. The body, if any, is
// JSON encoded into a replayable reader so the request can be retried.
func (a *API) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Send performs one attempt of req with token as bearer and classifies the
// outcome. req itself is never mutated, so it can be sent again.
func (a *API) Send(ctx context.Context, req *http.Request, token string) Result {
	attempt, err := prepare(ctx, req, token)
	if err != nil {
		return errorResult(err)
	}

	resp, err := a.doer.Do(ctx, attempt)
	if err != nil {
		return errorResult(fmt.Errorf("call %s service: %w", serviceName, err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{Kind: ResultAuthExpired, Err: httpclient.ParseResponseError(resp, serviceName)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errorResult(httpclient.ParseResponseError(resp, serviceName))
	default:
		return okResult(resp)
	}
}

// Signup registers a new identity. The refresh cookie lands in the jar.
func (a *API) Signup(ctx context.Context, data SignupData) (*AuthSession, error) {
	var out AuthSession
	if err := a.post(ctx, authPrefix+"/signup", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a session.
func (a *API) Login(ctx context.Context, creds Credentials) (*AuthSession, error) {
	var out AuthSession
	if err := a.post(ctx, authPrefix+"/login", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates the refresh cookie held in the jar and returns the new
// access token. It is sent exactly once.
func (a *API) Refresh(ctx context.Context) (string, error) {
	var out tokenGrant
	if err := a.post(ctx, authPrefix+"/refresh", nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return out.AccessToken, nil
}

// Logout revokes the refresh cookie on the server.
func (a *API) Logout(ctx context.Context) error {
	return a.post(ctx, authPrefix+"/logout", nil, nil)
}

// CurrentUserRequest builds the GET /me request used to resolve the session.
func (a *API) CurrentUserRequest(ctx context.Context) (*http.Request, error) {
	return a.NewRequest(ctx, http.MethodGet, authPrefix+"/me", nil)
}

func (a *API) post(ctx context.Context, path string, body, dst any) error {
	req, err := a.NewRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	res := a.Send(ctx, req, "")
	if res.Kind != ResultOK {
		return res.Err
	}
	return DecodeData(res.Response, dst)
}

// DecodeData unwraps the success envelope into dst and closes the body.
// A nil dst only drains the body.
func DecodeData(resp *http.Response, dst any) error {
	defer func() { _ = resp.Body.Close() }()

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	env := struct {
		Data    any  `json:"data"`
		Success bool `json:"success"`
	}{Data: dst}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}

func prepare(ctx context.Context, req *http.Request, token string) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}

	out.Header.Del("Authorization")
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}
