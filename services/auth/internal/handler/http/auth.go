package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/httputil"
	"github.com/utafrali/TrainingPlatform/pkg/middleware"
	"github.com/utafrali/TrainingPlatform/pkg/validator"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/service"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookie  CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookie CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for signup.
type SignupRequest struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Secret string `json:"secret" validate:"required,max=72"`
	Name   string `json:"name" validate:"required,min=1,max=100"`
	Role   string `json:"role" validate:"omitempty,oneof=learner trainer operations"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email  string `json:"email" validate:"required"`
	Secret string `json:"secret" validate:"required"`
}

// RefreshRequest is the optional JSON body of refresh and logout. The cookie
// takes precedence.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// --- Response types ---

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	User        *domain.Identity `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int              `json:"expiresIn"`
}

// TokenResponse is returned by refresh.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// UserResponse wraps a single identity.
type UserResponse struct {
	User *domain.Identity `json:"user"`
}

// --- Handlers ---

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.Signup(r.Context(), service.SignupInput{
		Email:  req.Email,
		Secret: req.Secret,
		Name:   req.Name,
		Role:   req.Role,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.set(w, session.Tokens.RefreshToken)
	httputil.WriteSuccess(w, http.StatusCreated, newSessionResponse(session), "signup successful")
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), service.LoginInput{
		Email:  req.Email,
		Secret: req.Secret,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.set(w, session.Tokens.RefreshToken)
	httputil.WriteSuccess(w, http.StatusOK, newSessionResponse(session), "login successful")
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRefreshToken) {
			h.cookie.clear(w)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.set(w, pair.RefreshToken)
	httputil.WriteSuccess(w, http.StatusOK, TokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int(pair.AccessTTL.Seconds()),
	}, "token refreshed")
}

// Logout handles POST /auth/logout. It succeeds without a token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := refreshTokenFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), raw); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.clear(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "logged out")
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LogoutAll(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookie.clear(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "all sessions revoked")
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.GetIdentity(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, UserResponse{User: identity}, "")
}

func newSessionResponse(s *service.Session) SessionResponse {
	return SessionResponse{
		User:        s.Identity,
		AccessToken: s.Tokens.AccessToken,
		ExpiresIn:   int(s.Tokens.AccessTTL.Seconds()),
	}
}

// decode reads and validates a JSON body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}

// refreshTokenFrom takes the refresh token from the cookie, falling back to
// an optional JSON body. An absent token yields "".
func refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}

	var req RefreshRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return req.RefreshToken, true
	default:
		httputil.WriteFailure(w, http.StatusBadRequest, apperrors.CodeInvalidInput, "invalid request body")
		return "", false
	}
}
