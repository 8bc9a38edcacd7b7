package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/httputil"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "subject_id"
	roleKey   contextKeyType = "role"
)

// Claims represents the verified access token claims attached to a request.
type Claims struct {
	SubjectID string `json:"sub"`
	Role      string `json:"role"`
}

// TokenValidator verifies a bearer token and returns its claims.
// Failures should be apperrors.InvalidToken or apperrors.TokenExpired so the
// gate can log the reason; both produce the same response body.
type TokenValidator func(token string) (*Claims, error)

// Auth middleware validates bearer tokens and injects subject claims into context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthenticated("missing or malformed authorization header"), nil)
				return
			}

			claims, err := validate(raw)
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "access token rejected",
					slog.String("reason", rejectReason(err)),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.SubjectID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = logger.WithSubject(ctx, claims.SubjectID, claims.Role)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(
				slog.String("subject_id", claims.SubjectID),
				slog.String("role", claims.Role),
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole middleware checks that the authenticated subject has one of the allowed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if _, ok := roleSet[role]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext extracts the authenticated subject ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext extracts the subject role from the request context.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

// WithClaims stores claims in ctx the same way Auth does.
// Useful for handler tests that bypass the gate.
func WithClaims(ctx context.Context, c Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.SubjectID)
	return context.WithValue(ctx, roleKey, c.Role)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrInvalidToken):
		return "invalid"
	default:
		return "unknown"
	}
}
