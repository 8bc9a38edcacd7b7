package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/httputil"
)

// Recovery recovers from panics and answers with the internal-error envelope
// instead of crashing the process.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					httputil.WriteFailure(w, http.StatusInternalServerError, apperrors.CodeInternal, "an internal error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
