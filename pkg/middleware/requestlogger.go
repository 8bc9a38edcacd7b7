package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/TrainingPlatform/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id,
// trace_id and span_id and stores it in context for logger.FromContext.
// When mounted after Auth the logger also carries subject_id and role.
//
// Mount it after RequestLogging (correlation ID) and Tracing (span context).
// Subject identity is only ever taken from verified claims, never from
// client-supplied headers.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if subjectID := UserIDFromContext(ctx); subjectID != "" {
				ctx = logger.WithSubject(ctx, subjectID, RoleFromContext(ctx))
			}

			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
