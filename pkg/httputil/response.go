package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
	"github.com/utafrali/TrainingPlatform/pkg/validator"
)

// Response is the success envelope shared by every endpoint.
type Response struct {
	Data      any       `json:"data"`
	Message   string    `json:"message,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the failure envelope. Error carries the machine-readable
// code, StatusCode mirrors the HTTP status.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode"`
	Timestamp  time.Time         `json:"timestamp"`
	Fields     map[string]string `json:"fields,omitempty"`
	RequestID  string            `json:"requestId,omitempty"`
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// WriteJSON encodes v with status. Encoding errors are dropped since the
// header is already out.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Response{
		Data:      data,
		Message:   message,
		Success:   true,
		Timestamp: now(),
	})
}

// WriteFailure writes the failure envelope with an explicit code and message.
func WriteFailure(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:      code,
		Message:    message,
		StatusCode: status,
		Timestamp:  now(),
	})
}

// publicAuthError collapses the token verification kinds into one body so the
// response never reveals whether a token was expired or forged.
func publicAuthError(appErr *apperrors.AppError) (string, string) {
	switch appErr.Code {
	case apperrors.CodeInvalidToken, apperrors.CodeTokenExpired:
		return apperrors.CodeUnauthorized, "invalid or expired token"
	case apperrors.CodeUnauthenticated:
		return apperrors.CodeUnauthorized, appErr.Message
	default:
		return appErr.Code, appErr.Message
	}
}

// sentinelBodies gives plain (non-AppError) failures a public code and
// message. Only ErrInvalidInput echoes the error text.
var sentinelBodies = []struct {
	err     error
	code    string
	message string
}{
	{apperrors.ErrNotFound, apperrors.CodeNotFound, "resource not found"},
	{apperrors.ErrAlreadyExists, apperrors.CodeAlreadyExists, "resource already exists"},
	{apperrors.ErrInvalidInput, apperrors.CodeInvalidInput, ""},
	{apperrors.ErrUnauthorized, apperrors.CodeUnauthorized, "unauthorized"},
	{apperrors.ErrForbidden, apperrors.CodeForbidden, "forbidden"},
}

// WriteError writes the failure envelope for err. AppErrors below 500 keep
// their code and message; known sentinels get a generic body; everything
// else is logged and reported as a bare 500. The request-scoped logger from
// context is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	body := ErrorResponse{
		Error:      apperrors.CodeInternal,
		Message:    "an internal error occurred",
		StatusCode: apperrors.HTTPStatus(err),
		Timestamp:  now(),
		RequestID:  logger.CorrelationIDFromContext(r.Context()),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		body.Error, body.Message = publicAuthError(appErr)
	} else if body.StatusCode < http.StatusInternalServerError {
		for _, sb := range sentinelBodies {
			if errors.Is(err, sb.err) {
				body.Error, body.Message = sb.code, sb.message
				if body.Message == "" {
					body.Message = err.Error()
				}
				break
			}
		}
	} else {
		body.StatusCode = http.StatusInternalServerError
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, body.StatusCode, body)
}

// WriteValidationError answers 400. A *validator.ValidationError is reported
// per field under VALIDATION_ERROR; anything else as INVALID_INPUT.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:      "VALIDATION_ERROR",
			Message:    "request validation failed",
			StatusCode: http.StatusBadRequest,
			Timestamp:  now(),
			Fields:     valErr.Fields(),
		})
		return
	}

	WriteFailure(w, http.StatusBadRequest, apperrors.CodeInvalidInput, err.Error())
}

// ParseUUID parses a path parameter. On failure it has already written a
// 400 INVALID_PARAMETER and the caller should return.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteFailure(w, http.StatusBadRequest, "INVALID_PARAMETER", "invalid UUID: "+param)
		return uuid.Nil, false
	}
	return id, true
}
