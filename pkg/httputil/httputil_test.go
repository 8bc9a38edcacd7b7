package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
	"github.com/utafrali/TrainingPlatform/pkg/logger"
	"github.com/utafrali/TrainingPlatform/pkg/validator"
)

func testLogger() *slog.Logger {
	return logger.Discard()
}

func fixClock(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })
	return fixed
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON / WriteSuccess ---

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteSuccess_Envelope(t *testing.T) {
	fixed := fixClock(t)
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusCreated, map[string]string{"key": "value"}, "created")

	assert.Equal(t, http.StatusCreated, rec.Code)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "created", raw["message"])
	assert.Equal(t, fixed.Format(time.RFC3339), raw["timestamp"])
	assert.Equal(t, map[string]any{"key": "value"}, raw["data"])
}

func TestWriteSuccess_NilDataStillPresent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusOK, nil, "")

	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	_, ok := raw["data"]
	assert.True(t, ok, "data key must always be present")
	_, ok = raw["message"]
	assert.False(t, ok)
}

func TestWriteFailure_Envelope(t *testing.T) {
	fixClock(t)
	rec := httptest.NewRecorder()
	WriteFailure(rec, http.StatusTeapot, "TEAPOT", "short and stout")

	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "TEAPOT", resp.Error)
	assert.Equal(t, "short and stout", resp.Message)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.False(t, resp.Timestamp.IsZero())
}

// --- WriteError ---

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, apperrors.NotFound("identity", "abc-123"), testLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteError_TokenKindsShareBody(t *testing.T) {
	kinds := []error{
		apperrors.InvalidToken(fmt.Errorf("signature is invalid")),
		apperrors.TokenExpired(),
	}

	var bodies []ErrorResponse
	for _, kind := range kinds {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		WriteError(rec, req, kind, testLogger())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, decodeError(t, rec))
	}

	assert.Equal(t, bodies[0].Error, bodies[1].Error)
	assert.Equal(t, bodies[0].Message, bodies[1].Message)
	assert.Equal(t, "UNAUTHORIZED", bodies[0].Error)
}

func TestWriteError_InvalidCredentialsKeepsCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

	WriteError(rec, req, apperrors.InvalidCredentials(), testLogger())

	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Error)
}

func TestWriteError_Sentinels(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{fmt.Errorf("create: %w", apperrors.ErrAlreadyExists), http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
		{apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
		{fmt.Errorf("email: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", "email: invalid input"},
		{apperrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "forbidden"},
		{apperrors.ErrTokenExpired, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
		{apperrors.ErrServiceUnavail, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", nil), tt.err, testLogger())

			resp := decodeError(t, rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestWriteError_UnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, fmt.Errorf("database exploded"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error)
	assert.NotContains(t, resp.Message, "exploded")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-abc")
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.Forbidden("insufficient permissions"), testLogger())

	resp := decodeError(t, rec)
	assert.Equal(t, "corr-abc", resp.RequestID)
	assert.Equal(t, "FORBIDDEN", resp.Error)
}

// --- WriteValidationError ---

type sampleRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func TestWriteValidationError_FieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	err := validator.Validate(sampleRequest{Email: "not-an-email"})
	require.Error(t, err)

	WriteValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)
	assert.Contains(t, resp.Fields, "email")
}

func TestWriteValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, fmt.Errorf("boom"))

	resp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error)
	assert.Equal(t, "boom", resp.Message)
}

// --- ParseUUID ---

func TestParseUUID_Valid(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.True(t, ok)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())
}

func TestParseUUID_Invalid(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := ParseUUID(rec, "nope")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decodeError(t, rec).Error)
}
