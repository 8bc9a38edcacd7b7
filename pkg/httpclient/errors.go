package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/TrainingPlatform/pkg/errors"
)

// FailureEnvelope mirrors httputil.ErrorResponse, the failure body returned
// by platform services.
type FailureEnvelope struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an *apperrors.AppError. When the body is a failure envelope the
// machine code and message are preserved verbatim so callers can branch on
// them. Otherwise a plain error with the status and raw body is returned.
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var env FailureEnvelope
	if json.Unmarshal(bodyBytes, &env) == nil && env.Error != "" {
		return mapFailure(resp.StatusCode, env)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// mapFailure keeps the server's code and message and attaches the sentinel
// matching the status so errors.Is keeps working on the client side.
func mapFailure(status int, env FailureEnvelope) error {
	appErr := &apperrors.AppError{
		Code:    env.Error,
		Message: env.Message,
		Status:  status,
	}

	switch {
	case status == http.StatusNotFound:
		appErr.Err = apperrors.ErrNotFound
	case status == http.StatusBadRequest:
		appErr.Err = apperrors.ErrInvalidInput
	case status == http.StatusConflict:
		appErr.Err = apperrors.ErrAlreadyExists
		if env.Error == apperrors.CodeEmailAlreadyRegistered {
			appErr.Err = apperrors.ErrEmailAlreadyRegistered
		}
	case status == http.StatusUnauthorized:
		appErr.Err = unauthorizedSentinel(env.Error)
	case status == http.StatusForbidden:
		appErr.Err = apperrors.ErrForbidden
	case status == http.StatusServiceUnavailable:
		appErr.Err = apperrors.ErrServiceUnavail
	case status >= 500:
		appErr.Err = apperrors.ErrInternal
	}
	return appErr
}

func unauthorizedSentinel(code string) error {
	switch code {
	case apperrors.CodeInvalidCredentials:
		return apperrors.ErrInvalidCredentials
	case apperrors.CodeInvalidRefreshToken:
		return apperrors.ErrInvalidRefreshToken
	default:
		return apperrors.ErrUnauthorized
	}
}
