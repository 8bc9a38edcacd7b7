package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/TrainingPlatform/pkg/httputil"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/service"
)

// IdentityHandler serves staff lookups of other identities.
type IdentityHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewIdentityHandler creates a new identity HTTP handler.
func NewIdentityHandler(svc *service.AuthService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{service: svc, logger: logger}
}

// Get handles GET /api/v1/identities/{id}
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	identity, err := h.service.GetIdentity(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, UserResponse{User: identity}, "")
}
