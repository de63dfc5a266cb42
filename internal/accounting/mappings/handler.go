package mappings

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
)

// Handler exposes purpose overrides.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the mapping handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers mapping routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Put("/{purpose}", h.override)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	effective, err := h.service.Effective(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list mappings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, effective)
}

type overrideRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req overrideRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	purpose := Purpose(strings.ToUpper(chi.URLParam(r, "purpose")))
	m, err := h.service.Override(r.Context(), companyID, purpose, req.AccountCode)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrMappingNotFound), errors.Is(err, shared.ErrMissingDefaultAccount):
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		default:
			h.logger.Error("override mapping", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"purpose": string(m.Purpose), "account_code": m.AccountCode})
}
