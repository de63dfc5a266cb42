package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
)

// Handler exposes the account registry over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account routes under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/resolve", h.resolve)
	r.Post("/seed", h.seed)
}

type accountResponse struct {
	ID       int64       `json:"id"`
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`
	ParentID *int64      `json:"parent_id,omitempty"`
	IsSystem bool        `json:"is_system"`
	IsActive bool        `json:"is_active"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, ParentID: a.ParentID, IsSystem: a.IsSystem, IsActive: a.IsActive}
}

func toResponses(accounts []Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accounts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(accounts))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.QueryInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := ResolveQuery{ID: id, Code: r.URL.Query().Get("code"), Name: r.URL.Query().Get("name")}
	if q.Empty() {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("id, code or name required")))
		return
	}
	res, err := h.service.ResolveAccount(r.Context(), companyID, q)
	if err != nil {
		h.fail(w, err)
		return
	}
	body := map[string]any{"matched_by": res.MatchedBy}
	if res.Found() {
		body["account"] = toResponse(*res.Account)
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	seeded, err := h.service.SeedDefaults(r.Context(), companyID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(seeded))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	default:
		h.logger.Error("accounts request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
