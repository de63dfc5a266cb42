package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
)

// Handler serves ledger read models.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the report handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}", h.accountLedger)
	r.Get("/vendors/{id}", h.vendorLedger)
	r.Get("/vendors/{id}/aging", h.vendorAging)
	r.Get("/projects/{id}/costs", h.projectCosts)
	r.Get("/trial-balance", h.trialBalance)
}

func dateRange(r *http.Request) (DateRange, error) {
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return DateRange{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return DateRange{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return DateRange{}, httpx.Wrap(httpx.ErrValidation, errors.New("to is before from"))
	}
	return DateRange{From: from, To: to}, nil
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return companyID, id, true
}

func (h *Handler) accountLedger(w http.ResponseWriter, r *http.Request) {
	companyID, accountID, ok := h.scope(w, r)
	if !ok {
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.service.AccountRunningBalance(r.Context(), companyID, accountID, rng)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) vendorLedger(w http.ResponseWriter, r *http.Request) {
	companyID, vendorID, ok := h.scope(w, r)
	if !ok {
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.service.VendorRunningBalance(r.Context(), companyID, vendorID, rng)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) vendorAging(w http.ResponseWriter, r *http.Request) {
	companyID, vendorID, ok := h.scope(w, r)
	if !ok {
		return
	}
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	aging, err := h.service.VendorPayablesAging(r.Context(), companyID, vendorID, asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, aging)
}

func (h *Handler) projectCosts(w http.ResponseWriter, r *http.Request) {
	companyID, projectID, ok := h.scope(w, r)
	if !ok {
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := CostFilter{Range: rng}
	if raw := r.URL.Query().Get("include_overhead"); raw != "" {
		if filter.IncludeOverhead, err = strconv.ParseBool(raw); err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("include_overhead must be a boolean")))
			return
		}
	}
	summary, err := h.service.ProjectCostSummary(r.Context(), companyID, projectID, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), companyID, rng)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidScope):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	default:
		h.logger.Error("report request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
