package importer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

const maxUploadBytes = 10 << 20

// Handler serves CSV voucher imports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the import handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.preview)
	r.Post("/commit", h.commit)
}

type commitResponse struct {
	BatchID         uuid.UUID           `json:"batch_id"`
	VoucherNos      []string            `json:"voucher_nos"`
	AccountsCreated []string            `json:"accounts_created"`
	Vouchers        []vouchers.Response `json:"vouchers"`
}

func (h *Handler) validateBody(w http.ResponseWriter, r *http.Request) (ValidationResult, bool) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return ValidationResult{}, false
	}
	rows, err := ReadCSV(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return ValidationResult{}, false
	}
	strategy := KeyStrategy(r.URL.Query().Get("strategy"))
	result, err := h.service.ParseAndValidateVouchers(r.Context(), companyID, rows, strategy)
	if err != nil {
		h.fail(w, err)
		return ValidationResult{}, false
	}
	return result, true
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	result, ok := h.validateBody(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	batchID := uuid.Nil
	if raw := query.Get("batch_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("batch_id must be a uuid")))
			return
		}
		batchID = parsed
	}
	autoCreate := false
	if raw := query.Get("auto_create"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("auto_create must be a boolean")))
			return
		}
		autoCreate = v
	}

	result, ok := h.validateBody(w, r)
	if !ok {
		return
	}
	if result.HasBlocking() {
		httpx.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	committed, err := h.service.Commit(r.Context(), CommitInput{
		CompanyID:          result.CompanyID,
		BatchID:            batchID,
		Result:             result,
		AutoCreateAccounts: autoCreate,
		ActorID:            common.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := commitResponse{
		BatchID:         committed.BatchID,
		VoucherNos:      committed.VoucherNos,
		AccountsCreated: committed.AccountsCreated,
		Vouchers:        make([]vouchers.Response, 0, len(committed.Vouchers)),
	}
	for _, v := range committed.Vouchers {
		resp.Vouchers = append(resp.Vouchers, vouchers.ToResponse(v))
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBatchCommitted):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrDuplicate, err))
	case errors.Is(err, ErrBlockingIssues), errors.Is(err, ErrUnresolvedAccount), errors.Is(err, ErrEmptyImport), errors.Is(err, ErrUnknownStrategy):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	default:
		vouchers.HTTPError(h.logger, w, err)
	}
}
