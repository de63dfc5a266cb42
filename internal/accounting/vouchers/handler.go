package vouchers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Handler serves voucher endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the voucher handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/transition", h.transition)
	r.Get("/{id}/history", h.history)
}

type lineRequest struct {
	AccountID       int64           `json:"account_id" validate:"required_without=AccountCode"`
	AccountCode     string          `json:"account_code"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	Description     string          `json:"description" validate:"max=500"`
	ProjectID       *int64          `json:"project_id"`
	VendorID        *int64          `json:"vendor_id"`
	PaymentMethodID *int64          `json:"payment_method_id"`
}

type voucherRequest struct {
	Date      string        `json:"date" validate:"required,datetime=2006-01-02"`
	Type      VoucherType   `json:"type" validate:"omitempty,oneof=JOURNAL PAYMENT RECEIPT CONTRA"`
	ProjectID *int64        `json:"project_id"`
	Narration string        `json:"narration" validate:"max=1000"`
	Lines     []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (req voucherRequest) lines() []LineInput {
	out := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		out = append(out, LineInput{
			AccountID:       l.AccountID,
			AccountCode:     l.AccountCode,
			Debit:           l.Debit,
			Credit:          l.Credit,
			Description:     l.Description,
			ProjectID:       l.ProjectID,
			VendorID:        l.VendorID,
			PaymentMethodID: l.PaymentMethodID,
		})
	}
	return out
}

type transitionRequest struct {
	Status Status `json:"status" validate:"required,oneof=SUBMITTED APPROVED POSTED REVERSED"`
	Note   string `json:"note" validate:"max=500"`
}

type lineResponse struct {
	LineNo      int             `json:"line_no"`
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	VendorID    *int64          `json:"vendor_id,omitempty"`
}

// Response is the JSON shape of a voucher.
type Response struct {
	ID          int64           `json:"id"`
	VoucherNo   string          `json:"voucher_no"`
	Date        string          `json:"date"`
	Type        VoucherType     `json:"type"`
	Status      Status          `json:"status"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	Narration   string          `json:"narration,omitempty"`
	PurchaseID  *int64          `json:"purchase_id,omitempty"`
	ReversalOf  *int64          `json:"reversal_of,omitempty"`
	PostedAt    *time.Time      `json:"posted_at,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Lines       []lineResponse  `json:"lines,omitempty"`
}

// ToResponse renders v for JSON output.
func ToResponse(v Voucher) Response {
	resp := Response{
		ID:          v.ID,
		VoucherNo:   v.VoucherNo,
		Date:        v.Date.Format("2006-01-02"),
		Type:        v.Type,
		Status:      v.Status,
		ProjectID:   v.ProjectID,
		Narration:   v.Narration,
		PurchaseID:  v.PurchaseID,
		ReversalOf:  v.ReversalOf,
		PostedAt:    v.PostedAt,
		TotalDebit:  v.TotalDebit(),
		TotalCredit: v.TotalCredit(),
	}
	for _, l := range v.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			LineNo:      l.LineNo,
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			ProjectID:   l.ProjectID,
			VendorID:    l.VendorID,
		})
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{CompanyID: companyID, Status: Status(r.URL.Query().Get("status"))}
	if filter.ProjectID, err = httpx.QueryInt64(r, "project_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PurchaseID, err = httpx.QueryInt64(r, "purchase_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	offset, err := httpx.QueryInt64(r, "offset")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, filter.Offset = int(limit), int(offset)
	vouchers, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]Response, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, ToResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voucherRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	v, err := h.service.CreateVoucher(r.Context(), CreateInput{
		Draft: Draft{
			CompanyID: companyID,
			Date:      date,
			Type:      req.Type,
			ProjectID: req.ProjectID,
			Narration: req.Narration,
			Lines:     req.lines(),
		},
		ActorID: common.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(v))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(v))
}

type transitionResponse struct {
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	ActorID int64     `json:"actor_id,omitempty"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.History(r.Context(), companyID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]transitionResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, transitionResponse{From: l.From, To: l.To, ActorID: l.ActorID, Note: l.Note, At: l.At})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voucherRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	v, err := h.service.UpdateDraft(r.Context(), UpdateInput{
		CompanyID: companyID,
		VoucherID: id,
		Date:      date,
		Type:      req.Type,
		ProjectID: req.ProjectID,
		Narration: req.Narration,
		Lines:     req.lines(),
		ActorID:   common.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(v))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteDraft(r.Context(), companyID, id, common.ActorFromContext(r.Context())); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.TransitionStatus(r.Context(), TransitionInput{
		CompanyID: companyID,
		VoucherID: id,
		Target:    req.Status,
		ActorID:   common.ActorFromContext(r.Context()),
		Note:      req.Note,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	body := map[string]any{"from": res.From, "voucher": ToResponse(res.Voucher)}
	if res.Reversal != nil {
		body["reversal"] = ToResponse(*res.Reversal)
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	HTTPError(h.logger, w, err)
}

// HTTPError maps ledger errors onto problem responses.
func HTTPError(logger *slog.Logger, w http.ResponseWriter, err error) {
	var lineErr *shared.LineError
	switch {
	case errors.Is(err, shared.ErrVoucherNotFound), errors.Is(err, procurement.ErrNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	case errors.Is(err, shared.ErrNotEditable), errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, inventory.ErrNegativeStock):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrConflict, err))
	case errors.As(err, &lineErr),
		errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrInsufficientLines),
		errors.Is(err, shared.ErrNotBalanced),
		errors.Is(err, shared.ErrMissingDefaultAccount),
		errors.Is(err, shared.ErrAccountNotLeaf),
		errors.Is(err, shared.ErrAccountInactiveOrMissing),
		errors.Is(err, common.ErrCompanyRequired):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	default:
		if logger != nil {
			logger.Error("voucher request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
