package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for recorded purchases.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the purchase handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

type purchaseLineRequest struct {
	LineType    LineType        `json:"line_type" validate:"required,oneof=MATERIAL SERVICE OTHER"`
	StockItemID *int64          `json:"stock_item_id"`
	ItemName    string          `json:"item_name"`
	Category    string          `json:"category"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type purchaseRequest struct {
	VendorID           int64                 `json:"vendor_id" validate:"required,gt=0"`
	ProjectID          *int64                `json:"project_id"`
	InvoiceNo          string                `json:"invoice_no"`
	InvoiceDate        string                `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	Discount           decimal.Decimal       `json:"discount"`
	PaidAmount         decimal.Decimal       `json:"paid_amount"`
	PaymentAccountCode string                `json:"payment_account_code"`
	Lines              []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req purchaseRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.InvoiceDate)
	p := Purchase{
		CompanyID:          companyID,
		VendorID:           req.VendorID,
		ProjectID:          req.ProjectID,
		InvoiceNo:          req.InvoiceNo,
		InvoiceDate:        date,
		Discount:           req.Discount,
		PaidAmount:         req.PaidAmount,
		PaymentAccountCode: req.PaymentAccountCode,
	}
	for _, l := range req.Lines {
		p.Lines = append(p.Lines, PurchaseLine{LineType: l.LineType, StockItemID: l.StockItemID, ItemName: l.ItemName, Category: l.Category, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	created, err := h.service.Record(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
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
	p, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	default:
		h.logger.Error("purchase request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
