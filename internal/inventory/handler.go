package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
	"github.com/odyssey-erp/sitebooks/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.listBalances)
	r.Get("/movements", h.listMovements)
	r.Post("/items", h.upsertItem)
	r.Post("/adjustments", h.adjust)
	r.Post("/issues", h.issue)
	r.Post("/opening", h.opening)
}

type adjustRequest struct {
	StockItemID   int64            `json:"stock_item_id" validate:"required,gt=0"`
	Type          MovementType     `json:"type" validate:"required,oneof=IN OUT ADJUST WASTAGE"`
	Qty           decimal.Decimal  `json:"qty"`
	UnitCost      *decimal.Decimal `json:"unit_cost"`
	Date          string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ReferenceType string           `json:"reference_type" validate:"required_with=ReferenceID"`
	ReferenceID   string           `json:"reference_id" validate:"required_with=ReferenceType"`
	ProjectID     *int64           `json:"project_id"`
	VendorID      *int64           `json:"vendor_id"`
	Notes         string           `json:"notes"`
}

type issueRequest struct {
	StockItemID int64           `json:"stock_item_id" validate:"required,gt=0"`
	Type        MovementType    `json:"type" validate:"required,oneof=OUT WASTAGE"`
	Qty         decimal.Decimal `json:"qty"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ProjectID   *int64          `json:"project_id"`
	Notes       string          `json:"notes"`
}

type itemRequest struct {
	Name     string `json:"name" validate:"required"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

type openingRequest struct {
	ProjectID *int64    `json:"project_id"`
	BatchID   uuid.UUID `json:"batch_id"`
	Rows      []struct {
		Date     string          `json:"date"`
		Name     string          `json:"name"`
		Unit     string          `json:"unit"`
		Category string          `json:"category"`
		Qty      decimal.Decimal `json:"qty"`
		UnitCost decimal.Decimal `json:"unit_cost"`
	} `json:"rows" validate:"required,min=1"`
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", raw)
	return t
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.AdjustStock(r.Context(), AdjustInput{
		CompanyID:     companyID,
		StockItemID:   req.StockItemID,
		Type:          req.Type,
		Qty:           req.Qty,
		UnitCost:      req.UnitCost,
		MovementDate:  parseDate(req.Date),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ProjectID:     req.ProjectID,
		VendorID:      req.VendorID,
		Notes:         req.Notes,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req issueRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.IssueStock(r.Context(), IssueInput{
		CompanyID:    companyID,
		StockItemID:  req.StockItemID,
		Type:         req.Type,
		Qty:          req.Qty,
		MovementDate: parseDate(req.Date),
		ProjectID:    req.ProjectID,
		Notes:        req.Notes,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) upsertItem(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpsertItem(r.Context(), StockItem{CompanyID: companyID, Name: req.Name, Unit: req.Unit, Category: req.Category})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) opening(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req openingRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := OpeningStockInput{CompanyID: companyID, ProjectID: req.ProjectID, BatchID: req.BatchID, ActorID: shared.ActorFromContext(r.Context())}
	for _, row := range req.Rows {
		input.Rows = append(input.Rows, OpeningStockRow{Date: row.Date, Name: row.Name, Unit: row.Unit, Category: row.Category, Qty: row.Qty, UnitCost: row.UnitCost})
	}
	result, err := h.service.OpeningStockBulkUpsert(r.Context(), input)
	if err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{"title": "Batch Rejected", "status": http.StatusUnprocessableEntity, "rows": batchErr.Rows})
			return
		}
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.ListBalances(r.Context(), companyID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.QueryInt64(r, "stock_item_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), MovementFilter{CompanyID: companyID, StockItemID: itemID, From: from, To: to})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrOpeningConflict):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrConflict, err))
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, ErrInvalidMovementType),
		errors.Is(err, ErrReservedReference):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
