package integration

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/platform/httpx"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Handler exposes the purchase to voucher bridge.
type Handler struct {
	logger *slog.Logger
	flow   *PurchaseFlow
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, flow *PurchaseFlow) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, flow: flow}
}

// MountRoutes registers routes under /purchases.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/voucher", h.voucher)
}

type voucherOutcome struct {
	Created bool              `json:"created"`
	Voucher vouchers.Response `json:"voucher"`
}

// voucher creates the purchase voucher; post=true also walks it to POSTED.
func (h *Handler) voucher(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchaseID, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	post, _ := strconv.ParseBool(r.URL.Query().Get("post"))
	actorID := common.ActorFromContext(r.Context())

	var out VoucherOutcome
	if post {
		out, err = h.flow.PostPurchase(r.Context(), companyID, purchaseID, actorID)
	} else {
		out, err = h.flow.EnsureVoucher(r.Context(), companyID, purchaseID, actorID)
	}
	if err != nil {
		vouchers.HTTPError(h.logger, w, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, voucherOutcome{Created: out.Created, Voucher: vouchers.ToResponse(out.Voucher)})
}
