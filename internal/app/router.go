package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/reports"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/importer"
	"github.com/odyssey-erp/sitebooks/internal/integration"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/observability"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	"github.com/odyssey-erp/sitebooks/jobs"
)

var errInvalidActor = errors.New("invalid actor id")

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AccountsHandler    *accounts.Handler
	MappingsHandler    *mappings.Handler
	VouchersHandler    *vouchers.Handler
	ProcurementHandler *procurement.Handler
	IntegrationHandler *integration.Handler
	InventoryHandler   *inventory.Handler
	ReportsHandler     *reports.Handler
	ImportHandler      *importer.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	// Ready reports dependency health for /healthz; nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with sitebooks defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(req); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(TenantScope)
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.MappingsHandler != nil {
			r.Route("/mappings", params.MappingsHandler.MountRoutes)
		}
		if params.VouchersHandler != nil {
			r.Route("/vouchers", params.VouchersHandler.MountRoutes)
		}
		r.Route("/purchases", func(r chi.Router) {
			if params.ProcurementHandler != nil {
				params.ProcurementHandler.MountRoutes(r)
			}
			if params.IntegrationHandler != nil {
				params.IntegrationHandler.MountRoutes(r)
			}
		})
		if params.InventoryHandler != nil {
			r.Route("/stock", params.InventoryHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/ledger", params.ReportsHandler.MountRoutes)
		}
		if params.ImportHandler != nil {
			r.Route("/imports/vouchers", params.ImportHandler.MountRoutes)
		}
	})

	return r
}
