package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/reports"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/importer"
	"github.com/odyssey-erp/sitebooks/internal/integration"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/observability"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	"github.com/odyssey-erp/sitebooks/internal/shared"
)

// Services is the fully wired domain layer shared by the server, the worker
// and the CLI.
type Services struct {
	Accounts     *accounts.Service
	Mappings     *mappings.Service
	Vouchers     *vouchers.Service
	Inventory    *inventory.Service
	InventoryDB  *inventory.Repository
	Procurement  *procurement.Service
	Reports      *reports.Service
	ReportCache  *reports.Cache
	Importer     *importer.Service
	PurchaseFlow *integration.PurchaseFlow
}

// NewServices wires repositories and services over pool and redisClient.
// metrics may be nil.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	audit := shared.NewAuditLogger(pool)

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo, logger)
	mappingService := mappings.NewService(mappings.NewRepository(pool), accountRepo.Lookup(), logger)

	var movementObserver inventory.Observer
	var transitionObserver vouchers.Observer
	if metrics != nil {
		movementObserver = metrics
		transitionObserver = metrics
	}

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, audit, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	}, movementObserver, logger)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reports.NewRepository(pool), reportCache, nil, logger)

	voucherService := vouchers.NewService(vouchers.NewRepository(pool), vouchers.Deps{
		Stock:    inventoryService,
		Audit:    audit,
		Observer: transitionObserver,
		Cache:    reportService,
	}, logger)

	return &Services{
		Accounts:     accountService,
		Mappings:     mappingService,
		Vouchers:     voucherService,
		Inventory:    inventoryService,
		InventoryDB:  inventoryRepo,
		Procurement:  procurement.NewService(procurement.NewRepository(pool), reportService, logger),
		Reports:      reportService,
		ReportCache:  reportCache,
		Importer:     importer.NewService(accountService, voucherService, shared.NewIdempotencyStore(pool), logger),
		PurchaseFlow: integration.NewPurchaseFlow(voucherService, logger),
	}
}
