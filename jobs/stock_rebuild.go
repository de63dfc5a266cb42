package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sitebooks/internal/inventory"
	jobmetrics "github.com/odyssey-erp/sitebooks/internal/jobs"
)

// StockRebuilder rewrites drifted stock balances from the movement journal.
type StockRebuilder interface {
	RebuildBalances(ctx context.Context, companyID int64) (inventory.RebuildReport, error)
}

// CompanyLister enumerates companies that hold ledger data.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

// CompanyListerFunc adapts a plain function to CompanyLister.
type CompanyListerFunc func(ctx context.Context) ([]int64, error)

// CompanyIDs calls f.
func (f CompanyListerFunc) CompanyIDs(ctx context.Context) ([]int64, error) {
	return f(ctx)
}

// StockRebuildJob runs the stock balance rebuild.
type StockRebuildJob struct {
	Stock     StockRebuilder
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewStockRebuildJob initialises the handler.
func NewStockRebuildJob(stock StockRebuilder, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockRebuildJob {
	return &StockRebuildJob{Stock: stock, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStockRebuild.
func (j *StockRebuildJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCompany(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	_, err = j.Run(ctx, payload.CompanyID)
	return err
}

// Run rebuilds one company, or every company when companyID is zero, and
// returns the number of corrected balances.
func (j *StockRebuildJob) Run(ctx context.Context, companyID int64) (corrected int, resultErr error) {
	if j == nil || j.Stock == nil {
		return 0, errors.New("stock rebuild: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStockRebuild)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies, err := companiesFor(ctx, j.Companies, companyID)
	if err != nil {
		return 0, err
	}
	logger := loggerOr(j.Logger).With(slog.String("job", TaskStockRebuild))
	for _, id := range companies {
		report, err := j.Stock.RebuildBalances(ctx, id)
		if err != nil {
			logger.Error("stock rebuild failed", slog.Int64("company_id", id), slog.Any("error", err))
			return corrected, fmt.Errorf("company %d: %w", id, err)
		}
		corrected += len(report.Corrected)
		j.Metrics.AddCorrections(id, len(report.Corrected))
		for _, b := range report.Corrected {
			logger.Warn("stock balance corrected",
				slog.Int64("company_id", id),
				slog.Int64("stock_item_id", b.StockItemID),
				slog.String("on_hand_qty", b.OnHandQty.String()),
				slog.String("avg_cost", b.AvgCost.String()))
		}
		logger.Info("stock rebuild finished",
			slog.Int64("company_id", id),
			slog.Int("items_checked", report.ItemsChecked),
			slog.Int("corrected", len(report.Corrected)))
	}
	return corrected, nil
}

func companiesFor(ctx context.Context, lister CompanyLister, companyID int64) ([]int64, error) {
	if companyID > 0 {
		return []int64{companyID}, nil
	}
	if lister == nil {
		return nil, errors.New("jobs: company id required")
	}
	return lister.CompanyIDs(ctx)
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
