package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	jobmetrics "github.com/odyssey-erp/sitebooks/internal/jobs"
)

// Anomaly kinds reported by the integrity scan.
const (
	AnomalyUnbalanced   = "unbalanced"
	AnomalyTooFewLines  = "too_few_lines"
	AnomalyGroupAccount = "group_account"
)

// VoucherTotals summarises one posted voucher.
type VoucherTotals struct {
	CompanyID  int64
	VoucherID  int64
	VoucherNo  string
	Status     string
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Lines      int
	GroupLines int
}

// Anomalies lists the invariants the voucher breaks.
func (v VoucherTotals) Anomalies() []string {
	var kinds []string
	if v.Debit.Sub(v.Credit).Abs().GreaterThanOrEqual(vouchers.BalanceTolerance) {
		kinds = append(kinds, AnomalyUnbalanced)
	}
	if v.Lines < 2 {
		kinds = append(kinds, AnomalyTooFewLines)
	}
	if v.GroupLines > 0 {
		kinds = append(kinds, AnomalyGroupAccount)
	}
	return kinds
}

// LedgerScanner returns posted vouchers suspected of breaking invariants.
type LedgerScanner interface {
	SuspectVouchers(ctx context.Context, companyID int64) ([]VoucherTotals, error)
}

// LedgerIntegrityJob checks posted vouchers and counts anomalies.
type LedgerIntegrityJob struct {
	Scanner   LedgerScanner
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the handler.
func NewLedgerIntegrityJob(scanner LedgerScanner, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Scanner: scanner, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCompany(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	_, err = j.Run(ctx, payload.CompanyID)
	return err
}

// Run scans one company, or all of them when companyID is zero.
func (j *LedgerIntegrityJob) Run(ctx context.Context, companyID int64) (found []VoucherTotals, resultErr error) {
	if j == nil || j.Scanner == nil {
		return nil, errors.New("ledger integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companies, err := companiesFor(ctx, j.Companies, companyID)
	if err != nil {
		return nil, err
	}
	logger := loggerOr(j.Logger).With(slog.String("job", TaskLedgerIntegrity))
	for _, id := range companies {
		suspects, err := j.Scanner.SuspectVouchers(ctx, id)
		if err != nil {
			return found, fmt.Errorf("company %d: %w", id, err)
		}
		counts := make(map[string]int)
		for _, v := range suspects {
			kinds := v.Anomalies()
			if len(kinds) == 0 {
				continue
			}
			for _, kind := range kinds {
				counts[kind]++
			}
			found = append(found, v)
			logger.Warn("ledger anomaly detected",
				slog.Int64("company_id", id),
				slog.String("voucher_no", v.VoucherNo),
				slog.String("status", v.Status),
				slog.String("debit", v.Debit.StringFixed(2)),
				slog.String("credit", v.Credit.StringFixed(2)),
				slog.Any("kinds", kinds))
		}
		for kind, n := range counts {
			j.Metrics.AddAnomalies(kind, id, n)
		}
	}
	logger.Info("ledger integrity finished", slog.Int("companies", len(companies)), slog.Int("anomalies", len(found)))
	return found, nil
}

// LedgerStore reads ledger tables for the maintenance jobs.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore constructs the store.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// CompanyIDs lists companies with a chart of accounts.
func (s *LedgerStore) CompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT company_id FROM accounts ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SuspectVouchers returns POSTED or REVERSED vouchers that do not balance,
// have fewer than two lines, or post to an account with children.
func (s *LedgerStore) SuspectVouchers(ctx context.Context, companyID int64) ([]VoucherTotals, error) {
	rows, err := s.pool.Query(ctx, `SELECT v.company_id, v.id, v.voucher_no, v.status,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0), COUNT(l.id),
       COUNT(l.id) FILTER (WHERE EXISTS (SELECT 1 FROM accounts c WHERE c.company_id = v.company_id AND c.parent_id = l.account_id))
FROM vouchers v
LEFT JOIN voucher_lines l ON l.voucher_id = v.id
WHERE v.company_id = $1 AND v.status IN ('POSTED', 'REVERSED')
GROUP BY v.company_id, v.id, v.voucher_no, v.status
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) >= 0.01
    OR COUNT(l.id) < 2
    OR COUNT(l.id) FILTER (WHERE EXISTS (SELECT 1 FROM accounts c WHERE c.company_id = v.company_id AND c.parent_id = l.account_id)) > 0
ORDER BY v.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VoucherTotals
	for rows.Next() {
		var v VoucherTotals
		if err := rows.Scan(&v.CompanyID, &v.VoucherID, &v.VoucherNo, &v.Status, &v.Debit, &v.Credit, &v.Lines, &v.GroupLines); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
