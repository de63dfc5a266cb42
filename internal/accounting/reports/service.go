package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// OverheadProvider supplies overhead allocated to a project by the monthly
// allocation run.
type OverheadProvider interface {
	AllocatedOverhead(ctx context.Context, companyID, projectID int64, rng DateRange) (decimal.Decimal, error)
}

// ErrInvalidScope indicates a report request without its subject.
var ErrInvalidScope = errors.New("reports: account, vendor or project required")

// Service derives ledger read models on demand.
type Service struct {
	store    Store
	cache    *Cache
	overhead OverheadProvider
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. cache and overhead may be nil.
func NewService(store Store, cache *Cache, overhead OverheadProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, overhead: overhead, logger: logger, now: time.Now}
}

// AccountRunningBalance lists posted lines of the account in ledger order
// with the balance after each line.
func (s *Service) AccountRunningBalance(ctx context.Context, companyID, accountID int64, rng DateRange) (AccountLedger, error) {
	if companyID <= 0 {
		return AccountLedger{}, common.ErrCompanyRequired
	}
	if accountID <= 0 {
		return AccountLedger{}, ErrInvalidScope
	}
	account, err := s.store.Account(ctx, companyID, accountID)
	if err != nil {
		return AccountLedger{}, err
	}
	scope := LedgerScope{CompanyID: companyID, AccountID: accountID}
	creditPositive := CreditPositive(account.Type)
	opening, lines, err := s.ledger(ctx, scope, rng, creditPositive)
	if err != nil {
		return AccountLedger{}, err
	}
	out, debit, credit, closing := RunningBalance(opening, lines, creditPositive)
	return AccountLedger{
		AccountID:      account.ID,
		AccountCode:    account.Code,
		AccountName:    account.Name,
		CreditPositive: creditPositive,
		Opening:        opening,
		Lines:          out,
		TotalDebit:     debit,
		TotalCredit:    credit,
		Closing:        closing,
	}, nil
}

// VendorRunningBalance is the payable view of lines tagged with the vendor.
func (s *Service) VendorRunningBalance(ctx context.Context, companyID, vendorID int64, rng DateRange) (VendorLedger, error) {
	if companyID <= 0 {
		return VendorLedger{}, common.ErrCompanyRequired
	}
	if vendorID <= 0 {
		return VendorLedger{}, ErrInvalidScope
	}
	scope := LedgerScope{CompanyID: companyID, VendorID: vendorID}
	opening, lines, err := s.ledger(ctx, scope, rng, true)
	if err != nil {
		return VendorLedger{}, err
	}
	out, debit, credit, closing := RunningBalance(opening, lines, true)
	return VendorLedger{
		VendorID:    vendorID,
		Opening:     opening,
		Lines:       out,
		TotalDebit:  debit,
		TotalCredit: credit,
		Closing:     closing,
	}, nil
}

func (s *Service) ledger(ctx context.Context, scope LedgerScope, rng DateRange, creditPositive bool) (decimal.Decimal, []PostedLine, error) {
	var opening decimal.Decimal
	var lines []PostedLine
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		debit, credit, err := s.store.OpeningTotals(gctx, scope, rng.From)
		if err != nil {
			return fmt.Errorf("opening balance: %w", err)
		}
		opening = signed(debit, credit, creditPositive)
		return nil
	})
	g.Go(func() error {
		var err error
		lines, err = s.store.PostedLines(gctx, scope, rng)
		if err != nil {
			return fmt.Errorf("posted lines: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, nil, err
	}
	return opening, lines, nil
}

// VendorPayablesAging buckets the vendor's unpaid invoices by age at asOf.
func (s *Service) VendorPayablesAging(ctx context.Context, companyID, vendorID int64, asOf time.Time) (PayablesAging, error) {
	if companyID <= 0 {
		return PayablesAging{}, common.ErrCompanyRequired
	}
	if vendorID <= 0 {
		return PayablesAging{}, ErrInvalidScope
	}
	if asOf.IsZero() {
		asOf = s.now().UTC().Truncate(24 * time.Hour)
	}
	var result PayablesAging
	err := s.cached(ctx, companyID, &result, func(ctx context.Context) (any, error) {
		purchases, err := s.store.VendorPurchases(ctx, companyID, vendorID, asOf)
		if err != nil {
			return nil, err
		}
		return AgePayables(vendorID, purchases, asOf), nil
	}, "aging", strconv.FormatInt(vendorID, 10), asOf.Format("2006-01-02"))
	return result, err
}

// ProjectCostSummary totals the project's posted expenses and purchases by
// category.
func (s *Service) ProjectCostSummary(ctx context.Context, companyID, projectID int64, filter CostFilter) (CostSummary, error) {
	if companyID <= 0 {
		return CostSummary{}, common.ErrCompanyRequired
	}
	if projectID <= 0 {
		return CostSummary{}, ErrInvalidScope
	}
	var result CostSummary
	err := s.cached(ctx, companyID, &result, func(ctx context.Context) (any, error) {
		return s.buildCostSummary(ctx, companyID, projectID, filter)
	}, "cost", strconv.FormatInt(projectID, 10), dateToken(filter.Range.From), dateToken(filter.Range.To), strconv.FormatBool(filter.IncludeOverhead))
	return result, err
}

func (s *Service) buildCostSummary(ctx context.Context, companyID, projectID int64, filter CostFilter) (CostSummary, error) {
	var (
		expenses  []ExpenseLine
		purchases []procurement.Purchase
		overhead  *decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.store.ExpenseLines(gctx, companyID, projectID, filter.Range)
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = s.store.ProjectPurchases(gctx, companyID, projectID, filter.Range)
		return err
	})
	if filter.IncludeOverhead && s.overhead != nil {
		g.Go(func() error {
			amount, err := s.overhead.AllocatedOverhead(gctx, companyID, projectID, filter.Range)
			if err != nil {
				return fmt.Errorf("allocated overhead: %w", err)
			}
			overhead = &amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CostSummary{}, err
	}
	summary := SummarizeCosts(projectID, expenses, purchases)
	if overhead != nil {
		summary.AllocatedOverhead = overhead
		summary.GrandTotal = summary.GrandTotal.Add(*overhead)
	}
	return summary, nil
}

// TrialBalance lists posted totals per account for the range.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, rng DateRange) (TrialBalance, error) {
	if companyID <= 0 {
		return TrialBalance{}, common.ErrCompanyRequired
	}
	var result TrialBalance
	err := s.cached(ctx, companyID, &result, func(ctx context.Context) (any, error) {
		totals, err := s.store.AccountTotals(ctx, companyID, rng)
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(totals), nil
	}, "tb", dateToken(rng.From), dateToken(rng.To))
	return result, err
}

// Bump retires the company's cached reports.
func (s *Service) Bump(ctx context.Context, companyID int64) error {
	return s.cache.Bump(ctx, companyID)
}

// cached serves dest from the versioned cache; concurrent misses for the same
// key share one build. Cache failures fall back to a direct build.
func (s *Service) cached(ctx context.Context, companyID int64, dest any, build func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, companyID, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Int64("company_id", companyID), slog.Any("error", err))
		return buildInto(ctx, dest, build)
	}
	resultChan := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		err := s.cache.FetchJSON(ctx, key, &raw, func(ctx context.Context) (any, error) {
			value, err := build(ctx)
			if err != nil {
				return nil, buildError{err}
			}
			return value, nil
		})
		return raw, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			var be buildError
			if errors.As(res.Err, &be) {
				return be.err
			}
			s.logger.Warn("report cache unavailable", slog.Int64("company_id", companyID), slog.String("key", key), slog.Any("error", res.Err))
			return buildInto(ctx, dest, build)
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

type buildError struct{ err error }

func (e buildError) Error() string { return e.err.Error() }
func (e buildError) Unwrap() error { return e.err }

func buildInto(ctx context.Context, dest any, build func(context.Context) (any, error)) error {
	value, err := build(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
