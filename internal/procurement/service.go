package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Lookup() TxRepository
}

// CacheBumper invalidates cached ledger reports of a company. Payables aging
// and project cost summaries read purchases directly.
type CacheBumper interface {
	Bump(ctx context.Context, companyID int64) error
}

// Service records purchases handed over by the purchase workflow.
type Service struct {
	repo   RepositoryPort
	cache  CacheBumper
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache CacheBumper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Get loads a purchase with its lines.
func (s *Service) Get(ctx context.Context, companyID, purchaseID int64) (Purchase, error) {
	return s.repo.Lookup().GetPurchase(ctx, companyID, purchaseID)
}

// Record validates and stores a purchase.
func (s *Service) Record(ctx context.Context, p Purchase) (Purchase, error) {
	if err := Validate(p); err != nil {
		return Purchase{}, err
	}
	var created Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.CreatePurchase(ctx, p)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.logger.Info("purchase recorded", slog.Int64("company_id", created.CompanyID), slog.Int64("purchase_id", created.ID), slog.String("total", created.Total().StringFixed(2)))
	if s.cache != nil {
		if err := s.cache.Bump(ctx, created.CompanyID); err != nil {
			s.logger.Warn("report cache bump failed", slog.Int64("company_id", created.CompanyID), slog.Any("error", err))
		}
	}
	return created, nil
}

// Validate checks the invariants a purchase must satisfy before it can feed
// vouchers and stock receipts.
func Validate(p Purchase) error {
	if p.CompanyID <= 0 || p.VendorID <= 0 {
		return fmt.Errorf("%w: company and vendor required", ErrValidation)
	}
	if p.InvoiceDate.IsZero() {
		return fmt.Errorf("%w: invoice date required", ErrValidation)
	}
	if len(p.Lines) == 0 {
		return fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if p.Discount.IsNegative() || p.PaidAmount.IsNegative() {
		return fmt.Errorf("%w: discount and paid amount must not be negative", ErrValidation)
	}
	for i, l := range p.Lines {
		if !l.LineType.Valid() {
			return fmt.Errorf("%w: line %d has unknown type %q", ErrValidation, i+1, l.LineType)
		}
		if !l.Qty.IsPositive() || l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d needs positive qty and non-negative price", ErrValidation, i+1)
		}
		if l.LineType == LineMaterial && l.StockItemID == nil && strings.TrimSpace(l.ItemName) == "" {
			return fmt.Errorf("%w: material line %d needs a stock item or name", ErrValidation, i+1)
		}
	}
	if p.Discount.GreaterThan(p.Subtotal()) {
		return fmt.Errorf("%w: discount exceeds subtotal", ErrValidation)
	}
	if p.PaidAmount.GreaterThan(p.Total()) {
		return fmt.Errorf("%w: paid amount exceeds total", ErrValidation)
	}
	return nil
}
