package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
	"github.com/odyssey-erp/sitebooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Lookup() TxRepository
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer Observer
	allowNeg bool
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		observer: observer,
		allowNeg: cfg.AllowNegativeStock,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock used for default movement dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AdjustStock applies one movement in its own transaction.
func (s *Service) AdjustStock(ctx context.Context, input AdjustInput) (AdjustResult, error) {
	if ReservedReference(input.ReferenceType) {
		return AdjustResult{}, fmt.Errorf("%w: %s", ErrReservedReference, input.ReferenceType)
	}
	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.adjust(ctx, tx, input, false)
		return err
	})
	if err != nil {
		return AdjustResult{}, err
	}
	s.Publish(eventFor(result))
	s.recordAudit(ctx, input.ActorID, result)
	return result, nil
}

// AdjustStockTx applies one movement on the caller's transaction: the balance
// row is created if needed and locked, the idempotency key is checked, then
// the movement is appended and the balance rewritten. Purchase and opening
// stock reference types are refused; those postings go through
// PostPurchaseReceipt, ReversePurchaseReceipt and OpeningStockBulkUpsert.
func (s *Service) AdjustStockTx(ctx context.Context, tx TxRepository, input AdjustInput) (AdjustResult, error) {
	if ReservedReference(input.ReferenceType) {
		return AdjustResult{}, fmt.Errorf("%w: %s", ErrReservedReference, input.ReferenceType)
	}
	return s.adjust(ctx, tx, input, false)
}

// adjust is the shared posting path. unwind marks an OUT that undoes an
// earlier receipt at its own cost; only purchase reversals set it.
func (s *Service) adjust(ctx context.Context, tx TxRepository, input AdjustInput, unwind bool) (AdjustResult, error) {
	if input.CompanyID <= 0 || input.StockItemID <= 0 {
		return AdjustResult{}, errors.New("inventory: company and stock item required")
	}
	rule := CostRule{Type: input.Type, Qty: input.Qty.Round(qtyPlaces), UnitCost: input.UnitCost}
	if err := rule.Validate(); err != nil {
		return AdjustResult{}, err
	}
	movement := Movement{
		CompanyID:     input.CompanyID,
		StockItemID:   input.StockItemID,
		MovementDate:  input.MovementDate,
		Type:          input.Type,
		Qty:           input.Qty.Round(qtyPlaces),
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		ProjectID:     input.ProjectID,
		VendorID:      input.VendorID,
		Notes:         input.Notes,
	}
	if movement.MovementDate.IsZero() {
		movement.MovementDate = s.now().UTC().Truncate(24 * time.Hour)
	}
	if err := tx.EnsureBalance(ctx, input.CompanyID, input.StockItemID); err != nil {
		return AdjustResult{}, err
	}
	balance, err := tx.GetBalanceForUpdate(ctx, input.CompanyID, input.StockItemID)
	if err != nil {
		return AdjustResult{}, err
	}
	if movement.HasReference() {
		existing, found, err := tx.FindMovement(ctx, movement.Key())
		if err != nil {
			return AdjustResult{}, err
		}
		if found {
			s.logger.Info("duplicate stock posting ignored", slog.String("key", movement.Key().String()))
			return AdjustResult{Movement: existing, Balance: balance, Duplicate: true}, nil
		}
	}
	rule.Unwind = unwind && movement.Type == MovementOut && input.UnitCost != nil
	next, cost, err := Apply(balance, rule)
	if err != nil {
		return AdjustResult{}, err
	}
	movement.UnitCost = cost
	inserted, ok, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return AdjustResult{}, err
	}
	if !ok {
		return AdjustResult{Movement: movement, Balance: balance, Duplicate: true}, nil
	}
	if err := tx.SaveBalance(ctx, next); err != nil {
		return AdjustResult{}, err
	}
	return AdjustResult{Movement: inserted, Balance: next}, nil
}

// IssueStock records an OUT or WASTAGE from site operations, refusing to
// drive on-hand negative unless the service allows it.
func (s *Service) IssueStock(ctx context.Context, input IssueInput) (AdjustResult, error) {
	if input.Type != MovementOut && input.Type != MovementWastage {
		return AdjustResult{}, fmt.Errorf("%w: issue accepts OUT or WASTAGE", ErrInvalidMovementType)
	}
	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if !s.allowNeg {
			if err := tx.EnsureBalance(ctx, input.CompanyID, input.StockItemID); err != nil {
				return err
			}
			balance, err := tx.GetBalanceForUpdate(ctx, input.CompanyID, input.StockItemID)
			if err != nil {
				return err
			}
			if balance.OnHandQty.Sub(input.Qty).IsNegative() {
				return ErrNegativeStock
			}
		}
		var err error
		result, err = s.adjust(ctx, tx, AdjustInput{
			CompanyID:    input.CompanyID,
			StockItemID:  input.StockItemID,
			Type:         input.Type,
			Qty:          input.Qty,
			MovementDate: input.MovementDate,
			ProjectID:    input.ProjectID,
			Notes:        input.Notes,
		}, false)
		return err
	})
	if err != nil {
		return AdjustResult{}, err
	}
	s.Publish(eventFor(result))
	s.recordAudit(ctx, input.ActorID, result)
	return result, nil
}

type receiptGroup struct {
	itemID int64
	qty    decimal.Decimal
	amount decimal.Decimal
}

// PostPurchaseReceipt posts one IN per stock item for the purchase's
// MATERIAL lines. Lines that cannot be resolved to an item or have a
// non-positive quantity are skipped and logged.
func (s *Service) PostPurchaseReceipt(ctx context.Context, tx TxRepository, p procurement.Purchase) (ReceiptResult, error) {
	var result ReceiptResult
	net := p.NetLineAmounts()
	var groups []*receiptGroup
	byItem := map[int64]*receiptGroup{}
	for i, line := range p.Lines {
		if line.LineType != procurement.LineMaterial {
			continue
		}
		if !line.Qty.IsPositive() {
			result.Skipped++
			s.logger.Warn("purchase line skipped: non-positive quantity", slog.Int64("purchase_id", p.ID), slog.Int("line", i+1))
			continue
		}
		item, err := s.resolveItem(ctx, tx, p.CompanyID, line)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				result.Skipped++
				s.logger.Warn("purchase line skipped: stock item not resolved", slog.Int64("purchase_id", p.ID), slog.Int("line", i+1), slog.String("item_name", line.ItemName))
				continue
			}
			return ReceiptResult{}, err
		}
		g, ok := byItem[item.ID]
		if !ok {
			g = &receiptGroup{itemID: item.ID}
			byItem[item.ID] = g
			groups = append(groups, g)
		}
		g.qty = g.qty.Add(line.Qty)
		g.amount = g.amount.Add(net[i])
	}
	refID := strconv.FormatInt(p.ID, 10)
	vendorID := p.VendorID
	for _, g := range groups {
		cost := g.amount.DivRound(g.qty, avgCostPlaces)
		res, err := s.adjust(ctx, tx, AdjustInput{
			CompanyID:     p.CompanyID,
			StockItemID:   g.itemID,
			Type:          MovementIn,
			Qty:           g.qty,
			UnitCost:      &cost,
			MovementDate:  p.InvoiceDate,
			ReferenceType: RefPurchaseVoucher,
			ReferenceID:   refID,
			ProjectID:     p.ProjectID,
			VendorID:      &vendorID,
			Notes:         fmt.Sprintf("Purchase %s", p.InvoiceNo),
		}, false)
		if err != nil {
			return ReceiptResult{}, fmt.Errorf("receive item %d: %w", g.itemID, err)
		}
		if res.Duplicate {
			result.Duplicates++
		} else {
			result.MovementsCreated++
		}
		result.Events = append(result.Events, eventFor(res))
	}
	return result, nil
}

func (s *Service) resolveItem(ctx context.Context, tx TxRepository, companyID int64, line procurement.PurchaseLine) (StockItem, error) {
	if line.StockItemID != nil {
		return tx.GetItem(ctx, companyID, *line.StockItemID)
	}
	normalized := shared.NormalizeName(line.ItemName)
	if normalized == "" {
		return StockItem{}, ErrItemNotFound
	}
	return tx.FindItemByName(ctx, companyID, normalized)
}

// ReversePurchaseReceipt posts a compensating OUT for every IN the purchase
// created. Each OUT carries the receipt cost so the average returns to its
// pre-receipt value.
func (s *Service) ReversePurchaseReceipt(ctx context.Context, tx TxRepository, p procurement.Purchase) (ReversalResult, error) {
	var result ReversalResult
	refID := strconv.FormatInt(p.ID, 10)
	originals, err := tx.ListMovementsByReference(ctx, p.CompanyID, RefPurchaseVoucher, refID)
	if err != nil {
		return ReversalResult{}, err
	}
	for _, orig := range originals {
		if orig.Type != MovementIn {
			continue
		}
		res, err := s.adjust(ctx, tx, AdjustInput{
			CompanyID:     orig.CompanyID,
			StockItemID:   orig.StockItemID,
			Type:          MovementOut,
			Qty:           orig.Qty,
			UnitCost:      orig.UnitCost,
			MovementDate:  s.now().UTC().Truncate(24 * time.Hour),
			ReferenceType: RefPurchaseReversal,
			ReferenceID:   refID,
			ProjectID:     orig.ProjectID,
			VendorID:      orig.VendorID,
			Notes:         fmt.Sprintf("Reversal of movement %d", orig.ID),
		}, true)
		if err != nil {
			return ReversalResult{}, fmt.Errorf("reverse movement %d: %w", orig.ID, err)
		}
		if res.Duplicate {
			result.Duplicates++
		} else {
			result.MovementsReversed++
		}
		result.Events = append(result.Events, eventFor(res))
	}
	return result, nil
}

// Publish forwards committed movement events to the observer.
func (s *Service) Publish(events ...MovementEvent) {
	if s.observer == nil {
		return
	}
	for _, evt := range events {
		s.observer.MovementApplied(evt)
	}
}

// RebuildBalances replays each item's journal and rewrites balance rows that
// drifted from it.
func (s *Service) RebuildBalances(ctx context.Context, companyID int64) (RebuildReport, error) {
	var report RebuildReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report = RebuildReport{}
		itemIDs, err := tx.ListItemIDs(ctx, companyID)
		if err != nil {
			return err
		}
		for _, itemID := range itemIDs {
			if err := tx.EnsureBalance(ctx, companyID, itemID); err != nil {
				return err
			}
			current, err := tx.GetBalanceForUpdate(ctx, companyID, itemID)
			if err != nil {
				return err
			}
			journal, err := tx.ListMovements(ctx, MovementFilter{CompanyID: companyID, StockItemID: itemID})
			if err != nil {
				return err
			}
			replayed, err := Replay(companyID, itemID, journal)
			if err != nil {
				return fmt.Errorf("replay item %d: %w", itemID, err)
			}
			report.ItemsChecked++
			if replayed.OnHandQty.Equal(current.OnHandQty) && replayed.AvgCost.Equal(current.AvgCost) {
				continue
			}
			if err := tx.SaveBalance(ctx, replayed); err != nil {
				return err
			}
			report.Corrected = append(report.Corrected, replayed)
		}
		return nil
	})
	if err != nil {
		return RebuildReport{}, err
	}
	if len(report.Corrected) > 0 {
		s.logger.Warn("stock balances rebuilt from journal", slog.Int64("company_id", companyID), slog.Int("corrected", len(report.Corrected)))
	}
	return report, nil
}

// ListBalances returns every balance of the company.
func (s *Service) ListBalances(ctx context.Context, companyID int64) ([]BalanceView, error) {
	return s.repo.Lookup().ListBalances(ctx, companyID)
}

// ListMovements returns journal entries.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.CompanyID <= 0 {
		return nil, shared.ErrCompanyRequired
	}
	if filter.Limit <= 0 {
		filter.Limit = 500
	}
	return s.repo.Lookup().ListMovements(ctx, filter)
}

// UpsertItem creates the item or returns the existing one with the same
// normalized name.
func (s *Service) UpsertItem(ctx context.Context, item StockItem) (StockItem, error) {
	item.Name = shared.CollapseSpaces(item.Name)
	item.NormalizedName = shared.NormalizeName(item.Name)
	if item.CompanyID <= 0 || item.NormalizedName == "" {
		return StockItem{}, errors.New("inventory: company and item name required")
	}
	var out StockItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, _, err = tx.UpsertItem(ctx, item)
		return err
	})
	return out, err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, result AdjustResult) {
	if s.audit == nil || result.Duplicate {
		return
	}
	m := result.Movement
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: m.CompanyID,
		ActorID:   actorID,
		Action:    fmt.Sprintf("inventory:%s", m.Type),
		Entity:    "stock_movement",
		EntityID:  strconv.FormatInt(m.ID, 10),
		Meta: map[string]any{
			"stock_item_id": m.StockItemID,
			"qty":           m.Qty.String(),
			"on_hand":       result.Balance.OnHandQty.String(),
			"avg_cost":      result.Balance.AvgCost.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
