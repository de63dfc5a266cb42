package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

const transitionModule = "voucher"

// StockPoster is the stock valuation side of purchase posting.
type StockPoster interface {
	PostPurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReceiptResult, error)
	ReversePurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReversalResult, error)
	Publish(events ...inventory.MovementEvent)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log common.AuditLog) error
}

// Observer is notified after a status change committed.
type Observer interface {
	VoucherTransitioned(companyID int64, from, to string)
}

// CacheBumper invalidates cached ledger reports of a company.
type CacheBumper interface {
	Bump(ctx context.Context, companyID int64) error
}

// Service orchestrates voucher workflows.
type Service struct {
	repo     Repository
	stock    StockPoster
	audit    AuditPort
	observer Observer
	cache    CacheBumper
	logger   *slog.Logger
	now      func() time.Time
}

// Deps groups optional collaborators.
type Deps struct {
	Stock    StockPoster
	Audit    AuditPort
	Observer Observer
	Cache    CacheBumper
}

// NewService builds Service.
func NewService(repo Repository, deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		stock:    deps.Stock,
		audit:    deps.Audit,
		observer: deps.Observer,
		cache:    deps.Cache,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock used for posting and reversal dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Repository exposes the underlying repository for callers composing a
// larger transaction.
func (s *Service) Repository() Repository {
	return s.repo
}

// AllocateVoucherNumber reserves the next number for the company and the year
// of date.
func (s *Service) AllocateVoucherNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	var no string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		no, err = allocateNumber(ctx, tx, companyID, date)
		return err
	})
	return no, err
}

func allocateNumber(ctx context.Context, tx TxRepository, companyID int64, date time.Time) (string, error) {
	if companyID <= 0 {
		return "", common.ErrCompanyRequired
	}
	year := NumberYear(date)
	seq, err := tx.NextSequence(ctx, companyID, year)
	if err != nil {
		return "", err
	}
	return FormatVoucherNo(year, seq), nil
}

// CreateVoucher validates and stores a DRAFT voucher in its own transaction.
func (s *Service) CreateVoucher(ctx context.Context, input CreateInput) (Voucher, error) {
	var created Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.CreateVoucherTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Voucher{}, err
	}
	s.recordAudit(ctx, input.ActorID, "voucher:create", created, nil)
	return created, nil
}

// CreateVoucherTx stores a DRAFT voucher using the caller's transaction.
func (s *Service) CreateVoucherTx(ctx context.Context, tx TxRepository, input CreateInput) (Voucher, error) {
	if input.CompanyID <= 0 {
		return Voucher{}, common.ErrCompanyRequired
	}
	if input.Type == "" {
		input.Type = TypeJournal
	}
	if !input.Type.Valid() {
		return Voucher{}, fmt.Errorf("vouchers: unknown type %q", input.Type)
	}
	if input.Date.IsZero() {
		return Voucher{}, errors.New("vouchers: date required")
	}
	lines, err := prepareLines(ctx, tx.Accounts(), input.CompanyID, input.Lines)
	if err != nil {
		return Voucher{}, err
	}
	no, err := allocateNumber(ctx, tx, input.CompanyID, input.Date)
	if err != nil {
		return Voucher{}, err
	}
	v, err := tx.InsertVoucher(ctx, Voucher{
		CompanyID:  input.CompanyID,
		VoucherNo:  no,
		Date:       input.Date,
		Type:       input.Type,
		Status:     StatusDraft,
		ProjectID:  input.ProjectID,
		Narration:  input.Narration,
		PurchaseID: input.PurchaseID,
		SourceRef:  input.SourceRef,
		CreatedBy:  input.ActorID,
	})
	if err != nil {
		return Voucher{}, err
	}
	if v.Lines, err = tx.InsertLines(ctx, v, lines); err != nil {
		return Voucher{}, err
	}
	err = tx.RecordTransition(ctx, common.TransitionLog{
		Module:  transitionModule,
		RefID:   v.ID,
		ActorID: input.ActorID,
		To:      string(StatusDraft),
	})
	if err != nil {
		return Voucher{}, err
	}
	return v, nil
}

// prepareLines validates balance, then resolves every line to a postable
// account. Lines may name the account by id or by code.
func prepareLines(ctx context.Context, store accounts.TxRepository, companyID int64, lines []LineInput) ([]LineInput, error) {
	if err := ValidateBalance(lines); err != nil {
		return nil, err
	}
	out := make([]LineInput, len(lines))
	for i, line := range lines {
		id := line.AccountID
		if id == 0 && line.AccountCode != "" {
			a, err := store.FindByCode(ctx, companyID, accounts.NormalizeCode(line.AccountCode))
			if err != nil {
				if errors.Is(err, shared.ErrAccountNotFound) {
					err = shared.ErrAccountInactiveOrMissing
				}
				return nil, &shared.LineError{Index: i, AccountCode: line.AccountCode, Err: err}
			}
			id = a.ID
		}
		a, err := accounts.EnsurePostable(ctx, store, companyID, id)
		if err != nil {
			return nil, &shared.LineError{Index: i, AccountCode: line.AccountCode, Err: err}
		}
		line = RoundLine(line)
		line.AccountID = a.ID
		line.AccountCode = a.Code
		out[i] = line
	}
	return out, nil
}

// UpdateDraft replaces header fields and lines of a DRAFT voucher.
func (s *Service) UpdateDraft(ctx context.Context, input UpdateInput) (Voucher, error) {
	if input.Type == "" {
		input.Type = TypeJournal
	}
	if !input.Type.Valid() {
		return Voucher{}, fmt.Errorf("vouchers: unknown type %q", input.Type)
	}
	var updated Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucher(ctx, input.CompanyID, input.VoucherID, true)
		if err != nil {
			return err
		}
		if !CanEdit(v.Status) {
			return shared.ErrNotEditable
		}
		lines, err := prepareLines(ctx, tx.Accounts(), input.CompanyID, input.Lines)
		if err != nil {
			return err
		}
		if !input.Date.IsZero() {
			v.Date = input.Date
		}
		v.Type = input.Type
		v.ProjectID = input.ProjectID
		v.Narration = input.Narration
		if err := tx.UpdateHeader(ctx, v); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, v.CompanyID, v.ID); err != nil {
			return err
		}
		if v.Lines, err = tx.InsertLines(ctx, v, lines); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.recordAudit(ctx, input.ActorID, "voucher:update", updated, nil)
	return updated, nil
}

// DeleteDraft removes a DRAFT voucher and its lines.
func (s *Service) DeleteDraft(ctx context.Context, companyID, voucherID, actorID int64) error {
	var deleted Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucher(ctx, companyID, voucherID, true)
		if err != nil {
			return err
		}
		if !CanEdit(v.Status) {
			return shared.ErrNotEditable
		}
		deleted = v
		return tx.DeleteVoucher(ctx, companyID, voucherID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "voucher:delete", deleted, nil)
	return nil
}

// TransitionStatus moves a voucher one lifecycle step. Posting a purchase
// voucher receives its stock; reversing it inserts the reversing voucher and
// compensating stock movements, all in the same transaction.
func (s *Service) TransitionStatus(ctx context.Context, input TransitionInput) (TransitionResult, error) {
	var result TransitionResult
	var events []inventory.MovementEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = TransitionResult{}
		events = events[:0]
		v, err := tx.GetVoucher(ctx, input.CompanyID, input.VoucherID, true)
		if err != nil {
			return err
		}
		if !CanTransition(v.Status, input.Target) {
			return fmt.Errorf("%w: %s to %s", shared.ErrInvalidTransition, v.Status, input.Target)
		}
		result.From = v.Status
		now := s.now()

		switch input.Target {
		case StatusPosted:
			if v.PurchaseID != nil {
				p, err := s.loadPurchase(ctx, tx, v)
				if err != nil {
					return err
				}
				receipt, err := s.stock.PostPurchaseReceipt(ctx, tx.Stock(), p)
				if err != nil {
					return fmt.Errorf("post stock receipt: %w", err)
				}
				events = append(events, receipt.Events...)
			}
			if err := tx.UpdateStatus(ctx, v.CompanyID, v.ID, StatusPosted, &now); err != nil {
				return err
			}
			v.PostedAt = &now
		case StatusReversed:
			reversal, err := s.insertReversal(ctx, tx, v, input.ActorID, now)
			if err != nil {
				return err
			}
			result.Reversal = &reversal
			if v.PurchaseID != nil {
				p, err := s.loadPurchase(ctx, tx, v)
				if err != nil {
					return err
				}
				rev, err := s.stock.ReversePurchaseReceipt(ctx, tx.Stock(), p)
				if err != nil {
					return fmt.Errorf("reverse stock receipt: %w", err)
				}
				events = append(events, rev.Events...)
			}
			if err := tx.UpdateStatus(ctx, v.CompanyID, v.ID, StatusReversed, nil); err != nil {
				return err
			}
		default:
			if err := tx.UpdateStatus(ctx, v.CompanyID, v.ID, input.Target, nil); err != nil {
				return err
			}
		}
		v.Status = input.Target
		result.Voucher = v
		return tx.RecordTransition(ctx, common.TransitionLog{
			Module:  transitionModule,
			RefID:   v.ID,
			ActorID: input.ActorID,
			From:    string(result.From),
			To:      string(input.Target),
			Note:    input.Note,
			At:      now,
		})
	})
	if err != nil {
		return TransitionResult{}, err
	}

	s.afterTransition(ctx, input, result, events)
	return result, nil
}

func (s *Service) loadPurchase(ctx context.Context, tx TxRepository, v Voucher) (procurement.Purchase, error) {
	if s.stock == nil {
		return procurement.Purchase{}, errors.New("vouchers: stock poster not configured")
	}
	p, err := tx.Purchases().GetPurchase(ctx, v.CompanyID, *v.PurchaseID)
	if err != nil {
		return procurement.Purchase{}, fmt.Errorf("load purchase %d: %w", *v.PurchaseID, err)
	}
	return p, nil
}

func (s *Service) insertReversal(ctx context.Context, tx TxRepository, original Voucher, actorID int64, now time.Time) (Voucher, error) {
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	no, err := allocateNumber(ctx, tx, original.CompanyID, date)
	if err != nil {
		return Voucher{}, err
	}
	originalID := original.ID
	reversal, err := tx.InsertVoucher(ctx, Voucher{
		CompanyID:  original.CompanyID,
		VoucherNo:  no,
		Date:       date,
		Type:       original.Type,
		Status:     StatusReversed,
		ProjectID:  original.ProjectID,
		Narration:  "Reversal of " + original.VoucherNo,
		PurchaseID: original.PurchaseID,
		ReversalOf: &originalID,
		SourceRef:  original.SourceRef,
		CreatedBy:  actorID,
		PostedAt:   &now,
	})
	if err != nil {
		return Voucher{}, err
	}
	if reversal.Lines, err = tx.InsertLines(ctx, reversal, ReverseLines(original.Lines)); err != nil {
		return Voucher{}, err
	}
	err = tx.RecordTransition(ctx, common.TransitionLog{
		Module:  transitionModule,
		RefID:   reversal.ID,
		ActorID: actorID,
		To:      string(StatusReversed),
		Note:    "reversal of " + original.VoucherNo,
		At:      now,
	})
	if err != nil {
		return Voucher{}, err
	}
	return reversal, nil
}

func (s *Service) afterTransition(ctx context.Context, input TransitionInput, result TransitionResult, events []inventory.MovementEvent) {
	v := result.Voucher
	meta := map[string]any{"from": string(result.From), "to": string(v.Status)}
	if result.Reversal != nil {
		meta["reversal_id"] = result.Reversal.ID
		meta["reversal_no"] = result.Reversal.VoucherNo
	}
	s.recordAudit(ctx, input.ActorID, "voucher:"+string(v.Status), v, meta)
	if s.observer != nil {
		s.observer.VoucherTransitioned(v.CompanyID, string(result.From), string(v.Status))
	}
	if s.stock != nil && len(events) > 0 {
		s.stock.Publish(events...)
	}
	if v.Status != StatusPosted && v.Status != StatusReversed {
		return
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx, v.CompanyID); err != nil {
			s.logger.Warn("ledger cache bump failed", slog.Int64("company_id", v.CompanyID), slog.Any("error", err))
		}
	}
	s.logger.Info("voucher transitioned",
		slog.Int64("company_id", v.CompanyID),
		slog.String("voucher_no", v.VoucherNo),
		slog.String("from", string(result.From)),
		slog.String("to", string(v.Status)),
		slog.Int("stock_events", len(events)),
	)
}

// Get loads a voucher with its lines.
func (s *Service) Get(ctx context.Context, companyID, voucherID int64) (Voucher, error) {
	return s.repo.Lookup().GetVoucher(ctx, companyID, voucherID, false)
}

// History returns the status transitions of a voucher, oldest first.
func (s *Service) History(ctx context.Context, companyID, voucherID int64) ([]common.TransitionLog, error) {
	if companyID <= 0 {
		return nil, common.ErrCompanyRequired
	}
	lookup := s.repo.Lookup()
	if _, err := lookup.GetVoucher(ctx, companyID, voucherID, false); err != nil {
		return nil, err
	}
	return lookup.ListTransitions(ctx, voucherID)
}

// List returns voucher headers matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	if filter.CompanyID <= 0 {
		return nil, common.ErrCompanyRequired
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.Lookup().List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, v Voucher, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["voucher_no"] = v.VoucherNo
	meta["company_id"] = v.CompanyID
	err := s.audit.Record(ctx, common.AuditLog{
		CompanyID: v.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "voucher",
		EntityID:  strconv.FormatInt(v.ID, 10),
		Meta:      meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
