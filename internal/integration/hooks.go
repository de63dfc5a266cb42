package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

// Ledger exposes the voucher operations the purchase workflow needs.
type Ledger interface {
	Repository() vouchers.Repository
	CreateVoucherTx(ctx context.Context, tx vouchers.TxRepository, input vouchers.CreateInput) (vouchers.Voucher, error)
	TransitionStatus(ctx context.Context, input vouchers.TransitionInput) (vouchers.TransitionResult, error)
}

// PurchaseFlow turns recorded purchases into ledger vouchers.
type PurchaseFlow struct {
	ledger Ledger
	logger *slog.Logger
}

// NewPurchaseFlow constructs the bridge.
func NewPurchaseFlow(ledger Ledger, logger *slog.Logger) *PurchaseFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseFlow{ledger: ledger, logger: logger}
}

// VoucherOutcome reports the voucher linked to a purchase and whether this
// call created it.
type VoucherOutcome struct {
	Voucher vouchers.Voucher
	Created bool
}

// SourceRef is the deterministic reference stored on a purchase voucher.
func SourceRef(companyID, purchaseID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PURCHASE:%d:%d", companyID, purchaseID))).String()
}

// EnsureVoucher creates the DRAFT voucher for a purchase. A purchase that
// already has a voucher gets it back unchanged.
func (f *PurchaseFlow) EnsureVoucher(ctx context.Context, companyID, purchaseID, actorID int64) (VoucherOutcome, error) {
	if f == nil || f.ledger == nil {
		return VoucherOutcome{}, errors.New("integration: ledger not configured")
	}
	if companyID <= 0 {
		return VoucherOutcome{}, common.ErrCompanyRequired
	}
	var out VoucherOutcome
	err := f.ledger.Repository().WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		out = VoucherOutcome{}
		existing, err := tx.FindByPurchase(ctx, companyID, purchaseID)
		if err == nil {
			out.Voucher = existing
			return nil
		}
		if !errors.Is(err, shared.ErrVoucherNotFound) {
			return err
		}
		p, err := tx.Purchases().GetPurchase(ctx, companyID, purchaseID)
		if err != nil {
			return err
		}
		draft, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		if err != nil {
			return err
		}
		draft.SourceRef = SourceRef(companyID, purchaseID)
		v, err := f.ledger.CreateVoucherTx(ctx, tx, vouchers.CreateInput{Draft: draft, ActorID: actorID})
		if err != nil {
			return err
		}
		out = VoucherOutcome{Voucher: v, Created: true}
		return nil
	})
	if err != nil {
		return VoucherOutcome{}, err
	}
	if out.Created {
		f.logger.Info("purchase voucher created",
			slog.Int64("company_id", companyID),
			slog.Int64("purchase_id", purchaseID),
			slog.String("voucher_no", out.Voucher.VoucherNo))
	}
	return out, nil
}

// PostPurchase ensures the purchase voucher exists and walks it to POSTED,
// which books the stock receipt. Steps already taken are skipped.
func (f *PurchaseFlow) PostPurchase(ctx context.Context, companyID, purchaseID, actorID int64) (VoucherOutcome, error) {
	out, err := f.EnsureVoucher(ctx, companyID, purchaseID, actorID)
	if err != nil {
		return VoucherOutcome{}, err
	}
	steps, err := pathToPosted(out.Voucher.Status)
	if err != nil {
		return out, err
	}
	for _, target := range steps {
		res, err := f.ledger.TransitionStatus(ctx, vouchers.TransitionInput{
			CompanyID: companyID,
			VoucherID: out.Voucher.ID,
			Target:    target,
			ActorID:   actorID,
			Note:      "purchase workflow",
		})
		if err != nil {
			return out, fmt.Errorf("purchase %d to %s: %w", purchaseID, target, err)
		}
		out.Voucher = res.Voucher
	}
	return out, nil
}
