package vouchers

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

// BuildVoucherFromPurchase derives the journal for a purchase invoice. Each
// line's discounted amount is debited to the account mapped for its line
// type, merged per account; the paid part is credited to the payment account
// and the remainder to accounts payable.
func BuildVoucherFromPurchase(ctx context.Context, tx TxRepository, p procurement.Purchase) (Draft, error) {
	if p.CompanyID <= 0 {
		return Draft{}, fmt.Errorf("%w: purchase company required", shared.ErrNotBalanced)
	}
	resolved := make(map[string]accounts.Account)
	account := func(purpose mappings.Purpose, code string) (accounts.Account, error) {
		if code == "" {
			var err error
			if code, err = mappings.CodeFor(ctx, tx.Mappings(), p.CompanyID, purpose); err != nil {
				return accounts.Account{}, err
			}
		}
		if a, ok := resolved[code]; ok {
			return a, nil
		}
		a, err := mappings.PostableAccount(ctx, tx.Accounts(), p.CompanyID, purpose, code)
		if err != nil {
			return accounts.Account{}, err
		}
		resolved[code] = a
		return a, nil
	}

	var lines []LineInput
	debitIndex := make(map[int64]int)
	for i, net := range p.NetLineAmounts() {
		if net.IsZero() {
			continue
		}
		line := p.Lines[i]
		purpose, ok := mappings.PurposeForLineType(line.LineType)
		if !ok {
			return Draft{}, fmt.Errorf("%w: line %d has unknown type %q", shared.ErrNotBalanced, i+1, line.LineType)
		}
		a, err := account(purpose, "")
		if err != nil {
			return Draft{}, err
		}
		if idx, seen := debitIndex[a.ID]; seen {
			lines[idx].Debit = lines[idx].Debit.Add(net)
			continue
		}
		debitIndex[a.ID] = len(lines)
		lines = append(lines, LineInput{
			AccountID:   a.ID,
			AccountCode: a.Code,
			Debit:       net,
			Credit:      decimal.Zero,
			Description: purchaseLabel(p),
			ProjectID:   p.ProjectID,
		})
	}

	vendorID := p.VendorID
	paid := p.PaidAmount.Round(2)
	if paid.IsPositive() {
		a, err := account(mappings.PurposePayment, p.PaymentAccountCode)
		if err != nil {
			return Draft{}, err
		}
		lines = append(lines, LineInput{
			AccountID:   a.ID,
			AccountCode: a.Code,
			Credit:      paid,
			Description: "Paid " + purchaseLabel(p),
			ProjectID:   p.ProjectID,
		})
	}
	if due := p.Due(); !due.IsZero() {
		a, err := account(mappings.PurposeAccountsPayable, "")
		if err != nil {
			return Draft{}, err
		}
		lines = append(lines, LineInput{
			AccountID:   a.ID,
			AccountCode: a.Code,
			Credit:      due,
			Description: "Payable " + purchaseLabel(p),
			ProjectID:   p.ProjectID,
			VendorID:    &vendorID,
		})
	}

	if err := ValidateBalance(lines); err != nil {
		return Draft{}, fmt.Errorf("%w: %w", shared.ErrNotBalanced, err)
	}
	purchaseID := p.ID
	return Draft{
		CompanyID:  p.CompanyID,
		Date:       p.InvoiceDate,
		Type:       TypeJournal,
		ProjectID:  p.ProjectID,
		Narration:  purchaseLabel(p),
		PurchaseID: &purchaseID,
		Lines:      lines,
	}, nil
}

func purchaseLabel(p procurement.Purchase) string {
	if p.InvoiceNo != "" {
		return "Purchase " + p.InvoiceNo
	}
	return fmt.Sprintf("Purchase #%d", p.ID)
}
