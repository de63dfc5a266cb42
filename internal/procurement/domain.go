package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LineType classifies a purchase line for account mapping and stock receipt.
type LineType string

const (
	LineMaterial LineType = "MATERIAL"
	LineService  LineType = "SERVICE"
	LineOther    LineType = "OTHER"
)

// Valid reports whether t is a known line type.
func (t LineType) Valid() bool {
	return t == LineMaterial || t == LineService || t == LineOther
}

// Purchase is the vendor invoice as recorded by the purchase workflow.
type Purchase struct {
	ID                 int64
	CompanyID          int64
	VendorID           int64
	ProjectID          *int64
	InvoiceNo          string
	InvoiceDate        time.Time
	Discount           decimal.Decimal
	PaidAmount         decimal.Decimal
	PaymentAccountCode string
	Lines              []PurchaseLine
	CreatedAt          time.Time
	// VoucherStatus is the status of the voucher booked for the purchase,
	// empty while none exists.
	VoucherStatus string
}

// VoucherStatusReversed marks a purchase whose voucher was reversed.
const VoucherStatusReversed = "REVERSED"

// Reversed reports whether the purchase's voucher was reversed. Reversed
// purchases no longer count as payable or as project cost.
func (p Purchase) Reversed() bool {
	return p.VoucherStatus == VoucherStatusReversed
}

// PurchaseLine is one invoiced line.
type PurchaseLine struct {
	ID          int64
	PurchaseID  int64
	LineType    LineType
	StockItemID *int64
	ItemName    string
	Category    string
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Amount is qty times unit price, before discount.
func (l PurchaseLine) Amount() decimal.Decimal {
	return l.Qty.Mul(l.UnitPrice)
}

// Subtotal sums line amounts before discount.
func (p Purchase) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Total is the invoice amount after discount, rounded to cents.
func (p Purchase) Total() decimal.Decimal {
	return p.Subtotal().Sub(p.Discount).Round(2)
}

// Due is the unpaid remainder of the invoice.
func (p Purchase) Due() decimal.Decimal {
	return p.Total().Sub(p.PaidAmount.Round(2))
}

// NetLineAmounts prorates the purchase discount across lines by amount and
// returns each line's net amount rounded to cents. The last line with a
// non-zero amount absorbs rounding so the result sums to Total.
func (p Purchase) NetLineAmounts() []decimal.Decimal {
	out := make([]decimal.Decimal, len(p.Lines))
	subtotal := p.Subtotal()
	last := -1
	for i, l := range p.Lines {
		if !l.Amount().IsZero() {
			last = i
		}
	}
	for i, l := range p.Lines {
		amount := l.Amount()
		share := decimal.Zero
		if !subtotal.IsZero() && i != last {
			share = p.Discount.Mul(amount).Div(subtotal).Round(2)
		}
		out[i] = amount.Round(2).Sub(share)
	}
	if last >= 0 {
		out[last] = p.Total()
		for i, v := range out {
			if i != last {
				out[last] = out[last].Sub(v)
			}
		}
	}
	return out
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: purchase not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)
