package vouchers

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherType classifies the business document behind a voucher.
type VoucherType string

const (
	TypeJournal VoucherType = "JOURNAL"
	TypePayment VoucherType = "PAYMENT"
	TypeReceipt VoucherType = "RECEIPT"
	TypeContra  VoucherType = "CONTRA"
)

// Valid reports whether t is a known voucher type.
func (t VoucherType) Valid() bool {
	switch t {
	case TypeJournal, TypePayment, TypeReceipt, TypeContra:
		return true
	}
	return false
}

// Status enumerates voucher lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
	StatusReversed  Status = "REVERSED"
)

// Voucher is a double-entry document.
type Voucher struct {
	ID         int64
	CompanyID  int64
	VoucherNo  string
	Date       time.Time
	Type       VoucherType
	Status     Status
	ProjectID  *int64
	Narration  string
	PurchaseID *int64
	ReversalOf *int64
	SourceRef  string
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	PostedAt   *time.Time
	Lines      []Line
}

// TotalDebit sums line debits.
func (v Voucher) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums line credits.
func (v Voucher) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Line stores a debit or credit against a leaf account.
type Line struct {
	ID              int64
	VoucherID       int64
	LineNo          int
	AccountID       int64
	AccountCode     string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Description     string
	ProjectID       *int64
	VendorID        *int64
	PaymentMethodID *int64
}

// LineInput describes a line in a create or update request.
type LineInput struct {
	AccountID       int64
	AccountCode     string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Description     string
	ProjectID       *int64
	VendorID        *int64
	PaymentMethodID *int64
}

// Draft is a voucher ready to be created.
type Draft struct {
	CompanyID  int64
	Date       time.Time
	Type       VoucherType
	ProjectID  *int64
	Narration  string
	PurchaseID *int64
	SourceRef  string
	Lines      []LineInput
}

// CreateInput groups fields required to create a voucher.
type CreateInput struct {
	Draft
	ActorID int64
}

// UpdateInput replaces a draft's header and lines.
type UpdateInput struct {
	CompanyID int64
	VoucherID int64
	Date      time.Time
	Type      VoucherType
	ProjectID *int64
	Narration string
	Lines     []LineInput
	ActorID   int64
}

// TransitionInput moves a voucher along its lifecycle.
type TransitionInput struct {
	CompanyID int64
	VoucherID int64
	Target    Status
	ActorID   int64
	Note      string
}

// TransitionResult reports the voucher after the transition and, for a
// reversal, the new reversing voucher.
type TransitionResult struct {
	Voucher  Voucher
	Reversal *Voucher
	From     Status
}

// ListFilter narrows List.
type ListFilter struct {
	CompanyID  int64
	Status     Status
	ProjectID  int64
	PurchaseID int64
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
