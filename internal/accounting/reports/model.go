package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange bounds a report by voucher date, both ends inclusive. A zero end
// is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// LedgerScope selects the lines a running balance is computed over. Exactly
// one of AccountID and VendorID is set.
type LedgerScope struct {
	CompanyID int64
	AccountID int64
	VendorID  int64
}

// PostedLine is a voucher line of a POSTED or REVERSED voucher.
type PostedLine struct {
	VoucherID   int64
	VoucherNo   string
	Date        time.Time
	LineID      int64
	AccountID   int64
	AccountCode string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// LedgerLine is a posted line with the balance after it.
type LedgerLine struct {
	Date        time.Time       `json:"date"`
	VoucherID   int64           `json:"voucher_id"`
	VoucherNo   string          `json:"voucher_no"`
	LineID      int64           `json:"line_id"`
	AccountCode string          `json:"account_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AccountLedger is the running balance of one account.
type AccountLedger struct {
	AccountID      int64           `json:"account_id"`
	AccountCode    string          `json:"account_code"`
	AccountName    string          `json:"account_name"`
	CreditPositive bool            `json:"credit_positive"`
	Opening        decimal.Decimal `json:"opening"`
	Lines          []LedgerLine    `json:"lines"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	Closing        decimal.Decimal `json:"closing"`
}

// VendorLedger is the payable running balance of one vendor.
type VendorLedger struct {
	VendorID    int64           `json:"vendor_id"`
	Opening     decimal.Decimal `json:"opening"`
	Lines       []LedgerLine    `json:"lines"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Closing     decimal.Decimal `json:"closing"`
}

// AgingBuckets splits outstanding payables by age in days.
type AgingBuckets struct {
	D0To30  decimal.Decimal `json:"d0_30"`
	D31To60 decimal.Decimal `json:"d31_60"`
	D61To90 decimal.Decimal `json:"d61_90"`
	D90Plus decimal.Decimal `json:"d90_plus"`
}

// AgingItem is one invoice considered by the aging.
type AgingItem struct {
	PurchaseID  int64           `json:"purchase_id"`
	InvoiceNo   string          `json:"invoice_no"`
	InvoiceDate time.Time       `json:"invoice_date"`
	AgeDays     int             `json:"age_days"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Due         decimal.Decimal `json:"due"`
}

// PayablesAging summarises what a company owes a vendor.
type PayablesAging struct {
	VendorID  int64           `json:"vendor_id"`
	AsOf      time.Time       `json:"as_of"`
	Buckets   AgingBuckets    `json:"buckets"`
	TotalDue  decimal.Decimal `json:"total_due"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Items     []AgingItem     `json:"items"`
}

// CostFilter narrows a project cost summary.
type CostFilter struct {
	Range           DateRange
	IncludeOverhead bool
}

// ExpenseLine is a posted expense line tagged to a project.
type ExpenseLine struct {
	VoucherID   int64
	Date        time.Time
	AccountName string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CategoryCost is one row of a cost summary.
type CategoryCost struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CostSummary aggregates a project's costs by category.
type CostSummary struct {
	ProjectID         int64            `json:"project_id"`
	ByCategory        []CategoryCost   `json:"by_category"`
	GrandTotal        decimal.Decimal  `json:"grand_total"`
	AllocatedOverhead *decimal.Decimal `json:"allocated_overhead,omitempty"`
}

// AccountTotals are posted debit/credit sums of one account.
type AccountTotals struct {
	AccountID  int64
	Code       string
	Name       string
	Type       string
	OpenDebit  decimal.Decimal
	OpenCredit decimal.Decimal
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}
