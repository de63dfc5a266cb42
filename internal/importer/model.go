package importer

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
)

// Row is one parsed line of an import file. Amount and date columns are kept
// raw until validation.
type Row struct {
	Line        int    `validate:"gte=0"`
	VoucherKey  string `validate:"max=64"`
	Date        string
	Reference   string `validate:"max=64"`
	Type        string `validate:"max=16"`
	AccountID   string `validate:"omitempty,number"`
	AccountCode string `validate:"max=32"`
	AccountName string `validate:"max=200"`
	Debit       string
	Credit      string
	Description string `validate:"max=500"`
	Narration   string `validate:"max=1000"`
}

// KeyStrategy selects how rows are grouped into vouchers.
type KeyStrategy string

const (
	// KeyAuto uses the voucher key column, else (date, reference), else one
	// voucher per row, decided row by row.
	KeyAuto          KeyStrategy = "auto"
	KeyVoucherColumn KeyStrategy = "voucher_key"
	KeyDateReference KeyStrategy = "date_reference"
	KeyPerRow        KeyStrategy = "per_row"
)

// Valid reports whether s is a known strategy.
func (s KeyStrategy) Valid() bool {
	switch s {
	case KeyAuto, KeyVoucherColumn, KeyDateReference, KeyPerRow:
		return true
	}
	return false
}

// Group is the set of rows that become one voucher.
type Group struct {
	Key  string
	Rows []Row
}

// Severity classifies an issue.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

// Issue codes.
const (
	IssueUnbalanced     = "unbalanced"
	IssueTooFewLines    = "too_few_lines"
	IssueBothSides      = "both_debit_and_credit"
	IssueNoAmount       = "no_amount"
	IssueInvalidAmount  = "invalid_amount"
	IssueInvalidDate    = "invalid_date"
	IssueInvalidRow     = "invalid_row"
	IssueUnresolvedAcct = "unresolved_account"
	IssueInactiveAcct   = "inactive_account"
	IssueGroupAcct      = "group_account"
	IssueUnknownType    = "unknown_type"
	IssueMixedDates     = "mixed_dates"
)

// Issue is one finding of validation.
type Issue struct {
	Group    string   `json:"group"`
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// ValidatedRow is a row with parsed amounts and its account resolution.
type ValidatedRow struct {
	Row        Row                 `json:"row"`
	Debit      decimal.Decimal     `json:"debit"`
	Credit     decimal.Decimal     `json:"credit"`
	Resolution accounts.Resolution `json:"resolution"`
}

// ValidatedGroup is a candidate voucher.
type ValidatedGroup struct {
	Key         string               `json:"key"`
	Date        time.Time            `json:"date"`
	Type        vouchers.VoucherType `json:"type"`
	Narration   string               `json:"narration,omitempty"`
	Rows        []ValidatedRow       `json:"rows"`
	TotalDebit  decimal.Decimal      `json:"total_debit"`
	TotalCredit decimal.Decimal      `json:"total_credit"`
	Issues      []Issue              `json:"issues"`
}

// Blocking reports whether the group has a blocking issue.
func (g ValidatedGroup) Blocking() bool {
	for _, is := range g.Issues {
		if is.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// ValidationResult is the preview of an import.
type ValidationResult struct {
	CompanyID int64            `json:"company_id"`
	Strategy  KeyStrategy      `json:"strategy"`
	Groups    []ValidatedGroup `json:"groups"`
	RowCount  int              `json:"row_count"`
	Blocking  int              `json:"blocking"`
	Warnings  int              `json:"warnings"`
}

// HasBlocking reports whether any group cannot be committed.
func (r ValidationResult) HasBlocking() bool {
	return r.Blocking > 0
}

// CommitInput commits a validated import.
type CommitInput struct {
	CompanyID          int64
	BatchID            uuid.UUID
	Result             ValidationResult
	AutoCreateAccounts bool
	ActorID            int64
}

// CommitResult reports what a commit created.
type CommitResult struct {
	BatchID         uuid.UUID          `json:"batch_id"`
	Vouchers        []vouchers.Voucher `json:"-"`
	VoucherNos      []string           `json:"voucher_nos"`
	AccountsCreated []string           `json:"accounts_created"`
}

var (
	// ErrBlockingIssues indicates a commit of a result that has blocking issues.
	ErrBlockingIssues = errors.New("importer: validation has blocking issues")
	// ErrUnresolvedAccount indicates a row whose account could not be resolved
	// or created.
	ErrUnresolvedAccount = errors.New("importer: unresolved account")
	// ErrBatchCommitted indicates the batch id was committed before.
	ErrBatchCommitted = errors.New("importer: batch already committed")
	// ErrEmptyImport indicates no rows were supplied.
	ErrEmptyImport = errors.New("importer: no rows")
	// ErrUnknownStrategy indicates an unsupported grouping strategy.
	ErrUnknownStrategy = errors.New("importer: unknown key strategy")
)
