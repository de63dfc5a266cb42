package mappings

import (
	"time"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

// Purpose names the role an account plays when vouchers are derived from
// purchases.
type Purpose string

const (
	PurposeInventory       Purpose = "INVENTORY"
	PurposeLabor           Purpose = "LABOR"
	PurposeOverhead        Purpose = "OVERHEAD"
	PurposePayment         Purpose = "PAYMENT"
	PurposeAccountsPayable Purpose = "ACCOUNTS_PAYABLE"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := DefaultCodes[p]
	return ok
}

// DefaultCodes are used when a company has no override.
var DefaultCodes = map[Purpose]string{
	PurposeInventory:       "1300",
	PurposeLabor:           "5020",
	PurposeOverhead:        "5030",
	PurposePayment:         "1010",
	PurposeAccountsPayable: "2010",
}

var purposeByLineType = map[procurement.LineType]Purpose{
	procurement.LineMaterial: PurposeInventory,
	procurement.LineService:  PurposeLabor,
	procurement.LineOther:    PurposeOverhead,
}

// PurposeForLineType maps a purchase line type to the debit purpose.
func PurposeForLineType(t procurement.LineType) (Purpose, bool) {
	p, ok := purposeByLineType[t]
	return p, ok
}

// AccountMapping is a company override of a purpose's account code.
type AccountMapping struct {
	CompanyID   int64
	Purpose     Purpose
	AccountCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
