package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an issue to site.
	MovementOut MovementType = "OUT"
	// MovementAdjust is a signed manual correction.
	MovementAdjust MovementType = "ADJUST"
	// MovementWastage records spoiled or lost material.
	MovementWastage MovementType = "WASTAGE"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjust, MovementWastage:
		return true
	}
	return false
}

// Reference types written on movements created by the engine.
const (
	RefPurchaseVoucher  = "PURCHASE_VOUCHER"
	RefPurchaseReversal = "PURCHASE_REVERSAL"
	RefOpeningStock     = "OPENING_STOCK"
)

// ReservedReference reports whether ref is written only by the engine's own
// purchase and opening stock postings.
func ReservedReference(ref string) bool {
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case RefPurchaseVoucher, RefPurchaseReversal, RefOpeningStock:
		return true
	}
	return false
}

// StockItem is a material tracked per company.
type StockItem struct {
	ID             int64
	CompanyID      int64
	Name           string
	NormalizedName string
	Unit           string
	Category       string
	ReorderLevel   decimal.NullDecimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance is the materialised on-hand quantity and weighted average cost.
type Balance struct {
	CompanyID   int64
	StockItemID int64
	OnHandQty   decimal.Decimal
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Value is on-hand quantity times average cost.
func (b Balance) Value() decimal.Decimal {
	return b.OnHandQty.Mul(b.AvgCost)
}

// BalanceView joins a balance with its item for listings.
type BalanceView struct {
	Balance
	ItemName string
	Unit     string
	Category string
}

// Movement is one append-only journal entry.
type Movement struct {
	ID            int64
	CompanyID     int64
	StockItemID   int64
	MovementDate  time.Time
	Type          MovementType
	Qty           decimal.Decimal
	UnitCost      *decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ProjectID     *int64
	VendorID      *int64
	Notes         string
	CreatedAt     time.Time
}

// HasReference reports whether the movement carries an idempotency reference.
func (m Movement) HasReference() bool {
	return m.ReferenceType != "" && m.ReferenceID != ""
}

// MovementKey identifies a movement for idempotency.
type MovementKey struct {
	CompanyID     int64
	StockItemID   int64
	Type          MovementType
	ReferenceType string
	ReferenceID   string
}

func (k MovementKey) String() string {
	return fmt.Sprintf("%d:%d:%s:%s:%s", k.CompanyID, k.StockItemID, k.Type, k.ReferenceType, k.ReferenceID)
}

// Key returns the idempotency key of m.
func (m Movement) Key() MovementKey {
	return MovementKey{CompanyID: m.CompanyID, StockItemID: m.StockItemID, Type: m.Type, ReferenceType: m.ReferenceType, ReferenceID: m.ReferenceID}
}

// AdjustInput describes one movement to apply.
type AdjustInput struct {
	CompanyID     int64
	StockItemID   int64
	Type          MovementType
	Qty           decimal.Decimal
	UnitCost      *decimal.Decimal
	MovementDate  time.Time
	ReferenceType string
	ReferenceID   string
	ProjectID     *int64
	VendorID      *int64
	Notes         string
	ActorID       int64
}

// AdjustResult is the outcome of AdjustStock. Duplicate is set when the
// reference was already posted; the balance is then left untouched.
type AdjustResult struct {
	Movement  Movement
	Balance   Balance
	Duplicate bool
}

// IssueInput is an OUT or WASTAGE request from site operations.
type IssueInput struct {
	CompanyID    int64
	StockItemID  int64
	Type         MovementType
	Qty          decimal.Decimal
	MovementDate time.Time
	ProjectID    *int64
	Notes        string
	ActorID      int64
}

// ReceiptResult summarises PostPurchaseReceipt.
type ReceiptResult struct {
	MovementsCreated int
	Duplicates       int
	Skipped          int
	Events           []MovementEvent
}

// ReversalResult summarises ReversePurchaseReceipt.
type ReversalResult struct {
	MovementsReversed int
	Duplicates        int
	Events            []MovementEvent
}

// OpeningStockRow is one quick-entry row.
type OpeningStockRow struct {
	Date     string          `validate:"required,datetime=2006-01-02"`
	Name     string          `validate:"required"`
	Unit     string          `validate:"max=32"`
	Category string          `validate:"max=64"`
	Qty      decimal.Decimal `validate:"-"`
	UnitCost decimal.Decimal `validate:"-"`
}

// OpeningStockInput scopes a batch to a project, or to the whole company
// when ProjectID is nil.
// A BatchID makes each quick-entry submission its own posting; without one a
// scope holds a single opening movement per item.
type OpeningStockInput struct {
	CompanyID int64
	ProjectID *int64
	BatchID   uuid.UUID
	Rows      []OpeningStockRow
	ActorID   int64
}

// Scope is the reference id written on the opening movements.
func (in OpeningStockInput) Scope() string {
	scope := fmt.Sprintf("company:%d", in.CompanyID)
	if in.ProjectID != nil {
		scope = fmt.Sprintf("project:%d", *in.ProjectID)
	}
	if in.BatchID != uuid.Nil {
		scope += ":batch:" + in.BatchID.String()
	}
	return scope
}

// OpeningStockResult reports what the batch did.
type OpeningStockResult struct {
	ItemsCreated     int
	MovementsCreated int
	Duplicates       int
	Merged           int
}

// RowError pins a validation failure to an input row.
type RowError struct {
	Row     int
	Field   string
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d %s: %s", e.Row+1, e.Field, e.Message)
}

// BatchError carries every row failure of a rejected batch.
type BatchError struct {
	Rows []RowError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		msgs = append(msgs, r.Error())
	}
	return "inventory: batch rejected: " + strings.Join(msgs, "; ")
}

// Is matches ErrInvalidBatch.
func (e *BatchError) Is(target error) bool { return target == ErrInvalidBatch }

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	CompanyID   int64
	StockItemID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// RebuildReport lists balances rewritten from the journal.
type RebuildReport struct {
	ItemsChecked int
	Corrected    []Balance
}

var (
	// ErrNegativeStock triggered when an issue would drive on-hand below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: unknown movement type")
	// ErrDuplicatePosting marks an idempotency hit for callers that prefer an error.
	ErrDuplicatePosting = errors.New("inventory: movement already posted")
	// ErrItemNotFound indicates missing stock item.
	ErrItemNotFound = errors.New("inventory: stock item not found")
	// ErrInvalidBatch indicates a rejected opening stock batch.
	ErrInvalidBatch = errors.New("inventory: invalid batch")
	// ErrOpeningConflict rejects opening stock that differs from what the scope
	// already posted for an item.
	ErrOpeningConflict = errors.New("inventory: opening stock already posted with different figures")
	// ErrReservedReference rejects manual movements using an engine reference type.
	ErrReservedReference = errors.New("inventory: reference type is reserved")
)
