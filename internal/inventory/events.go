package inventory

import "github.com/shopspring/decimal"

// MovementEvent describes a movement after it was applied, or found to be a
// duplicate of an earlier posting.
type MovementEvent struct {
	CompanyID     int64
	StockItemID   int64
	Type          MovementType
	Qty           decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Duplicate     bool
}

// Observer receives movement events once the enclosing transaction committed.
type Observer interface {
	MovementApplied(evt MovementEvent)
}

func eventFor(res AdjustResult) MovementEvent {
	return MovementEvent{
		CompanyID:     res.Movement.CompanyID,
		StockItemID:   res.Movement.StockItemID,
		Type:          res.Movement.Type,
		Qty:           res.Movement.Qty,
		ReferenceType: res.Movement.ReferenceType,
		ReferenceID:   res.Movement.ReferenceID,
		Duplicate:     res.Duplicate,
	}
}
