package inventory

import "github.com/shopspring/decimal"

const (
	avgCostPlaces = 6
	qtyPlaces     = 4
)

// CostRule carries the parts of a movement the costing rules look at.
type CostRule struct {
	Type     MovementType
	Qty      decimal.Decimal
	UnitCost *decimal.Decimal
	// Unwind treats an OUT as the exact inverse of an earlier IN at UnitCost,
	// restoring the average that IN replaced.
	Unwind bool
}

// RuleFor derives the costing rule of a journal movement. Reversal OUTs unwind
// their receipt; AdjustStock refuses that reference type, so only
// ReversePurchaseReceipt writes them.
func RuleFor(m Movement) CostRule {
	return CostRule{
		Type:     m.Type,
		Qty:      m.Qty,
		UnitCost: m.UnitCost,
		Unwind:   m.Type == MovementOut && m.ReferenceType == RefPurchaseReversal && m.UnitCost != nil,
	}
}

// Validate checks quantity sign and cost for the movement type.
func (r CostRule) Validate() error {
	if !r.Type.Valid() {
		return ErrInvalidMovementType
	}
	switch r.Type {
	case MovementAdjust:
		if r.Qty.IsZero() {
			return ErrInvalidQuantity
		}
	default:
		if !r.Qty.IsPositive() {
			return ErrInvalidQuantity
		}
	}
	if r.UnitCost != nil && r.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}

// Apply returns the balance after the movement and the unit cost to record on
// it. A nil recorded cost means the movement did not carry one.
//
// IN moves the average to (q*avg + qty*cost)/(q+qty), or zero when the new
// quantity is not positive; a missing cost receives at the current average.
// OUT and WASTAGE keep the average. ADJUST is signed: a positive delta with a
// cost behaves like IN, without a cost it only moves quantity, and a negative
// delta behaves like OUT.
func Apply(b Balance, r CostRule) (Balance, *decimal.Decimal, error) {
	if err := r.Validate(); err != nil {
		return b, nil, err
	}
	qty := r.Qty.Round(qtyPlaces)
	switch r.Type {
	case MovementIn:
		cost := b.AvgCost
		if r.UnitCost != nil {
			cost = *r.UnitCost
		}
		return receive(b, qty, cost), &cost, nil
	case MovementOut, MovementWastage:
		if r.Unwind {
			return unwind(b, qty, *r.UnitCost), r.UnitCost, nil
		}
		cost := b.AvgCost
		b.OnHandQty = b.OnHandQty.Sub(qty)
		return b, &cost, nil
	case MovementAdjust:
		if qty.IsPositive() {
			if r.UnitCost != nil {
				cost := *r.UnitCost
				return receive(b, qty, cost), &cost, nil
			}
			b.OnHandQty = b.OnHandQty.Add(qty)
			return b, nil, nil
		}
		cost := b.AvgCost
		b.OnHandQty = b.OnHandQty.Add(qty)
		return b, &cost, nil
	}
	return b, nil, ErrInvalidMovementType
}

func receive(b Balance, qty, cost decimal.Decimal) Balance {
	newQty := b.OnHandQty.Add(qty)
	if !newQty.IsPositive() {
		b.OnHandQty = newQty
		b.AvgCost = decimal.Zero
		return b
	}
	total := b.OnHandQty.Mul(b.AvgCost).Add(qty.Mul(cost))
	b.AvgCost = clampCost(total.DivRound(newQty, avgCostPlaces))
	b.OnHandQty = newQty
	return b
}

func unwind(b Balance, qty, cost decimal.Decimal) Balance {
	newQty := b.OnHandQty.Sub(qty)
	if newQty.IsPositive() {
		total := b.OnHandQty.Mul(b.AvgCost).Sub(qty.Mul(cost))
		b.AvgCost = clampCost(total.DivRound(newQty, avgCostPlaces))
	}
	b.OnHandQty = newQty
	return b
}

func clampCost(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Replay folds a movement journal into a balance using the same rules as
// live postings.
func Replay(companyID, itemID int64, movements []Movement) (Balance, error) {
	b := Balance{CompanyID: companyID, StockItemID: itemID}
	for _, m := range movements {
		next, _, err := Apply(b, RuleFor(m))
		if err != nil {
			return b, err
		}
		b = next
	}
	return b, nil
}
