package vouchers

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
)

// BalanceTolerance is the largest debit/credit difference treated as balanced.
var BalanceTolerance = decimal.New(1, -2)

// amountPlaces is the precision amounts are stored with.
const amountPlaces = 2

// RoundLine rounds debit and credit to the stored precision.
func RoundLine(line LineInput) LineInput {
	line.Debit = line.Debit.Round(amountPlaces)
	line.Credit = line.Credit.Round(amountPlaces)
	return line
}

// ValidateBalance checks line count, each line's amounts and that the
// voucher balances. Amounts are checked as they will be stored, rounded to
// cents. Line errors carry the line index and account code.
func ValidateBalance(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.ErrInsufficientLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for i, line := range lines {
		line = RoundLine(line)
		if err := validateLine(line); err != nil {
			return &shared.LineError{Index: i, AccountCode: line.AccountCode, Err: err}
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit.Sub(credit).Abs().GreaterThanOrEqual(BalanceTolerance) {
		return shared.ErrUnbalanced
	}
	return nil
}

func validateLine(line LineInput) error {
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return shared.ErrNegativeAmount
	}
	if line.Debit.IsPositive() && line.Credit.IsPositive() {
		return shared.ErrBothDebitAndCredit
	}
	if line.Debit.IsZero() && line.Credit.IsZero() {
		return shared.ErrZeroLine
	}
	return nil
}

// CanEdit reports whether a voucher in status may be changed or deleted.
func CanEdit(status Status) bool {
	return status == StatusDraft
}

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved},
	StatusApproved:  {StatusPosted},
	StatusPosted:    {StatusReversed},
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReverseLines swaps debit and credit on every line.
func ReverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			AccountID:       l.AccountID,
			AccountCode:     l.AccountCode,
			Debit:           l.Credit,
			Credit:          l.Debit,
			Description:     l.Description,
			ProjectID:       l.ProjectID,
			VendorID:        l.VendorID,
			PaymentMethodID: l.PaymentMethodID,
		})
	}
	return out
}
