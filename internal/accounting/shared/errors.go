package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalanced indicates |debit - credit| reached the tolerance.
	ErrUnbalanced = errors.New("accounting: voucher lines must balance")
	// ErrInsufficientLines indicates less than two lines.
	ErrInsufficientLines = errors.New("accounting: voucher requires at least two lines")
	// ErrInvalidTransition indicates a status change outside the lifecycle.
	ErrInvalidTransition = errors.New("accounting: invalid status transition")
	// ErrAccountNotLeaf indicates a posting against a group account.
	ErrAccountNotLeaf = errors.New("accounting: account has children and cannot receive postings")
	// ErrAccountInactiveOrMissing indicates an unknown or disabled account.
	ErrAccountInactiveOrMissing = errors.New("accounting: account is inactive or missing")
	// ErrMissingDefaultAccount indicates a purpose mapping points nowhere usable.
	ErrMissingDefaultAccount = errors.New("accounting: default account missing")
	// ErrNotBalanced indicates lines derived from a purchase do not balance.
	ErrNotBalanced = errors.New("accounting: derived voucher does not balance")
	// ErrBothDebitAndCredit indicates a line carrying both sides.
	ErrBothDebitAndCredit = errors.New("accounting: line cannot be both debit and credit")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("accounting: line amounts must not be negative")
	// ErrZeroLine indicates a line with neither debit nor credit.
	ErrZeroLine = errors.New("accounting: line requires a debit or credit amount")
	// ErrNotEditable indicates mutation of a non-draft voucher.
	ErrNotEditable = errors.New("accounting: voucher is not editable")
	// ErrVoucherNotFound indicates missing voucher.
	ErrVoucherNotFound = errors.New("accounting: voucher not found")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrMappingNotFound indicates no purpose mapping exists.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
)

// LineError pins a validation failure to a voucher line.
type LineError struct {
	Index       int
	AccountCode string
	Err         error
}

func (e *LineError) Error() string {
	if e.AccountCode != "" {
		return fmt.Sprintf("line %d (account %s): %v", e.Index+1, e.AccountCode, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Index+1, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// MissingDefaultAccountError names the purpose and code that could not be used.
type MissingDefaultAccountError struct {
	Purpose string
	Code    string
	Reason  error
}

func (e *MissingDefaultAccountError) Error() string {
	msg := fmt.Sprintf("accounting: default account %s for %s is not usable", e.Code, e.Purpose)
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	return msg
}

// Is matches ErrMissingDefaultAccount.
func (e *MissingDefaultAccountError) Is(target error) bool {
	return target == ErrMissingDefaultAccount
}

func (e *MissingDefaultAccountError) Unwrap() error { return e.Reason }
