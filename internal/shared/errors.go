package shared

import "errors"

var (
	// ErrCompanyRequired occurs when a request carries no tenant scope.
	ErrCompanyRequired = errors.New("company scope required")
)
