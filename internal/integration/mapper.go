package integration

import (
	"fmt"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
)

var lifecycle = []vouchers.Status{vouchers.StatusDraft, vouchers.StatusSubmitted, vouchers.StatusApproved, vouchers.StatusPosted}

// pathToPosted lists the transitions that take a voucher from status to POSTED.
func pathToPosted(status vouchers.Status) ([]vouchers.Status, error) {
	for i, s := range lifecycle {
		if s == status {
			return lifecycle[i+1:], nil
		}
	}
	return nil, fmt.Errorf("%w: voucher is %s", shared.ErrInvalidTransition, status)
}
