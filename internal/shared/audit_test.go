package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	entry := AuditLog{CompanyID: 1, Action: "voucher:posted", Entity: "voucher", EntityID: "9"}
	require.NoError(t, entry.Validate())

	missingCompany := entry
	missingCompany.CompanyID = 0
	require.ErrorIs(t, missingCompany.Validate(), ErrCompanyRequired)

	missingEntity := entry
	missingEntity.EntityID = ""
	require.Error(t, missingEntity.Validate())
}

func TestAuditLoggerRequiresQuerier(t *testing.T) {
	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{CompanyID: 1}))
}
