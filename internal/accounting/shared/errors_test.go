package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("create voucher: %w", &LineError{Index: 2, AccountCode: "5010", Err: ErrAccountNotLeaf})
	require.ErrorIs(t, err, ErrAccountNotLeaf)

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	require.Equal(t, 2, lineErr.Index)
	require.Contains(t, err.Error(), "line 3 (account 5010)")
}

func TestMissingDefaultAccountErrorMatchesSentinel(t *testing.T) {
	err := &MissingDefaultAccountError{Purpose: "INVENTORY", Code: "1300", Reason: ErrAccountNotLeaf}
	require.ErrorIs(t, err, ErrMissingDefaultAccount)
	require.ErrorIs(t, err, ErrAccountNotLeaf)
	require.Contains(t, err.Error(), "1300")
}
