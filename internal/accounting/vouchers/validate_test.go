package vouchers

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
)

func amt(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func debit(code, v string) LineInput  { return LineInput{AccountCode: code, Debit: amt(v)} }
func credit(code, v string) LineInput { return LineInput{AccountCode: code, Credit: amt(v)} }

func TestValidateBalance(t *testing.T) {
	cases := []struct {
		name  string
		lines []LineInput
		want  error
		index int
	}{
		{name: "balanced", lines: []LineInput{debit("1010", "1000"), credit("5010", "1000")}},
		{name: "within tolerance", lines: []LineInput{debit("1010", "100.004"), credit("5010", "100")}},
		{name: "unbalanced", lines: []LineInput{debit("1010", "1000"), credit("5010", "999")}, want: shared.ErrUnbalanced},
		{name: "difference equal to tolerance", lines: []LineInput{debit("1010", "100.01"), credit("5010", "100")}, want: shared.ErrUnbalanced},
		{name: "single line", lines: []LineInput{debit("1010", "10")}, want: shared.ErrInsufficientLines},
		{name: "both sides", lines: []LineInput{debit("1010", "10"), {AccountCode: "5010", Debit: amt("1"), Credit: amt("11")}}, want: shared.ErrBothDebitAndCredit, index: 1},
		{name: "negative", lines: []LineInput{debit("1010", "-10"), credit("5010", "-10")}, want: shared.ErrNegativeAmount},
		{name: "half cent rounds apart", lines: []LineInput{debit("1010", "100.005"), credit("5010", "100.00")}, want: shared.ErrUnbalanced},
		{name: "sub-cent line", lines: []LineInput{debit("1010", "0.004"), credit("5010", "0.001")}, want: shared.ErrZeroLine},
		{name: "zero line", lines: []LineInput{debit("1010", "10"), credit("5010", "10"), {AccountCode: "6010"}}, want: shared.ErrZeroLine, index: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBalance(tc.lines)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
			var lineErr *shared.LineError
			if errors.As(err, &lineErr) {
				require.Equal(t, tc.index, lineErr.Index)
				require.Equal(t, tc.lines[tc.index].AccountCode, lineErr.AccountCode)
			}
		})
	}
}

func TestLifecycleTransitions(t *testing.T) {
	all := []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusPosted, StatusReversed}
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusSubmitted}:    true,
		{StatusSubmitted, StatusApproved}: true,
		{StatusApproved, StatusPosted}:    true,
		{StatusPosted, StatusReversed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	require.True(t, CanEdit(StatusDraft))
	require.False(t, CanEdit(StatusSubmitted))
	require.False(t, CanEdit(StatusPosted))
}

func TestReverseLinesSwapsSides(t *testing.T) {
	vendor := int64(9)
	lines := []Line{
		{AccountID: 1, AccountCode: "1300", Debit: amt("290")},
		{AccountID: 2, AccountCode: "2010", Credit: amt("290"), VendorID: &vendor},
	}
	reversed := ReverseLines(lines)
	require.Len(t, reversed, 2)
	require.True(t, reversed[0].Credit.Equal(amt("290")))
	require.True(t, reversed[0].Debit.IsZero())
	require.True(t, reversed[1].Debit.Equal(amt("290")))
	require.Equal(t, &vendor, reversed[1].VendorID)
	require.NoError(t, ValidateBalance(reversed))
}

func TestVoucherNumberFormat(t *testing.T) {
	require.Equal(t, "V-2024-000001", FormatVoucherNo(2024, 1))
	require.Equal(t, "V-2024-1234567", FormatVoucherNo(2024, 1234567))
	require.Equal(t, 2025, NumberYear(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	year, seq, ok := ParseVoucherNo("V-2024-000042")
	require.True(t, ok)
	require.Equal(t, 2024, year)
	require.EqualValues(t, 42, seq)

	for _, bad := range []string{"", "J-2024-000001", "V-24-000001", "V-2024-", "V-2024-abc", "V-2024-000000"} {
		_, _, ok := ParseVoucherNo(bad)
		require.False(t, ok, bad)
	}
}
