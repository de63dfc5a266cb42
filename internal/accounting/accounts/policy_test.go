package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferTypeFromCodePrefix(t *testing.T) {
	cases := map[string]AccountType{
		"1010":  AccountTypeAsset,
		" 2010": AccountTypeLiability,
		"3100":  AccountTypeEquity,
		"4010":  AccountTypeIncome,
		"5010":  AccountTypeExpense,
		"6200":  AccountTypeExpense,
		"7000":  AccountTypeExpense,
		"X-1":   AccountTypeExpense,
		"":      AccountTypeExpense,
	}
	for code, want := range cases {
		require.Equal(t, want, InferType(code), "code %q", code)
	}
}

func TestDefaultChartTypesFollowPolicy(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range DefaultChart {
		require.False(t, seen[def.Code], "duplicate code %s", def.Code)
		seen[def.Code] = true
		require.True(t, InferType(def.Code).Valid())
	}
	require.Equal(t, AccountTypeAsset, InferType("1300"))
	require.Equal(t, AccountTypeLiability, InferType("2010"))
}

func TestDebitNormal(t *testing.T) {
	require.True(t, AccountTypeAsset.DebitNormal())
	require.True(t, AccountTypeExpense.DebitNormal())
	require.False(t, AccountTypeLiability.DebitNormal())
	require.False(t, AccountTypeEquity.DebitNormal())
	require.False(t, AccountTypeIncome.DebitNormal())
}
