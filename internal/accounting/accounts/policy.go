package accounts

import "strings"

// typeByPrefix maps the leading digit of an account code to its type.
var typeByPrefix = map[byte]AccountType{
	'1': AccountTypeAsset,
	'2': AccountTypeLiability,
	'3': AccountTypeEquity,
	'4': AccountTypeIncome,
	'5': AccountTypeExpense,
	'6': AccountTypeExpense,
}

// InferType derives the account type from the first digit of code.
// Unknown or empty prefixes fall back to EXPENSE.
func InferType(code string) AccountType {
	code = strings.TrimSpace(code)
	if code == "" {
		return AccountTypeExpense
	}
	if t, ok := typeByPrefix[code[0]]; ok {
		return t
	}
	return AccountTypeExpense
}

// NormalizeCode trims surrounding whitespace from an account code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}
