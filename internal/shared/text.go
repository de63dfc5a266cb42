package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeName trims, collapses internal whitespace and case-folds a name so
// that "  Portland   CEMENT " and "portland cement" compare equal.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return cases.Fold().String(strings.Join(fields, " "))
}

// CollapseSpaces trims and collapses whitespace without changing case.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
