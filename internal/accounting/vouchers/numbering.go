package vouchers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const numberPrefix = "V-"

// FormatVoucherNo renders V-YYYY-NNNNNN.
func FormatVoucherNo(year int, seq int64) string {
	return fmt.Sprintf("V-%04d-%06d", year, seq)
}

// ParseVoucherNo extracts year and sequence from a formatted number.
func ParseVoucherNo(no string) (int, int64, bool) {
	rest, ok := strings.CutPrefix(no, numberPrefix)
	if !ok {
		return 0, 0, false
	}
	yearPart, seqPart, ok := strings.Cut(rest, "-")
	if !ok || len(yearPart) != 4 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, false
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq <= 0 {
		return 0, 0, false
	}
	return year, seq, true
}

// YearPrefix is the LIKE prefix of every number issued in year.
func YearPrefix(year int) string {
	return fmt.Sprintf("V-%04d-", year)
}

// NumberYear is the numbering year of a voucher date.
func NumberYear(date time.Time) int {
	return date.Year()
}
