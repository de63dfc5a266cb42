package importer

import (
	"strconv"
	"strings"
)

// GroupRowsIntoVouchers partitions rows into candidate vouchers. Groups keep
// the order in which their first row appeared.
func GroupRowsIntoVouchers(rows []Row, strategy KeyStrategy) []Group {
	if !strategy.Valid() {
		strategy = KeyAuto
	}
	index := make(map[string]int)
	var groups []Group
	for i, row := range rows {
		key := groupKey(row, i, strategy)
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, Group{Key: key})
		}
		groups[idx].Rows = append(groups[idx].Rows, row)
	}
	return groups
}

func groupKey(row Row, pos int, strategy KeyStrategy) string {
	voucherKey := strings.TrimSpace(row.VoucherKey)
	date := strings.TrimSpace(row.Date)
	ref := strings.TrimSpace(row.Reference)
	perRow := "row:" + strconv.Itoa(rowNumber(row, pos))

	switch strategy {
	case KeyVoucherColumn:
		if voucherKey != "" {
			return "key:" + voucherKey
		}
		return perRow
	case KeyDateReference:
		if date != "" && ref != "" {
			return "ref:" + date + "|" + ref
		}
		return perRow
	case KeyPerRow:
		return perRow
	}
	switch {
	case voucherKey != "":
		return "key:" + voucherKey
	case date != "" && ref != "":
		return "ref:" + date + "|" + ref
	default:
		return perRow
	}
}

func rowNumber(row Row, pos int) int {
	if row.Line > 0 {
		return row.Line
	}
	return pos + 1
}
