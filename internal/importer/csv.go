package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var headerAliases = map[string]string{
	"voucher":      "voucher_key",
	"voucher_key":  "voucher_key",
	"voucher_no":   "voucher_key",
	"date":         "date",
	"ref":          "reference",
	"reference":    "reference",
	"reference_no": "reference",
	"type":         "type",
	"account_id":   "account_id",
	"account_code": "account_code",
	"code":         "account_code",
	"account":      "account_name",
	"account_name": "account_name",
	"debit":        "debit",
	"credit":       "credit",
	"description":  "description",
	"memo":         "description",
	"narration":    "narration",
}

// ReadCSV parses a header-driven CSV. Unknown columns are ignored; blank lines
// are skipped. Row.Line is the 1-based data row number.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyImport
		}
		return nil, fmt.Errorf("importer: read header: %w", err)
	}
	columns := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if field, ok := headerAliases[name]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	_, hasDebit := columns["debit"]
	_, hasCredit := columns["credit"]
	if !hasDebit && !hasCredit {
		return nil, errors.New("importer: header needs a debit or credit column")
	}

	var rows []Row
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: read row %d: %w", line+1, err)
		}
		line++
		if blank(record) {
			continue
		}
		get := func(field string) string {
			idx, ok := columns[field]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		rows = append(rows, Row{
			Line:        line,
			VoucherKey:  get("voucher_key"),
			Date:        get("date"),
			Reference:   get("reference"),
			Type:        strings.ToUpper(get("type")),
			AccountID:   get("account_id"),
			AccountCode: get("account_code"),
			AccountName: get("account_name"),
			Debit:       get("debit"),
			Credit:      get("credit"),
			Description: get("description"),
			Narration:   get("narration"),
		})
	}
	if len(rows) == 0 {
		return nil, ErrEmptyImport
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
