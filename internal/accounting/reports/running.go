package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
)

// CreditPositive reports whether balances of t grow with credits.
func CreditPositive(t accounts.AccountType) bool {
	return !t.DebitNormal()
}

// SortPostedLines orders lines by date, voucher number and line id.
func SortPostedLines(lines []PostedLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.VoucherNo != b.VoucherNo {
			return a.VoucherNo < b.VoucherNo
		}
		return a.LineID < b.LineID
	})
}

// signed turns a debit/credit pair into a balance movement.
func signed(debit, credit decimal.Decimal, creditPositive bool) decimal.Decimal {
	if creditPositive {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// RunningBalance walks lines in ledger order starting from opening.
func RunningBalance(opening decimal.Decimal, lines []PostedLine, creditPositive bool) (out []LedgerLine, totalDebit, totalCredit, closing decimal.Decimal) {
	SortPostedLines(lines)
	balance := opening
	totalDebit, totalCredit = decimal.Zero, decimal.Zero
	out = make([]LedgerLine, 0, len(lines))
	for _, l := range lines {
		balance = balance.Add(signed(l.Debit, l.Credit, creditPositive))
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
		out = append(out, LedgerLine{
			Date:        l.Date,
			VoucherID:   l.VoucherID,
			VoucherNo:   l.VoucherNo,
			LineID:      l.LineID,
			AccountCode: l.AccountCode,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Balance:     balance,
		})
	}
	return out, totalDebit, totalCredit, balance
}
