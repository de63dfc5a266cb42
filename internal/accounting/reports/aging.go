package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

// AgeInDays counts whole days from invoiceDate to asOf. Future invoices are
// zero days old.
func AgeInDays(invoiceDate, asOf time.Time) int {
	a := time.Date(invoiceDate.Year(), invoiceDate.Month(), invoiceDate.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Add places amount into the bucket for age.
func (b *AgingBuckets) Add(age int, amount decimal.Decimal) {
	switch {
	case age <= 30:
		b.D0To30 = b.D0To30.Add(amount)
	case age <= 60:
		b.D31To60 = b.D31To60.Add(amount)
	case age <= 90:
		b.D61To90 = b.D61To90.Add(amount)
	default:
		b.D90Plus = b.D90Plus.Add(amount)
	}
}

// Total sums all buckets.
func (b AgingBuckets) Total() decimal.Decimal {
	return b.D0To30.Add(b.D31To60).Add(b.D61To90).Add(b.D90Plus)
}

// AgePayables buckets the outstanding part of each purchase. A purchase with
// nothing due only adds to TotalPaid; reversed purchases are left out.
func AgePayables(vendorID int64, purchases []procurement.Purchase, asOf time.Time) PayablesAging {
	result := PayablesAging{
		VendorID:  vendorID,
		AsOf:      asOf,
		TotalDue:  decimal.Zero,
		TotalPaid: decimal.Zero,
		Buckets: AgingBuckets{
			D0To30: decimal.Zero, D31To60: decimal.Zero, D61To90: decimal.Zero, D90Plus: decimal.Zero,
		},
		Items: []AgingItem{},
	}
	sorted := append([]procurement.Purchase(nil), purchases...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].InvoiceDate.Before(sorted[j].InvoiceDate) })
	for _, p := range sorted {
		if p.VendorID != vendorID || p.Reversed() {
			continue
		}
		paid := p.PaidAmount.Round(2)
		due := p.Due()
		item := AgingItem{
			PurchaseID:  p.ID,
			InvoiceNo:   p.InvoiceNo,
			InvoiceDate: p.InvoiceDate,
			AgeDays:     AgeInDays(p.InvoiceDate, asOf),
			Total:       p.Total(),
			Paid:        paid,
			Due:         due,
		}
		result.Items = append(result.Items, item)
		result.TotalPaid = result.TotalPaid.Add(paid)
		if !due.IsPositive() {
			continue
		}
		result.Buckets.Add(item.AgeDays, due)
		result.TotalDue = result.TotalDue.Add(due)
	}
	return result
}
