package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

// SummarizeCosts groups posted expense lines by account name and purchase
// lines by category, falling back to the line type. Reversed purchases are
// skipped.
func SummarizeCosts(projectID int64, expenses []ExpenseLine, purchases []procurement.Purchase) CostSummary {
	totals := map[string]decimal.Decimal{}
	add := func(category string, amount decimal.Decimal) {
		category = strings.TrimSpace(category)
		if category == "" {
			category = "Uncategorized"
		}
		totals[category] = totals[category].Add(amount)
	}
	for _, e := range expenses {
		add(e.AccountName, e.Debit.Sub(e.Credit))
	}
	for _, p := range purchases {
		if p.Reversed() {
			continue
		}
		net := p.NetLineAmounts()
		for i, line := range p.Lines {
			category := line.Category
			if strings.TrimSpace(category) == "" {
				category = string(line.LineType)
			}
			add(category, net[i])
		}
	}

	summary := CostSummary{ProjectID: projectID, GrandTotal: decimal.Zero, ByCategory: make([]CategoryCost, 0, len(totals))}
	for category, amount := range totals {
		summary.ByCategory = append(summary.ByCategory, CategoryCost{Category: category, Amount: amount})
		summary.GrandTotal = summary.GrandTotal.Add(amount)
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Category < summary.ByCategory[j].Category
	})
	return summary
}
