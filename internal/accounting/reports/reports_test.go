package reports

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(y int, m time.Month, dd int) time.Time { return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC) }

type memoryStore struct {
	accounts  map[int64]accounts.Account
	lines     map[int64][]PostedLine
	vendor    map[int64][]PostedLine
	expenses  []ExpenseLine
	purchases []procurement.Purchase
	totals    []AccountTotals
	builds    atomic.Int32
}

func (m *memoryStore) Account(ctx context.Context, companyID, accountID int64) (accounts.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryStore) scoped(scope LedgerScope) []PostedLine {
	if scope.AccountID > 0 {
		return m.lines[scope.AccountID]
	}
	return m.vendor[scope.VendorID]
}

func (m *memoryStore) OpeningTotals(ctx context.Context, scope LedgerScope, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range m.scoped(scope) {
		if !before.IsZero() && l.Date.Before(before) {
			debit = debit.Add(l.Debit)
			credit = credit.Add(l.Credit)
		}
	}
	return debit, credit, nil
}

func (m *memoryStore) PostedLines(ctx context.Context, scope LedgerScope, rng DateRange) ([]PostedLine, error) {
	var out []PostedLine
	for _, l := range m.scoped(scope) {
		if rng.Contains(l.Date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryStore) ExpenseLines(ctx context.Context, companyID, projectID int64, rng DateRange) ([]ExpenseLine, error) {
	m.builds.Add(1)
	return m.expenses, nil
}

func (m *memoryStore) VendorPurchases(ctx context.Context, companyID, vendorID int64, asOf time.Time) ([]procurement.Purchase, error) {
	m.builds.Add(1)
	return m.purchases, nil
}

func (m *memoryStore) ProjectPurchases(ctx context.Context, companyID, projectID int64, rng DateRange) ([]procurement.Purchase, error) {
	return m.purchases, nil
}

func (m *memoryStore) AccountTotals(ctx context.Context, companyID int64, rng DateRange) ([]AccountTotals, error) {
	return m.totals, nil
}

type fixedOverhead struct{ amount decimal.Decimal }

func (f fixedOverhead) AllocatedOverhead(ctx context.Context, companyID, projectID int64, rng DateRange) (decimal.Decimal, error) {
	return f.amount, nil
}

func TestAccountRunningBalanceFollowsAccountType(t *testing.T) {
	store := &memoryStore{
		accounts: map[int64]accounts.Account{
			1: {ID: 1, Code: "1010", Name: "Cash", Type: accounts.AccountTypeAsset},
			2: {ID: 2, Code: "2010", Name: "Accounts Payable", Type: accounts.AccountTypeLiability},
		},
		lines: map[int64][]PostedLine{
			1: {
				{VoucherNo: "V-2024-000003", Date: day(2024, 2, 1), LineID: 9, Credit: d("300")},
				{VoucherNo: "V-2024-000001", Date: day(2024, 1, 5), LineID: 1, Debit: d("1000")},
				{VoucherNo: "V-2024-000002", Date: day(2024, 2, 1), LineID: 5, Debit: d("50")},
			},
			2: {
				{VoucherNo: "V-2024-000001", Date: day(2024, 1, 5), LineID: 2, Credit: d("400")},
				{VoucherNo: "V-2024-000004", Date: day(2024, 3, 1), LineID: 12, Debit: d("150")},
			},
		},
	}
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	cash, err := svc.AccountRunningBalance(ctx, 1, 1, DateRange{From: day(2024, 1, 10)})
	require.NoError(t, err)
	require.False(t, cash.CreditPositive)
	require.True(t, cash.Opening.Equal(d("1000")))
	require.Len(t, cash.Lines, 2)
	require.Equal(t, "V-2024-000002", cash.Lines[0].VoucherNo)
	require.True(t, cash.Lines[0].Balance.Equal(d("1050")))
	require.True(t, cash.Lines[1].Balance.Equal(d("750")))
	require.True(t, cash.Closing.Equal(d("750")))

	ap, err := svc.AccountRunningBalance(ctx, 1, 2, DateRange{})
	require.NoError(t, err)
	require.True(t, ap.CreditPositive)
	require.True(t, ap.Lines[0].Balance.Equal(d("400")))
	require.True(t, ap.Closing.Equal(d("250")))
	require.True(t, ap.TotalDebit.Equal(d("150")))

	_, err = svc.AccountRunningBalance(ctx, 1, 99, DateRange{})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestVendorRunningBalanceIsCreditPositive(t *testing.T) {
	store := &memoryStore{vendor: map[int64][]PostedLine{
		11: {
			{VoucherNo: "V-2024-000001", Date: day(2024, 1, 5), LineID: 2, Credit: d("190")},
			{VoucherNo: "V-2024-000007", Date: day(2024, 1, 20), LineID: 30, Debit: d("90")},
		},
	}}
	ledger, err := NewService(store, nil, nil, nil).VendorRunningBalance(context.Background(), 1, 11, DateRange{})
	require.NoError(t, err)
	require.True(t, ledger.Lines[0].Balance.Equal(d("190")))
	require.True(t, ledger.Closing.Equal(d("100")))
}

func TestAgePayablesKeepsItemsInOneBucket(t *testing.T) {
	asOf := day(2024, 6, 30)
	purchases := []procurement.Purchase{
		{ID: 1, VendorID: 11, InvoiceDate: asOf.AddDate(0, 0, -40), Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("500")}}},
		{ID: 2, VendorID: 11, InvoiceDate: asOf.AddDate(0, 0, -5), PaidAmount: d("80"), Lines: []procurement.PurchaseLine{{Qty: d("2"), UnitPrice: d("50")}}},
		{ID: 3, VendorID: 11, InvoiceDate: asOf.AddDate(0, 0, -200), PaidAmount: d("300"), Lines: []procurement.PurchaseLine{{Qty: d("3"), UnitPrice: d("100")}}},
		{ID: 4, VendorID: 11, InvoiceDate: asOf.AddDate(0, 0, -91), Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("70")}}},
		{ID: 5, VendorID: 11, InvoiceDate: asOf.AddDate(0, 0, 3), Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("10")}}},
		{ID: 6, VendorID: 12, InvoiceDate: asOf, Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("999")}}},
	}
	aging := AgePayables(11, purchases, asOf)

	require.True(t, aging.Buckets.D31To60.Equal(d("500")))
	require.True(t, aging.Buckets.D0To30.Equal(d("30")))
	require.True(t, aging.Buckets.D61To90.IsZero())
	require.True(t, aging.Buckets.D90Plus.Equal(d("70")))
	require.True(t, aging.TotalDue.Equal(d("600")))
	require.True(t, aging.TotalDue.Equal(aging.Buckets.Total()))
	require.True(t, aging.TotalPaid.Equal(d("380")))
	require.Len(t, aging.Items, 5)
	require.Equal(t, 0, aging.Items[len(aging.Items)-1].AgeDays)
}

func TestReversedPurchasesLeavePayablesAndCosts(t *testing.T) {
	asOf := day(2024, 6, 30)
	project := int64(3)
	purchases := []procurement.Purchase{
		{ID: 1, VendorID: 11, ProjectID: &project, InvoiceDate: asOf.AddDate(0, 0, -10), VoucherStatus: "POSTED",
			Lines: []procurement.PurchaseLine{{LineType: procurement.LineMaterial, Category: "Cement", Qty: d("1"), UnitPrice: d("500")}}},
		{ID: 2, VendorID: 11, ProjectID: &project, InvoiceDate: asOf.AddDate(0, 0, -10), VoucherStatus: procurement.VoucherStatusReversed,
			Lines: []procurement.PurchaseLine{{LineType: procurement.LineMaterial, Category: "Cement", Qty: d("1"), UnitPrice: d("300")}}},
	}

	aging := AgePayables(11, purchases, asOf)
	require.True(t, aging.TotalDue.Equal(d("500")))
	require.Len(t, aging.Items, 1)
	require.Equal(t, int64(1), aging.Items[0].PurchaseID)

	summary := SummarizeCosts(project, nil, purchases)
	require.True(t, summary.GrandTotal.Equal(d("500")))
}

func TestAgeBoundaries(t *testing.T) {
	asOf := day(2024, 6, 30)
	cases := map[int]string{0: "0", 30: "0", 31: "31", 60: "31", 61: "61", 90: "61", 91: "90+"}
	for age, want := range cases {
		var b AgingBuckets
		b.Add(AgeInDays(asOf.AddDate(0, 0, -age), asOf), d("1"))
		got := map[string]decimal.Decimal{"0": b.D0To30, "31": b.D31To60, "61": b.D61To90, "90+": b.D90Plus}
		require.True(t, got[want].Equal(d("1")), "age %d", age)
	}
}

func costStore() *memoryStore {
	return &memoryStore{
		expenses: []ExpenseLine{
			{AccountName: "Site Overhead", Debit: d("120")},
			{AccountName: "Labor", Debit: d("400")},
			{AccountName: "Labor", Credit: d("100")},
		},
		purchases: []procurement.Purchase{{
			ID: 1, Discount: d("10"),
			Lines: []procurement.PurchaseLine{
				{LineType: procurement.LineMaterial, Category: "Cement", Qty: d("10"), UnitPrice: d("10")},
				{LineType: procurement.LineService, Qty: d("1"), UnitPrice: d("100")},
			},
		}},
	}
}

func TestProjectCostSummary(t *testing.T) {
	svc := NewService(costStore(), nil, fixedOverhead{amount: d("25")}, nil)
	summary, err := svc.ProjectCostSummary(context.Background(), 1, 3, CostFilter{IncludeOverhead: true})
	require.NoError(t, err)

	got := map[string]string{}
	for _, c := range summary.ByCategory {
		got[c.Category] = c.Amount.StringFixed(2)
	}
	require.Equal(t, map[string]string{"Cement": "95.00", "Labor": "300.00", "SERVICE": "95.00", "Site Overhead": "120.00"}, got)
	require.Equal(t, "Cement", summary.ByCategory[0].Category)
	require.NotNil(t, summary.AllocatedOverhead)
	require.True(t, summary.GrandTotal.Equal(d("635")))

	summary, err = svc.ProjectCostSummary(context.Background(), 1, 3, CostFilter{})
	require.NoError(t, err)
	require.Nil(t, summary.AllocatedOverhead)
	require.True(t, summary.GrandTotal.Equal(d("610")))
}

func TestCachedReportsAreVersionedPerCompany(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := costStore()
	svc := NewService(store, NewCache(client, time.Minute), nil, nil)
	ctx := context.Background()

	first, err := svc.ProjectCostSummary(ctx, 1, 3, CostFilter{})
	require.NoError(t, err)
	second, err := svc.ProjectCostSummary(ctx, 1, 3, CostFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, store.builds.Load())
	require.True(t, first.GrandTotal.Equal(second.GrandTotal))

	require.NoError(t, svc.Bump(ctx, 2))
	_, err = svc.ProjectCostSummary(ctx, 1, 3, CostFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, store.builds.Load())

	require.NoError(t, svc.Bump(ctx, 1))
	_, err = svc.ProjectCostSummary(ctx, 1, 3, CostFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 2, store.builds.Load())

	ver, err := NewCache(client, time.Minute).Version(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}

func TestBumpAfterNewPurchaseRefreshesAging(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &memoryStore{}
	svc := NewService(store, NewCache(client, time.Minute), nil, nil)
	ctx := context.Background()
	asOf := day(2024, 6, 30)

	aging, err := svc.VendorPayablesAging(ctx, 1, 11, asOf)
	require.NoError(t, err)
	require.True(t, aging.TotalDue.IsZero())

	store.purchases = append(store.purchases, procurement.Purchase{ID: 9, VendorID: 11, InvoiceDate: day(2024, 6, 1),
		Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("500")}}})
	require.NoError(t, svc.Bump(ctx, 1))

	aging, err = svc.VendorPayablesAging(ctx, 1, 11, asOf)
	require.NoError(t, err)
	require.True(t, aging.TotalDue.Equal(d("500")))
}

func TestCacheOutageFallsBackToDirectBuild(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &memoryStore{purchases: []procurement.Purchase{
		{ID: 1, VendorID: 11, InvoiceDate: day(2024, 6, 1), Lines: []procurement.PurchaseLine{{Qty: d("1"), UnitPrice: d("40")}}},
	}}
	svc := NewService(store, NewCache(client, time.Minute), nil, nil)
	mr.Close()

	aging, err := svc.VendorPayablesAging(context.Background(), 1, 11, day(2024, 6, 30))
	require.NoError(t, err)
	require.True(t, aging.TotalDue.Equal(d("40")))
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance([]AccountTotals{
		{Code: "1010", Name: "Cash", Type: "ASSET", OpenDebit: d("1000"), Debit: d("200"), Credit: d("150")},
		{Code: "1300", Name: "Inventory", Type: "ASSET", Debit: d("290")},
		{Code: "2010", Name: "Accounts Payable", Type: "LIABILITY", OpenCredit: d("1000"), Debit: d("10"), Credit: d("350")},
		{Code: "6010", Name: "Unused", Type: "EXPENSE"},
	})
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "1", tb.Groups[0].Key)
	require.Len(t, tb.Groups[0].Accounts, 2)
	require.True(t, tb.TotalDebit.Equal(d("500")))
	require.True(t, tb.TotalCredit.Equal(d("500")))
	require.True(t, tb.TotalOpening.IsZero())
	require.True(t, tb.Balanced())
	require.True(t, tb.Groups[1].Closing.Equal(d("-1340")))
}
