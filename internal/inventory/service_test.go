package inventory

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/procurement"
	"github.com/odyssey-erp/sitebooks/internal/shared"
)

type memoryRepo struct {
	balances  map[string]Balance
	movements []Movement
	items     []StockItem
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func key(companyID, itemID int64) string {
	return fmt.Sprintf("%d:%d", companyID, itemID)
}

// WithTx hands the callback a copy and only keeps it on success, so a failed
// batch leaves no trace.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	draft := r.clone()
	if err := fn(ctx, draft); err != nil {
		return err
	}
	*r = *draft
	return nil
}

func (r *memoryRepo) Lookup() TxRepository { return r }

func (r *memoryRepo) clone() *memoryRepo {
	c := &memoryRepo{balances: make(map[string]Balance, len(r.balances)), nextID: r.nextID}
	for k, v := range r.balances {
		c.balances[k] = v
	}
	c.movements = append([]Movement(nil), r.movements...)
	c.items = append([]StockItem(nil), r.items...)
	return c
}

func (r *memoryRepo) addItem(companyID int64, name string) StockItem {
	r.nextID++
	item := StockItem{ID: r.nextID, CompanyID: companyID, Name: name, NormalizedName: shared.NormalizeName(name), IsActive: true}
	r.items = append(r.items, item)
	return item
}

func (r *memoryRepo) EnsureBalance(ctx context.Context, companyID, itemID int64) error {
	if _, ok := r.balances[key(companyID, itemID)]; !ok {
		r.balances[key(companyID, itemID)] = Balance{CompanyID: companyID, StockItemID: itemID}
	}
	return nil
}

func (r *memoryRepo) GetBalanceForUpdate(ctx context.Context, companyID, itemID int64) (Balance, error) {
	b, ok := r.balances[key(companyID, itemID)]
	if !ok {
		return Balance{}, fmt.Errorf("balance missing")
	}
	return b, nil
}

func (r *memoryRepo) SaveBalance(ctx context.Context, b Balance) error {
	r.balances[key(b.CompanyID, b.StockItemID)] = b
	return nil
}

func (r *memoryRepo) FindMovement(ctx context.Context, k MovementKey) (Movement, bool, error) {
	for _, m := range r.movements {
		if m.HasReference() && m.Key() == k {
			return m, true, nil
		}
	}
	return Movement{}, false, nil
}

func (r *memoryRepo) InsertMovement(ctx context.Context, m Movement) (Movement, bool, error) {
	if m.HasReference() {
		if _, found, _ := r.FindMovement(ctx, m.Key()); found {
			return Movement{}, false, nil
		}
	}
	r.nextID++
	m.ID = r.nextID
	r.movements = append(r.movements, m)
	return m, true, nil
}

func (r *memoryRepo) ListMovementsByReference(ctx context.Context, companyID int64, refType, refID string) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.CompanyID == companyID && m.ReferenceType == refType && m.ReferenceID == refID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, companyID, itemID int64) (StockItem, error) {
	for _, it := range r.items {
		if it.CompanyID == companyID && it.ID == itemID {
			return it, nil
		}
	}
	return StockItem{}, ErrItemNotFound
}

func (r *memoryRepo) FindItemByName(ctx context.Context, companyID int64, normalizedName string) (StockItem, error) {
	for _, it := range r.items {
		if it.CompanyID == companyID && it.NormalizedName == normalizedName {
			return it, nil
		}
	}
	return StockItem{}, ErrItemNotFound
}

func (r *memoryRepo) UpsertItem(ctx context.Context, item StockItem) (StockItem, bool, error) {
	if item.NormalizedName == "" {
		item.NormalizedName = shared.NormalizeName(item.Name)
	}
	if existing, err := r.FindItemByName(ctx, item.CompanyID, item.NormalizedName); err == nil {
		return existing, false, nil
	}
	r.nextID++
	item.ID = r.nextID
	item.IsActive = true
	r.items = append(r.items, item)
	return item, true, nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, companyID int64) ([]BalanceView, error) {
	var out []BalanceView
	for _, b := range r.balances {
		if b.CompanyID == companyID {
			out = append(out, BalanceView{Balance: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockItemID < out[j].StockItemID })
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.CompanyID == filter.CompanyID && (filter.StockItemID == 0 || m.StockItemID == filter.StockItemID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListItemIDs(ctx context.Context, companyID int64) ([]int64, error) {
	var ids []int64
	for _, it := range r.items {
		if it.CompanyID == companyID {
			ids = append(ids, it.ID)
		}
	}
	return ids, nil
}

type recordingObserver struct {
	events []MovementEvent
}

func (o *recordingObserver) MovementApplied(evt MovementEvent) {
	o.events = append(o.events, evt)
}

func newTestService(repo *memoryRepo, cfg ServiceConfig) (*Service, *recordingObserver) {
	obs := &recordingObserver{}
	svc := NewService(repo, nil, cfg, obs, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return svc, obs
}

func (r *memoryRepo) balance(companyID, itemID int64) Balance {
	return r.balances[key(companyID, itemID)]
}

func TestAdjustStockIsIdempotentPerReference(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Cement")
	svc, obs := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	in := AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("10"), UnitCost: decPtr("55"), ReferenceType: "GRN", ReferenceID: "77"}
	first, err := svc.AdjustStock(ctx, in)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.AdjustStock(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Movement.ID, second.Movement.ID)

	require.Len(t, repo.movements, 1)
	require.True(t, repo.balance(1, item.ID).OnHandQty.Equal(dec("10")))
	require.Len(t, obs.events, 2)
	require.True(t, obs.events[1].Duplicate)
}

func TestAdjustStockWithoutReferenceAlwaysAppends(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Sand")
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementAdjust, Qty: dec("1")})
		require.NoError(t, err)
	}
	require.Len(t, repo.movements, 2)
	require.True(t, repo.balance(1, item.ID).OnHandQty.Equal(dec("2")))
}

func TestAdjustStockRejectsInvalidQuantityWithoutWriting(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Rebar")
	svc, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.AdjustStock(context.Background(), AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementOut, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, repo.movements)
}

func TestAdjustStockRefusesEngineReferences(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Cement")
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	for _, cost := range []string{"100", "200"} {
		_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("10"), UnitCost: decPtr(cost)})
		require.NoError(t, err)
	}
	require.True(t, repo.balance(1, item.ID).AvgCost.Equal(dec("150")))

	for _, ref := range []string{RefPurchaseReversal, RefPurchaseVoucher, "opening_stock"} {
		_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementOut, Qty: dec("5"), UnitCost: decPtr("200"), ReferenceType: ref, ReferenceID: "42"})
		require.ErrorIs(t, err, ErrReservedReference)
	}
	_, err := svc.AdjustStockTx(ctx, repo, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("5"), UnitCost: decPtr("1"), ReferenceType: RefPurchaseVoucher, ReferenceID: "42"})
	require.ErrorIs(t, err, ErrReservedReference)
	require.Len(t, repo.movements, 2)

	res, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementOut, Qty: dec("5"), UnitCost: decPtr("200")})
	require.NoError(t, err)
	require.True(t, res.Balance.OnHandQty.Equal(dec("15")))
	require.True(t, res.Balance.AvgCost.Equal(dec("150")))
}

func TestIssueStockGuardsNegative(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Bricks")
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("5"), UnitCost: decPtr("2")})
	require.NoError(t, err)

	_, err = svc.IssueStock(ctx, IssueInput{CompanyID: 1, StockItemID: item.ID, Type: MovementOut, Qty: dec("6")})
	require.ErrorIs(t, err, ErrNegativeStock)

	res, err := svc.IssueStock(ctx, IssueInput{CompanyID: 1, StockItemID: item.ID, Type: MovementWastage, Qty: dec("5")})
	require.NoError(t, err)
	require.True(t, res.Balance.OnHandQty.IsZero())

	permissive, _ := newTestService(repo, ServiceConfig{AllowNegativeStock: true})
	res, err = permissive.IssueStock(ctx, IssueInput{CompanyID: 1, StockItemID: item.ID, Type: MovementOut, Qty: dec("1")})
	require.NoError(t, err)
	require.True(t, res.Balance.OnHandQty.Equal(dec("-1")))

	_, err = svc.IssueStock(ctx, IssueInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("1")})
	require.ErrorIs(t, err, ErrInvalidMovementType)
}

func purchaseWith(repo *memoryRepo) procurement.Purchase {
	cement := repo.addItem(1, "Portland Cement")
	repo.addItem(1, "Steel Bar")
	project := int64(3)
	return procurement.Purchase{
		ID:          42,
		CompanyID:   1,
		VendorID:    8,
		ProjectID:   &project,
		InvoiceNo:   "INV-9",
		InvoiceDate: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		Discount:    dec("20"),
		Lines: []procurement.PurchaseLine{
			{LineType: procurement.LineMaterial, StockItemID: &cement.ID, Qty: dec("10"), UnitPrice: dec("10")},
			{LineType: procurement.LineMaterial, ItemName: "  steel   BAR ", Qty: dec("5"), UnitPrice: dec("20")},
			{LineType: procurement.LineMaterial, ItemName: "portland cement", Qty: dec("10"), UnitPrice: dec("10")},
			{LineType: procurement.LineMaterial, ItemName: "Unknown Pipe", Qty: dec("1"), UnitPrice: dec("5")},
			{LineType: procurement.LineService, Qty: dec("1"), UnitPrice: dec("95")},
		},
		PaidAmount: decimal.Zero,
	}
}

func TestPostPurchaseReceiptGroupsAndSkips(t *testing.T) {
	repo := newMemoryRepo()
	p := purchaseWith(repo)
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	var result ReceiptResult
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = svc.PostPurchaseReceipt(ctx, tx, p)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.MovementsCreated)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, repo.movements, 2)

	cement := repo.movements[0]
	require.Equal(t, RefPurchaseVoucher, cement.ReferenceType)
	require.Equal(t, "42", cement.ReferenceID)
	require.True(t, cement.Qty.Equal(dec("20")))
	// subtotal 400, discount 20: every line keeps 95% of its amount
	require.True(t, cement.UnitCost.Equal(dec("9.5")))
	steel := repo.movements[1]
	require.True(t, steel.Qty.Equal(dec("5")))
	require.True(t, steel.UnitCost.Equal(dec("19")))

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = svc.PostPurchaseReceipt(ctx, tx, p)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.MovementsCreated)
	require.Equal(t, 2, result.Duplicates)
	require.Len(t, repo.movements, 2)
}

func TestReversePurchaseReceiptRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	p := purchaseWith(repo)
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()
	cementID := *p.Lines[0].StockItemID

	_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: cementID, Type: MovementIn, Qty: dec("30"), UnitCost: decPtr("8")})
	require.NoError(t, err)
	before := repo.balance(1, cementID)

	post := func(p procurement.Purchase) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := svc.PostPurchaseReceipt(ctx, tx, p)
			return err
		})
		require.NoError(t, err)
	}
	post(p)
	posted := repo.balance(1, cementID)
	require.False(t, posted.AvgCost.Equal(before.AvgCost))

	var reversal ReversalResult
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = svc.ReversePurchaseReceipt(ctx, tx, p)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, reversal.MovementsReversed)
	after := repo.balance(1, cementID)
	require.True(t, after.OnHandQty.Equal(before.OnHandQty))
	require.True(t, after.AvgCost.Equal(before.AvgCost))

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = svc.ReversePurchaseReceipt(ctx, tx, p)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 0, reversal.MovementsReversed)
	require.Equal(t, 2, reversal.Duplicates)

	equivalent := p
	equivalent.ID = 43
	post(equivalent)
	again := repo.balance(1, cementID)
	require.True(t, again.OnHandQty.Equal(posted.OnHandQty))
	require.True(t, again.AvgCost.Equal(posted.AvgCost))
}

func TestOpeningStockRejectsWholeBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.OpeningStockBulkUpsert(context.Background(), OpeningStockInput{
		CompanyID: 1,
		Rows: []OpeningStockRow{
			{Date: "2024-01-01", Name: "Cement", Qty: dec("5"), UnitCost: dec("10")},
			{Date: "01/02/2024", Name: "Sand", Qty: dec("0"), UnitCost: dec("-1")},
			{Date: "2024-01-01", Name: "   ", Qty: dec("1"), UnitCost: dec("1")},
		},
	})
	require.ErrorIs(t, err, ErrInvalidBatch)
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Rows, 4)
	require.Empty(t, repo.items)
	require.Empty(t, repo.movements)
}

func TestOpeningStockMergesDuplicatesAndIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	existing := repo.addItem(1, "Cement")
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()
	project := int64(5)

	input := OpeningStockInput{
		CompanyID: 1,
		ProjectID: &project,
		Rows: []OpeningStockRow{
			{Date: "2024-01-03", Name: "cement", Qty: dec("10"), UnitCost: dec("10")},
			{Date: "2024-01-02", Name: "Gravel", Unit: "m3", Qty: dec("4"), UnitCost: dec("30")},
			{Date: "2024-01-01", Name: " CEMENT ", Qty: dec("30"), UnitCost: dec("14")},
		},
	}
	res, err := svc.OpeningStockBulkUpsert(ctx, input)
	require.NoError(t, err)
	require.Equal(t, 1, res.Merged)
	require.Equal(t, 1, res.ItemsCreated)
	require.Equal(t, 2, res.MovementsCreated)

	cement := repo.balance(1, existing.ID)
	require.True(t, cement.OnHandQty.Equal(dec("40")))
	require.True(t, cement.AvgCost.Equal(dec("13")))
	require.Equal(t, "project:5", repo.movements[0].ReferenceID)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), repo.movements[0].MovementDate)

	res, err = svc.OpeningStockBulkUpsert(ctx, input)
	require.NoError(t, err)
	require.Equal(t, 2, res.Duplicates)
	require.Equal(t, 0, res.MovementsCreated)
	require.Len(t, repo.movements, 2)
}

func TestOpeningStockResubmissionWithNewFigures(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()
	project := int64(5)

	first := OpeningStockInput{
		CompanyID: 1,
		ProjectID: &project,
		Rows: []OpeningStockRow{
			{Date: "2024-01-01", Name: "Cement", Qty: dec("10"), UnitCost: dec("10")},
			{Date: "2024-01-01", Name: "Sand", Qty: dec("3"), UnitCost: dec("20")},
		},
	}
	_, err := svc.OpeningStockBulkUpsert(ctx, first)
	require.NoError(t, err)
	require.Len(t, repo.movements, 2)

	changed := first
	changed.Rows = []OpeningStockRow{
		{Date: "2024-01-01", Name: "Sand", Qty: dec("3"), UnitCost: dec("20")},
		{Date: "2024-01-01", Name: "Cement", Qty: dec("25"), UnitCost: dec("10")},
		{Date: "2024-01-01", Name: "Gravel", Qty: dec("2"), UnitCost: dec("40")},
	}
	_, err = svc.OpeningStockBulkUpsert(ctx, changed)
	require.ErrorIs(t, err, ErrOpeningConflict)
	require.Len(t, repo.movements, 2)
	require.Len(t, repo.items, 2)
	cement := repo.items[0]
	require.True(t, repo.balance(1, cement.ID).OnHandQty.Equal(dec("10")))

	changed.BatchID = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-001122334455")
	res, err := svc.OpeningStockBulkUpsert(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, 3, res.MovementsCreated)
	require.Equal(t, "project:5:batch:6f1c2d3e-4a5b-4c6d-8e7f-001122334455", repo.movements[2].ReferenceID)
	require.True(t, repo.balance(1, cement.ID).OnHandQty.Equal(dec("35")))

	res, err = svc.OpeningStockBulkUpsert(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, 3, res.Duplicates)
	require.Len(t, repo.movements, 5)
}

func TestRebuildBalancesCorrectsDrift(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addItem(1, "Tiles")
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, AdjustInput{CompanyID: 1, StockItemID: item.ID, Type: MovementIn, Qty: dec("8"), UnitCost: decPtr("5")})
	require.NoError(t, err)
	repo.balances[key(1, item.ID)] = Balance{CompanyID: 1, StockItemID: item.ID, OnHandQty: dec("3"), AvgCost: dec("1")}

	report, err := svc.RebuildBalances(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.ItemsChecked)
	require.Len(t, report.Corrected, 1)
	require.True(t, repo.balance(1, item.ID).OnHandQty.Equal(dec("8")))
	require.True(t, repo.balance(1, item.ID).AvgCost.Equal(dec("5")))

	report, err = svc.RebuildBalances(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, report.Corrected)
}
