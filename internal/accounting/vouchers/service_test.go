package vouchers_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/mappings"
	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers/vouchertest"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

const companyID = int64(1)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fakeStock struct {
	posted    []int64
	reversed  []int64
	published []inventory.MovementEvent
	failPost  error
}

func (f *fakeStock) PostPurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReceiptResult, error) {
	if f.failPost != nil {
		return inventory.ReceiptResult{}, f.failPost
	}
	f.posted = append(f.posted, p.ID)
	return inventory.ReceiptResult{MovementsCreated: 1, Events: []inventory.MovementEvent{{CompanyID: p.CompanyID, Type: inventory.MovementIn}}}, nil
}

func (f *fakeStock) ReversePurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReversalResult, error) {
	f.reversed = append(f.reversed, p.ID)
	return inventory.ReversalResult{MovementsReversed: 1, Events: []inventory.MovementEvent{{CompanyID: p.CompanyID, Type: inventory.MovementOut}}}, nil
}

func (f *fakeStock) Publish(events ...inventory.MovementEvent) {
	f.published = append(f.published, events...)
}

type recorder struct {
	mu          sync.Mutex
	audits      []common.AuditLog
	transitions []string
	bumps       []int64
}

func (r *recorder) Record(ctx context.Context, log common.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, log)
	return nil
}

func (r *recorder) VoucherTransitioned(companyID int64, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+">"+to)
}

func (r *recorder) Bump(ctx context.Context, companyID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps = append(r.bumps, companyID)
	return nil
}

type fixture struct {
	store   *vouchertest.Store
	stock   *fakeStock
	rec     *recorder
	service *vouchers.Service
	chart   map[string]accounts.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := vouchertest.New()
	f := &fixture{store: store, stock: &fakeStock{}, rec: &recorder{}}
	f.chart = store.SeedDefaultChart(companyID)
	f.service = vouchers.NewService(store, vouchers.Deps{Stock: f.stock, Audit: f.rec, Observer: f.rec, Cache: f.rec}, nil)
	f.service.WithNow(func() time.Time { return time.Date(2024, 6, 30, 10, 0, 0, 0, time.UTC) })
	return f
}

func (f *fixture) cashToMaterials(amount string) vouchers.CreateInput {
	return vouchers.CreateInput{
		Draft: vouchers.Draft{
			CompanyID: companyID,
			Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Narration: "site materials",
			Lines: []vouchers.LineInput{
				{AccountCode: "5010", Debit: d(amount)},
				{AccountID: f.chart["1010"].ID, Credit: d(amount)},
			},
		},
		ActorID: 7,
	}
}

func (f *fixture) advance(t *testing.T, id int64, targets ...vouchers.Status) vouchers.TransitionResult {
	t.Helper()
	var res vouchers.TransitionResult
	for _, target := range targets {
		var err error
		res, err = f.service.TransitionStatus(context.Background(), vouchers.TransitionInput{CompanyID: companyID, VoucherID: id, Target: target, ActorID: 7})
		require.NoError(t, err)
	}
	return res
}

func TestCreateVoucherAssignsSequentialNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateVoucher(ctx, f.cashToMaterials("1000"))
	require.NoError(t, err)
	second, err := f.service.CreateVoucher(ctx, f.cashToMaterials("250"))
	require.NoError(t, err)

	require.Equal(t, "V-2024-000001", first.VoucherNo)
	require.Equal(t, "V-2024-000002", second.VoucherNo)
	require.Equal(t, vouchers.StatusDraft, first.Status)
	require.Len(t, first.Lines, 2)
	require.Equal(t, f.chart["5010"].ID, first.Lines[0].AccountID)
	require.Equal(t, "1010", first.Lines[1].AccountCode)
	require.True(t, first.TotalDebit().Equal(first.TotalCredit()))
	require.Len(t, f.rec.audits, 2)

	next, err := f.service.AllocateVoucherNumber(ctx, companyID, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "V-2025-000001", next)
}

func TestConcurrentNumberingNeverDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const workers = 24

	var wg sync.WaitGroup
	numbers := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				v, err := f.service.CreateVoucher(ctx, f.cashToMaterials("10"))
				if err != nil {
					errs <- err
					return
				}
				numbers <- v.VoucherNo
				return
			}
			no, err := f.service.AllocateVoucherNumber(ctx, companyID, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
			if err != nil {
				errs <- err
				return
			}
			numbers <- no
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	var seqs []int64
	for no := range numbers {
		require.False(t, seen[no], "duplicate %s", no)
		seen[no] = true
		year, seq, ok := vouchers.ParseVoucherNo(no)
		require.True(t, ok)
		require.Equal(t, 2024, year)
		seqs = append(seqs, seq)
	}
	require.Len(t, seqs, workers)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		require.Equal(t, int64(i+1), seq)
	}
}

func TestCreateVoucherRejectsWithoutWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.cashToMaterials("1000")
	in.Lines[1].Credit = d("999")
	_, err := f.service.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	parentID := f.chart["5010"].ID
	f.store.AddAccount(companyID, "5011", "Cement")
	child := f.store.Accounts(companyID)
	for _, a := range child {
		if a.Code == "5011" {
			a.ParentID = &parentID
			f.store.UpdateAccount(a)
		}
	}
	_, err = f.service.CreateVoucher(ctx, f.cashToMaterials("1000"))
	require.ErrorIs(t, err, shared.ErrAccountNotLeaf)
	var lineErr *shared.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 0, lineErr.Index)

	in = f.cashToMaterials("10")
	in.Lines[0].AccountCode = "9999"
	_, err = f.service.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, shared.ErrAccountInactiveOrMissing)

	require.Empty(t, f.store.Vouchers())
}

func TestCreateVoucherValidatesStoredAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.cashToMaterials("100.00")
	in.Lines[0].Debit = d("100.005")
	_, err := f.service.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	in = f.cashToMaterials("0.001")
	in.Lines[0].Debit = d("0.004")
	_, err = f.service.CreateVoucher(ctx, in)
	require.ErrorIs(t, err, shared.ErrZeroLine)
	require.Empty(t, f.store.Vouchers())

	in = f.cashToMaterials("100")
	in.Lines[0].Debit = d("100.004")
	v, err := f.service.CreateVoucher(ctx, in)
	require.NoError(t, err)
	require.True(t, v.Lines[0].Debit.Equal(d("100")))
	require.True(t, v.Lines[1].Credit.Equal(d("100")))
}

func TestUpdateAndDeleteOnlyWhileDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.service.CreateVoucher(ctx, f.cashToMaterials("1000"))
	require.NoError(t, err)

	updated, err := f.service.UpdateDraft(ctx, vouchers.UpdateInput{
		CompanyID: companyID,
		VoucherID: v.ID,
		Narration: "corrected",
		Lines: []vouchers.LineInput{
			{AccountCode: "5030", Debit: d("400")},
			{AccountCode: "5020", Debit: d("600")},
			{AccountCode: "1020", Credit: d("1000")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, v.VoucherNo, updated.VoucherNo)
	require.Len(t, updated.Lines, 3)
	require.Equal(t, "corrected", updated.Narration)

	f.advance(t, v.ID, vouchers.StatusSubmitted)

	_, err = f.service.UpdateDraft(ctx, vouchers.UpdateInput{CompanyID: companyID, VoucherID: v.ID, Lines: []vouchers.LineInput{{AccountCode: "5030", Debit: d("1")}, {AccountCode: "1010", Credit: d("1")}}})
	require.ErrorIs(t, err, shared.ErrNotEditable)
	require.ErrorIs(t, f.service.DeleteDraft(ctx, companyID, v.ID, 7), shared.ErrNotEditable)

	other, err := f.service.CreateVoucher(ctx, f.cashToMaterials("5"))
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteDraft(ctx, companyID, other.ID, 7))
	_, err = f.service.Get(ctx, companyID, other.ID)
	require.ErrorIs(t, err, shared.ErrVoucherNotFound)
}

func TestTransitionStatusEnforcesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.service.CreateVoucher(ctx, f.cashToMaterials("1000"))
	require.NoError(t, err)

	_, err = f.service.TransitionStatus(ctx, vouchers.TransitionInput{CompanyID: companyID, VoucherID: v.ID, Target: vouchers.StatusPosted})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	res := f.advance(t, v.ID, vouchers.StatusSubmitted, vouchers.StatusApproved, vouchers.StatusPosted)
	require.Equal(t, vouchers.StatusApproved, res.From)
	require.Equal(t, vouchers.StatusPosted, res.Voucher.Status)
	require.NotNil(t, res.Voucher.PostedAt)
	require.Empty(t, f.stock.posted)

	_, err = f.service.TransitionStatus(ctx, vouchers.TransitionInput{CompanyID: companyID, VoucherID: v.ID, Target: vouchers.StatusApproved})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	require.Equal(t, []string{"DRAFT>SUBMITTED", "SUBMITTED>APPROVED", "APPROVED>POSTED"}, f.rec.transitions)
	require.Equal(t, []int64{companyID}, f.rec.bumps)

	history, err := f.service.History(ctx, companyID, v.ID)
	require.NoError(t, err)
	var logged []string
	for _, l := range history {
		logged = append(logged, l.From+">"+l.To)
	}
	require.Equal(t, []string{">DRAFT", "DRAFT>SUBMITTED", "SUBMITTED>APPROVED", "APPROVED>POSTED"}, logged)

	_, err = f.service.History(ctx, companyID+1, v.ID)
	require.ErrorIs(t, err, shared.ErrVoucherNotFound)
}

func TestReversalCreatesMirrorVoucherAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.service.CreateVoucher(ctx, f.cashToMaterials("1000"))
	require.NoError(t, err)
	f.advance(t, v.ID, vouchers.StatusSubmitted, vouchers.StatusApproved, vouchers.StatusPosted)

	res := f.advance(t, v.ID, vouchers.StatusReversed)
	require.Equal(t, vouchers.StatusReversed, res.Voucher.Status)
	require.NotNil(t, res.Reversal)
	require.Equal(t, "V-2024-000002", res.Reversal.VoucherNo)
	require.Equal(t, vouchers.StatusReversed, res.Reversal.Status)
	require.Equal(t, v.ID, *res.Reversal.ReversalOf)

	original, err := f.service.Get(ctx, companyID, v.ID)
	require.NoError(t, err)
	reversal, err := f.service.Get(ctx, companyID, res.Reversal.ID)
	require.NoError(t, err)
	for i := range original.Lines {
		require.True(t, original.Lines[i].Debit.Equal(reversal.Lines[i].Credit))
		require.True(t, original.Lines[i].Credit.Equal(reversal.Lines[i].Debit))
		require.Equal(t, original.Lines[i].AccountID, reversal.Lines[i].AccountID)
	}
	require.True(t, original.Lines[0].Debit.Equal(d("1000")))

	_, err = f.service.TransitionStatus(ctx, vouchers.TransitionInput{CompanyID: companyID, VoucherID: reversal.ID, Target: vouchers.StatusReversed})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func purchase(f *fixture) procurement.Purchase {
	project := int64(3)
	return f.store.AddPurchase(procurement.Purchase{
		CompanyID:   companyID,
		VendorID:    11,
		ProjectID:   &project,
		InvoiceNo:   "INV-77",
		InvoiceDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Discount:    d("10"),
		PaidAmount:  d("100"),
		Lines: []procurement.PurchaseLine{
			{LineType: procurement.LineMaterial, ItemName: "Cement", Qty: d("10"), UnitPrice: d("10")},
			{LineType: procurement.LineMaterial, ItemName: "Steel", Qty: d("5"), UnitPrice: d("20")},
			{LineType: procurement.LineService, ItemName: "Masonry", Qty: d("1"), UnitPrice: d("100")},
		},
	})
}

func TestBuildVoucherFromPurchase(t *testing.T) {
	f := newFixture(t)
	p := purchase(f)

	var draft vouchers.Draft
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx vouchers.TxRepository) error {
		var err error
		draft, err = vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, p.ID, *draft.PurchaseID)
	require.Equal(t, p.InvoiceDate, draft.Date)
	require.NoError(t, vouchers.ValidateBalance(draft.Lines))

	got := map[string][2]string{}
	for _, l := range draft.Lines {
		got[l.AccountCode] = [2]string{l.Debit.StringFixed(2), l.Credit.StringFixed(2)}
	}
	require.Equal(t, map[string][2]string{
		"1300": {"193.34", "0.00"},
		"5020": {"96.66", "0.00"},
		"1010": {"0.00", "100.00"},
		"2010": {"0.00", "190.00"},
	}, got)
}

func TestBuildVoucherFromPurchaseHonoursOverridesAndReportsMissingAccounts(t *testing.T) {
	f := newFixture(t)
	p := purchase(f)
	ctx := context.Background()

	err := f.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		_, err := tx.Mappings().Set(ctx, mappings.AccountMapping{CompanyID: companyID, Purpose: mappings.PurposeLabor, AccountCode: "5099"})
		return err
	})
	require.NoError(t, err)

	err = f.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		_, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		return err
	})
	require.ErrorIs(t, err, shared.ErrMissingDefaultAccount)
	var missing *shared.MissingDefaultAccountError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, string(mappings.PurposeLabor), missing.Purpose)
	require.Equal(t, "5099", missing.Code)

	f.store.AddAccount(companyID, "5099", "Subcontract Labor")
	err = f.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		draft, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		if err != nil {
			return err
		}
		require.Equal(t, "5099", draft.Lines[1].AccountCode)
		return nil
	})
	require.NoError(t, err)
}

func TestBuildVoucherFromOverpaidPurchaseIsNotBalanced(t *testing.T) {
	f := newFixture(t)
	p := purchase(f)
	p.PaidAmount = d("500")
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx vouchers.TxRepository) error {
		_, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotBalanced)
}

func TestPostingPurchaseVoucherDrivesStock(t *testing.T) {
	f := newFixture(t)
	p := purchase(f)
	ctx := context.Background()

	var created vouchers.Voucher
	err := f.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		draft, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		if err != nil {
			return err
		}
		created, err = f.service.CreateVoucherTx(ctx, tx, vouchers.CreateInput{Draft: draft})
		return err
	})
	require.NoError(t, err)

	f.advance(t, created.ID, vouchers.StatusSubmitted, vouchers.StatusApproved)
	require.Empty(t, f.stock.posted)
	f.advance(t, created.ID, vouchers.StatusPosted)
	require.Equal(t, []int64{p.ID}, f.stock.posted)
	require.Len(t, f.stock.published, 1)

	f.advance(t, created.ID, vouchers.StatusReversed)
	require.Equal(t, []int64{p.ID}, f.stock.reversed)
	require.Len(t, f.stock.published, 2)
}

func TestStockFailureRollsBackPosting(t *testing.T) {
	f := newFixture(t)
	p := purchase(f)
	ctx := context.Background()

	var created vouchers.Voucher
	err := f.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		draft, err := vouchers.BuildVoucherFromPurchase(ctx, tx, p)
		if err != nil {
			return err
		}
		created, err = f.service.CreateVoucherTx(ctx, tx, vouchers.CreateInput{Draft: draft})
		return err
	})
	require.NoError(t, err)
	f.advance(t, created.ID, vouchers.StatusSubmitted, vouchers.StatusApproved)

	f.stock.failPost = inventory.ErrNegativeStock
	_, err = f.service.TransitionStatus(ctx, vouchers.TransitionInput{CompanyID: companyID, VoucherID: created.ID, Target: vouchers.StatusPosted})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)

	v, err := f.service.Get(ctx, companyID, created.ID)
	require.NoError(t, err)
	require.Equal(t, vouchers.StatusApproved, v.Status)
	require.Empty(t, f.stock.published)
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.service.CreateVoucher(ctx, f.cashToMaterials("1"))
	require.NoError(t, err)
	_, err = f.service.CreateVoucher(ctx, f.cashToMaterials("2"))
	require.NoError(t, err)
	f.advance(t, a.ID, vouchers.StatusSubmitted)

	drafts, err := f.service.List(ctx, vouchers.ListFilter{CompanyID: companyID, Status: vouchers.StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	all, err := f.service.List(ctx, vouchers.ListFilter{CompanyID: companyID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "V-2024-000002", all[0].VoucherNo)
}
