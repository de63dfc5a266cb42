package integration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/accounting/shared"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers/vouchertest"
	"github.com/odyssey-erp/sitebooks/internal/integration"
	"github.com/odyssey-erp/sitebooks/internal/inventory"
	"github.com/odyssey-erp/sitebooks/internal/procurement"
	common "github.com/odyssey-erp/sitebooks/internal/shared"
)

const companyID = int64(1)

type fakeStock struct {
	posted   []int64
	reversed []int64
}

func (f *fakeStock) PostPurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReceiptResult, error) {
	f.posted = append(f.posted, p.ID)
	return inventory.ReceiptResult{MovementsCreated: len(p.Lines)}, nil
}

func (f *fakeStock) ReversePurchaseReceipt(ctx context.Context, tx inventory.TxRepository, p procurement.Purchase) (inventory.ReversalResult, error) {
	f.reversed = append(f.reversed, p.ID)
	return inventory.ReversalResult{MovementsReversed: len(p.Lines)}, nil
}

func (f *fakeStock) Publish(events ...inventory.MovementEvent) {}

type fixture struct {
	store  *vouchertest.Store
	stock  *fakeStock
	ledger *vouchers.Service
	flow   *integration.PurchaseFlow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := vouchertest.New()
	store.SeedDefaultChart(companyID)
	f := &fixture{store: store, stock: &fakeStock{}}
	f.ledger = vouchers.NewService(store, vouchers.Deps{Stock: f.stock}, nil)
	f.flow = integration.NewPurchaseFlow(f.ledger, nil)
	return f
}

func (f *fixture) purchase() procurement.Purchase {
	item := int64(5)
	return f.store.AddPurchase(procurement.Purchase{
		CompanyID:   companyID,
		VendorID:    21,
		InvoiceNo:   "INV-9",
		InvoiceDate: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		PaidAmount:  decimal.NewFromInt(100),
		Lines: []procurement.PurchaseLine{
			{LineType: procurement.LineMaterial, StockItemID: &item, ItemName: "Rebar", Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(30)},
		},
	})
}

func TestEnsureVoucherIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.purchase()

	first, err := f.flow.EnsureVoucher(ctx, companyID, p.ID, 4)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, vouchers.StatusDraft, first.Voucher.Status)
	require.Equal(t, integration.SourceRef(companyID, p.ID), first.Voucher.SourceRef)
	require.NotNil(t, first.Voucher.PurchaseID)
	require.Equal(t, p.ID, *first.Voucher.PurchaseID)
	require.True(t, decimal.NewFromInt(300).Equal(first.Voucher.TotalDebit()))

	second, err := f.flow.EnsureVoucher(ctx, companyID, p.ID, 4)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Voucher.ID, second.Voucher.ID)
	require.Len(t, f.store.Vouchers(), 1)

	require.Equal(t, integration.SourceRef(companyID, p.ID), integration.SourceRef(companyID, p.ID))
	require.NotEqual(t, integration.SourceRef(companyID, p.ID), integration.SourceRef(2, p.ID))
}

func TestEnsureVoucherUnknownPurchase(t *testing.T) {
	f := newFixture(t)
	_, err := f.flow.EnsureVoucher(context.Background(), companyID, 404, 4)
	require.ErrorIs(t, err, procurement.ErrNotFound)
	require.Empty(t, f.store.Vouchers())
}

func TestPostPurchaseWalksLifecycleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.purchase()

	out, err := f.flow.PostPurchase(ctx, companyID, p.ID, 4)
	require.NoError(t, err)
	require.Equal(t, vouchers.StatusPosted, out.Voucher.Status)
	require.Equal(t, []int64{p.ID}, f.stock.posted)

	again, err := f.flow.PostPurchase(ctx, companyID, p.ID, 4)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, vouchers.StatusPosted, again.Voucher.Status)
	require.Equal(t, []int64{p.ID}, f.stock.posted)

	_, err = f.ledger.TransitionStatus(ctx, vouchers.TransitionInput{CompanyID: companyID, VoucherID: out.Voucher.ID, Target: vouchers.StatusReversed})
	require.NoError(t, err)
	_, err = f.flow.PostPurchase(ctx, companyID, p.ID, 4)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestHandlerCreatesThenReturnsVoucher(t *testing.T) {
	f := newFixture(t)
	p := f.purchase()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.ContextWithCompany(req.Context(), companyID)))
		})
	})
	r.Route("/purchases", integration.NewHandler(nil, f.flow).MountRoutes)

	path := "/purchases/" + strconv.FormatInt(p.ID, 10) + "/voucher"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"status":"DRAFT"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path+"?post=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"status":"POSTED"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/purchases/999/voucher", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
