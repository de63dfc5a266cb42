package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers"
	"github.com/odyssey-erp/sitebooks/internal/accounting/vouchers/vouchertest"
	"github.com/odyssey-erp/sitebooks/internal/observability"
)

type accountsOnly struct {
	store *vouchertest.Store
}

func (a accountsOnly) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return a.store.WithTx(ctx, func(ctx context.Context, tx vouchers.TxRepository) error {
		return fn(ctx, tx.Accounts())
	})
}

func (a accountsOnly) Lookup() accounts.TxRepository {
	return a.store.Lookup().Accounts()
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := vouchertest.New()
	store.SeedDefaultChart(1)
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(nil, accounts.NewService(accountsOnly{store: store}, nil)),
		VouchersHandler: vouchers.NewHandler(nil, vouchers.NewService(store, vouchers.Deps{}, nil)),
		Metrics:         observability.NewMetrics(),
	})
}

func TestHealthzSkipsTenantScope(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthzReportsNotReady(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: &Config{RateLimitPerMinute: 1000},
		Ready:  func(*http.Request) error { return context.DeadlineExceeded },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTenantScopeGuardsAPIRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.Header.Set(HeaderCompanyID, "abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.Header.Set(HeaderCompanyID, "1")
	req.Header.Set(HeaderActorID, "-4")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.Header.Set(HeaderCompanyID, "1")
	req.Header.Set(HeaderActorID, "9")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.NotEmpty(t, listed)
}

func TestTenantsDoNotSeeEachOther(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/vouchers/", nil)
	req.Header.Set(HeaderCompanyID, "2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	req.Header.Set(HeaderCompanyID, "2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Empty(t, listed)
}

func TestMetricsEndpointMounted(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sitebooks_http_requests_total")
}
