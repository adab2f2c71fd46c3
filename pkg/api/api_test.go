// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/billing"
	"github.com/marketforge/cpv/pkg/catalog"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/gate"
	"github.com/marketforge/cpv/pkg/limiter"
	"github.com/marketforge/cpv/pkg/log"
	"github.com/marketforge/cpv/pkg/metric"
	"github.com/marketforge/cpv/pkg/qualify"
	"github.com/marketforge/cpv/pkg/ranking"
	"github.com/marketforge/cpv/pkg/storage"
	"github.com/marketforge/cpv/pkg/viewledger"
)

type testServer struct {
	server *Server
	public http.Handler
	admin  http.Handler
	bills  *billing.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Limiter.MaxAttempts = 3
	logger := log.NoOp()

	dir := catalog.NewDirectory()
	dir.AddProduct(&core.Product{
		ProductID:  "prod-1",
		VendorID:   "vendor-1",
		CategoryID: "cat-1",
		Active:     true,
		Rating:     decimal.NewFromFloat(4.2),
	})

	rates := catalog.NewRates()
	rates.SetProfile(&core.CategoryRateProfile{
		CategoryID:      "cat-1",
		BaseViewRate:    decimal.NewFromFloat(0.10),
		MinBidAmount:    decimal.NewFromFloat(0.05),
		MaxBidAmount:    decimal.NewFromFloat(0.50),
		Competitiveness: core.CompetitivenessMedium,
	})

	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })

	views := viewledger.NewLedger(store, dir, cfg.DedupWindow, logger)
	ranker := ranking.NewRanker(dir, rates, nil, cfg.Ranking, logger)
	bills := billing.NewLedger(store, rates, views, ranker, ranker, cfg.Billing, logger)
	ranker.SetBalanceSource(bills)
	engine := qualify.NewEngine(views, bills, cfg.Qualification, logger)

	lim := limiter.New(cfg.Limiter.MaxAttempts, cfg.Limiter.LockoutWindow, logger)
	g, err := gate.New("secret-code", lim, logger)
	require.NoError(t, err)

	metrics, err := metric.NewMetrics()
	require.NoError(t, err)

	server := NewServer(views, engine, bills, ranker, g, metrics, cfg, logger)
	return &testServer{
		server: server,
		public: server.Router(true),
		admin:  server.AdminRouter(),
		bills:  bills,
	}
}

func (ts *testServer) do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, ts.public, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRecordAndQualifyFlow(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	_, err := ts.bills.TopUp(context.Background(), "vendor-1", decimal.NewFromInt(10), "USD")
	require.NoError(err)

	w := ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"product_id": "prod-1",
		"view_type":  "direct",
		"session_id": "sess-1",
	})
	require.Equal(http.StatusCreated, w.Code)
	viewID, ok := decodeBody(t, w)["view_id"].(string)
	require.True(ok)
	require.NotEmpty(viewID)

	w = ts.do(t, ts.public, http.MethodPost, fmt.Sprintf("/v1/views/%s/qualify", viewID), map[string]any{
		"duration_ms":  45000,
		"scroll_depth": 80,
	})
	require.Equal(http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(true, body["success"])
	require.Equal(true, body["charged"])
}

func TestRecordViewValidation(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	// Missing product_id.
	w := ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"view_type": "direct",
	})
	require.Equal(http.StatusBadRequest, w.Code)

	// Out-of-vocabulary view type.
	w = ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"product_id": "prod-1",
		"view_type":  "banner",
	})
	require.Equal(http.StatusBadRequest, w.Code)

	// Unknown product.
	w = ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"product_id": "prod-missing",
		"view_type":  "direct",
	})
	require.Equal(http.StatusNotFound, w.Code)
}

func TestQualifyUnknownViewReturns404(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, ts.public, http.MethodPost, "/v1/views/vw_missing/qualify", map[string]any{
		"duration_ms": 45000,
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRankingEndpoints(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	w := ts.do(t, ts.public, http.MethodGet, "/v1/products/prod-1/ranking", nil)
	require.Equal(http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal("prod-1", body["product_id"])
	require.Contains(body, "placement_tier")
	require.Contains(body, "current_bid")

	w = ts.do(t, ts.public, http.MethodGet, "/v1/products/prod-missing/ranking", nil)
	require.Equal(http.StatusNotFound, w.Code)

	w = ts.do(t, ts.public, http.MethodGet, "/v1/products", nil)
	require.Equal(http.StatusOK, w.Code)
	require.Contains(decodeBody(t, w), "products")
}

func TestInvestorVerify(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	w := ts.do(t, ts.public, http.MethodPost, "/v1/investor/verify", map[string]any{
		"code": "secret-code",
	})
	require.Equal(http.StatusOK, w.Code)
	require.Equal(true, decodeBody(t, w)["granted"])

	w = ts.do(t, ts.public, http.MethodPost, "/v1/investor/verify", map[string]any{
		"code": "wrong",
	})
	require.Equal(http.StatusUnauthorized, w.Code)
}

func TestInvestorVerifyLockout(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := ts.do(t, ts.public, http.MethodPost, "/v1/investor/verify", map[string]any{
			"code": "wrong",
		})
		require.Equal(http.StatusUnauthorized, w.Code)
	}

	w := ts.do(t, ts.public, http.MethodPost, "/v1/investor/verify", map[string]any{
		"code": "secret-code",
	})
	require.Equal(http.StatusTooManyRequests, w.Code)
	body := decodeBody(t, w)
	require.Equal(true, body["limited"])
	require.Positive(body["remaining_lockout_seconds"])
}

func TestAdminTopUpAndAccount(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	w := ts.do(t, ts.admin, http.MethodPost, "/admin/vendors/vendor-1/topup", map[string]any{
		"amount": "25.00",
	})
	require.Equal(http.StatusOK, w.Code)

	w = ts.do(t, ts.admin, http.MethodGet, "/admin/vendors/vendor-1", nil)
	require.Equal(http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal("vendor-1", body["vendor_id"])
	require.Equal("25", body["balance"])

	w = ts.do(t, ts.admin, http.MethodGet, "/admin/vendors/vendor-missing", nil)
	require.Equal(http.StatusNotFound, w.Code)

	// Non-positive top-ups are rejected.
	w = ts.do(t, ts.admin, http.MethodPost, "/admin/vendors/vendor-1/topup", map[string]any{
		"amount": "-5",
	})
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestAdminTransactionsAndStats(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	_, err := ts.bills.TopUp(context.Background(), "vendor-1", decimal.NewFromInt(10), "USD")
	require.NoError(err)

	w := ts.do(t, ts.admin, http.MethodGet, "/admin/vendors/vendor-1/transactions", nil)
	require.Equal(http.StatusOK, w.Code)
	txs, ok := decodeBody(t, w)["transactions"].([]any)
	require.True(ok)
	require.Len(txs, 1)

	w = ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"product_id": "prod-1",
		"view_type":  "direct",
	})
	require.Equal(http.StatusCreated, w.Code)

	w = ts.do(t, ts.admin, http.MethodGet, "/admin/products/prod-1/stats", nil)
	require.Equal(http.StatusOK, w.Code)
	require.Equal(float64(1), decodeBody(t, w)["recorded"])
}

func TestMetricsExport(t *testing.T) {
	require := require.New(t)
	ts := newTestServer(t)

	w := ts.do(t, ts.public, http.MethodPost, "/v1/views", map[string]any{
		"product_id": "prod-1",
		"view_type":  "direct",
	})
	require.Equal(http.StatusCreated, w.Code)

	w = ts.do(t, ts.admin, http.MethodGet, "/metrics", nil)
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "views_recorded_total")
}
