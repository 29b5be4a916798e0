package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-engine/internal/billing"
	"github.com/noah-isme/promo-engine/internal/catalog"
	"github.com/noah-isme/promo-engine/internal/httpapi"
	"github.com/noah-isme/promo-engine/internal/promo"
	"github.com/noah-isme/promo-engine/internal/snapshot"
	"github.com/noah-isme/promo-engine/internal/store/memory"
	"github.com/noah-isme/promo-engine/internal/uom"
)

var (
	testProductID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	testSchemeID  = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	testAsOf      = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
)

func newTestHandler(t *testing.T) *httpapi.Handler {
	t.Helper()

	mem := memory.New()
	ctx := t.Context()

	require.NoError(t, mem.CreateProduct(ctx, catalog.Product{
		ID:      testProductID,
		Name:    "Sparkling Water 500ml",
		BaseUOM: "pcs",
		Conversions: uom.Table{
			{Code: "pcs", Factor: decimal.NewFromInt(1)},
			{Code: "box", Factor: decimal.NewFromInt(12)},
		},
		UnitPrice: decimal.NewFromInt(10),
	}))
	require.NoError(t, mem.CreateScheme(ctx, promo.Scheme{
		ID:        testSchemeID,
		Name:      "Buy 3 Get 1",
		ProductID: &testProductID,
		Mechanic:  promo.BuyGetFree{Threshold: decimal.NewFromInt(3), UOM: "pcs", FreeUnits: 1},
		ValidFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}))

	svc := &snapshot.Service{
		Store:  mem,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testAsOf },
	}
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	return httpapi.NewHandler(svc, billing.Engine{Precision: 2}, zerolog.Nop())
}

type evaluateResponse struct {
	Data billing.BillResult `json:"data"`
}

func TestEvaluateBill(t *testing.T) {
	handler := newTestHandler(t)

	body := `{"lines":[{"product_id":"` + testProductID.String() + `","quantity":"7","uom":"pcs"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Evaluate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Lines, 1)

	line := resp.Data.Lines[0]
	require.NotNil(t, line.SchemeID)
	require.Equal(t, testSchemeID, *line.SchemeID)
	require.Equal(t, "buy_get_free", line.SchemeKind)
	require.True(t, line.FreeUnits.Equal(decimal.NewFromInt(2)), "free units %s", line.FreeUnits)
	require.True(t, line.Gross.Equal(decimal.NewFromInt(70)), "gross %s", line.Gross)
	require.True(t, line.Discount.Equal(decimal.NewFromInt(20)), "discount %s", line.Discount)
	require.True(t, resp.Data.NetPayable.Equal(decimal.NewFromInt(50)), "net payable %s", resp.Data.NetPayable)
}

func TestEvaluateBillExplicitPriceAndDate(t *testing.T) {
	handler := newTestHandler(t)

	body := `{"as_of":"2026-06-01","lines":[{"product_id":"` + testProductID.String() + `","quantity":"7","uom":"pcs","unit_price":"8"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Evaluate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	line := resp.Data.Lines[0]
	// Scheme expired by mid-2026, so the line keeps its gross.
	require.Nil(t, line.SchemeID)
	require.True(t, line.Gross.Equal(decimal.NewFromInt(56)), "gross %s", line.Gross)
	require.True(t, resp.Data.NetPayable.Equal(decimal.NewFromInt(56)))
}

func TestEvaluateBillValidation(t *testing.T) {
	handler := newTestHandler(t)

	for name, body := range map[string]string{
		"empty lines":   `{"lines":[]}`,
		"missing uom":   `{"lines":[{"product_id":"` + testProductID.String() + `","quantity":"1"}]}`,
		"bad quantity":  `{"lines":[{"product_id":"` + testProductID.String() + `","quantity":"abc","uom":"pcs"}]}`,
		"unknown field": `{"bill":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.Evaluate(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEvaluateBillUnknownProduct(t *testing.T) {
	handler := newTestHandler(t)

	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":"2","uom":"pcs","unit_price":"5"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Evaluate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "UNKNOWN_PRODUCT", resp.Data.Lines[0].ErrorCode)
	require.True(t, resp.Data.Lines[0].Gross.Equal(decimal.NewFromInt(10)))
}

func TestSchemesListing(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schemes", nil)
	rec := httptest.NewRecorder()
	handler.Schemes(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)

	// Outside the validity window nothing is active.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/schemes?active_on=2030-01-01", nil)
	rec = httptest.NewRecorder()
	handler.Schemes(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Data)
}

func TestProductLookup(t *testing.T) {
	handler := newTestHandler(t)

	router := chi.NewRouter()
	router.Get("/api/v1/products/{id}", handler.Product)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+testProductID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data catalog.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Sparkling Water 500ml", resp.Data.Name)
	require.Equal(t, "pcs", resp.Data.BaseUOM)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshSnapshot(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshot/refresh", nil)
	rec := httptest.NewRecorder()
	handler.RefreshSnapshot(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Products       int `json:"products"`
			Schemes        int `json:"schemes"`
			InvalidSchemes int `json:"invalid_schemes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Products)
	require.Equal(t, 1, resp.Data.Schemes)
	require.Zero(t, resp.Data.InvalidSchemes)
}

func TestRateLimitMiddleware(t *testing.T) {
	mw, err := httpapi.NewRateLimitMiddleware(nil, "2-H")
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	wrapped := mw(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/evaluate", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
