package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"warehouse/internal/domain"
	"warehouse/internal/memstore"
	"warehouse/internal/metrics"
	"warehouse/internal/service"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	m := metrics.New()
	svc := service.New(memstore.New(), zap.NewNop(), m)
	return &apiClient{t: t, router: NewRouter(NewHandler(svc), zap.NewNop(), m)}
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func (c *apiClient) create(path string, body any) int64 {
	c.t.Helper()
	rec := c.do(http.MethodPost, path, body)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID int64 `json:"id"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newAPI(t)
	rec := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newAPI(t)

	productID := api.create("/api/v1/products", map[string]any{"name": "Linen towel"})
	centerID := api.create("/api/v1/centers", map[string]any{"name": "Digikala", "commission_percent": "7"})
	api.create("/api/v1/inflows", map[string]any{
		"product_id": productID, "quantity": "10", "unit_cost": "100", "received_at": "2024-03-01",
	})
	api.create("/api/v1/inflows", map[string]any{
		"product_id": productID, "quantity": "5", "unit_cost": "200", "received_at": "2024-03-02",
	})

	rec := api.do(http.MethodGet, fmt.Sprintf("/api/v1/products/%d/fifo-cost?quantity=15", productID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2000", decodeBody(t, rec)["total_cost"])

	rec = api.do(http.MethodPost, "/api/v1/outflows", map[string]any{
		"product_id": productID, "center_id": centerID, "quantity": "12", "sell_price": "300", "sold_at": "2024-03-05",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody(t, rec)
	assert.Equal(t, "1400", sale["total_cogs"])
	assert.Equal(t, "252", sale["commission_amount"])
	outflowID := int64(sale["id"].(float64))

	rec = api.do(http.MethodPost, "/api/v1/outflows", map[string]any{
		"product_id": productID, "center_id": centerID, "quantity": "4", "sell_price": "300",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeInsufficientStock, decodeBody(t, rec)["code"])

	rec = api.do(http.MethodPost, fmt.Sprintf("/api/v1/outflows/%d/toggle-return", outflowID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["is_returned"])

	rec = api.do(http.MethodGet, fmt.Sprintf("/api/v1/products/%d", productID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "15", decodeBody(t, rec)["stock"])

	rec = api.do(http.MethodGet, "/api/v1/inventory/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestDeleteUsedInflowConflicts(t *testing.T) {
	api := newAPI(t)
	productID := api.create("/api/v1/products", map[string]any{"name": "Candle"})
	centerID := api.create("/api/v1/centers", map[string]any{"name": "Shop"})
	batchID := api.create("/api/v1/inflows", map[string]any{"product_id": productID, "quantity": "3", "unit_cost": "5"})
	api.create("/api/v1/outflows", map[string]any{
		"product_id": productID, "center_id": centerID, "quantity": "1", "sell_price": "9", "shipping": "0",
	})

	rec := api.do(http.MethodDelete, fmt.Sprintf("/api/v1/inflows/%d", batchID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeBatchInUse, decodeBody(t, rec)["code"])
}

func TestRequestValidation(t *testing.T) {
	api := newAPI(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		status   int
		contains string
	}{
		{"missing product name", http.MethodPost, "/api/v1/products", map[string]any{}, http.StatusBadRequest, "name is required"},
		{"unknown field", http.MethodPost, "/api/v1/products", map[string]any{"name": "x", "sku": "1"}, http.StatusBadRequest, "invalid JSON body"},
		{"missing quantity", http.MethodPost, "/api/v1/inflows", map[string]any{"product_id": 1, "unit_cost": "1"}, http.StatusBadRequest, "quantity is required"},
		{"bad cash kind", http.MethodPost, "/api/v1/cash-transactions", map[string]any{"kind": "loan", "amount": "1"}, http.StatusBadRequest, "kind must be one of"},
		{"bad id", http.MethodGet, "/api/v1/products/abc", nil, http.StatusBadRequest, "invalid id"},
		{"missing product", http.MethodGet, "/api/v1/products/99", nil, http.StatusNotFound, "not found"},
		{"bad fifo quantity", http.MethodGet, "/api/v1/products/1/fifo-cost?quantity=lots", nil, http.StatusBadRequest, "invalid quantity"},
		{"bad bool filter", http.MethodGet, "/api/v1/outflows?paid=maybe", nil, http.StatusBadRequest, "paid must be true or false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestPatchCenterKeepsUnsetFields(t *testing.T) {
	api := newAPI(t)
	centerID := api.create("/api/v1/centers", map[string]any{
		"name": "Basalam", "commission_percent": "5", "shipping_policy": "fixed", "shipping_fixed": "12",
	})

	rec := api.do(http.MethodPatch, fmt.Sprintf("/api/v1/centers/%d", centerID), map[string]any{"commission_percent": "6"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "6", body["commission_percent"])
	assert.Equal(t, "fixed", body["shipping_policy"])
	assert.Equal(t, "12", body["shipping_fixed"])
}

func TestListsAreNeverNull(t *testing.T) {
	api := newAPI(t)
	for _, path := range []string{"/api/v1/products", "/api/v1/outflows", "/api/v1/centers", "/api/v1/settlements", "/api/v1/reports/daily-sales"} {
		rec := api.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, strings.Contains(rec.Body.String(), `"items":[]`), path)
	}
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	api := newAPI(t)
	api.do(http.MethodGet, "/api/v1/products/42", nil)

	rec := api.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/products/{id}",status="404"`)
}
