package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/metrics"
	"udhaar/backend/internal/report"
	"udhaar/backend/internal/service"
	"udhaar/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWith(t, Options{AllowedOrigin: "*", Metrics: metrics.New()})
}

func newTestAPIWith(t *testing.T, opts Options) *API {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Metrics: opts.Metrics})
	reports := report.New(repo, report.Options{Metrics: opts.Metrics})
	auth, err := NewAuthManager(testSecret, time.Hour, repo)
	require.NoError(t, err)
	return New(svc, reports, auth, opts)
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}

func call(t *testing.T, h http.Handler, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

func errorCode(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, res)
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	code, _ := envelope["code"].(string)
	return code
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, decode(t, res)["ok"])
}

func TestHandleHealthReportsStoreOutage(t *testing.T) {
	api := newTestAPIWith(t, Options{Ready: func(context.Context) error { return errors.New("down") }})
	res := call(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Equal(t, false, decode(t, res)["ok"])
}

func TestLoginAndAuthGuard(t *testing.T) {
	h := newTestAPI(t).Handler()

	res := call(t, h, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, res))

	res = call(t, h, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = call(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "owner", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	token := login(t, h, "owner", "owner123")
	res = call(t, h, http.MethodGet, "/api/v1/products", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	products, ok := decode(t, res)["products"].([]any)
	require.True(t, ok)
	assert.Len(t, products, 2)
}

func TestCreateSaleReplaysWithIdempotencyHeader(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "staff", "staff123")
	req := map[string]any{
		"customer_id":      "cust_ravi",
		"items":            []map[string]any{{"product_id": "prod_soap", "unit": "box", "quantity": "1"}},
		"payment_received": "10",
	}

	first := call(t, h, http.MethodPost, "/api/v1/sales", token, req, "Idempotency-Key", "till-1-0001")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode(t, first)["sale"].(map[string]any)
	assert.Equal(t, "100", created["pending_amount"])
	assert.Equal(t, created["pending_amount"], created["balance_amount"])
	assert.Equal(t, created["pending_amount"], created["due_amount"])
	assert.Equal(t, "PARTIAL", created["payment_status"])
	assert.Equal(t, "till-1-0001", created["idempotency_key"])

	replay := call(t, h, http.MethodPost, "/api/v1/sales", token, req, "Idempotency-Key", "till-1-0001")
	require.Equal(t, http.StatusOK, replay.Code, replay.Body.String())
	body := decode(t, replay)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, created["id"], body["sale"].(map[string]any)["id"])

	list := call(t, h, http.MethodGet, "/api/v1/sales?status=partial", token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode(t, list)["sales"].([]any), 1)
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	h := newTestAPI(t).Handler()
	staff := login(t, h, "staff", "staff123")
	owner := login(t, h, "owner", "owner123")

	res := call(t, h, http.MethodPost, "/api/v1/sales", staff, map[string]any{
		"customer_id": "cust_ravi",
		"items":       []map[string]any{{"product_id": "prod_soap", "unit": "piece", "quantity": "10"}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	saleID := decode(t, res)["sale"].(map[string]any)["id"].(string)

	res = call(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/returns", staff, map[string]any{
		"items": []map[string]any{{"product_id": "prod_soap", "quantity": "2"}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Equal(t, "80", decode(t, res)["sale"].(map[string]any)["pending_amount"])

	res = call(t, h, http.MethodGet, "/api/v1/sales/"+saleID+"/returnable-items", staff, nil)
	require.Equal(t, http.StatusOK, res.Code)
	items := decode(t, res)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "8", items[0].(map[string]any)["available_qty"])

	res = call(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/payments", staff, map[string]any{"amount": "500"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "BUSINESS_RULE", errorCode(t, res))

	res = call(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/adjustments", staff, map[string]any{"amount": "5", "reason": "RATE_FIX"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = call(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/cancel", staff, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, res))

	res = call(t, h, http.MethodPost, "/api/v1/sales/"+saleID+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, res)["sale"].(map[string]any)["status"])

	res = call(t, h, http.MethodGet, "/api/v1/customers/cust_ravi/statement", owner, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "0", decode(t, res)["closing_balance"])
}

func TestErrorMapping(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "owner", "owner123")

	res := call(t, h, http.MethodGet, "/api/v1/sales/sale_missing", token, nil)
	require.Equal(t, http.StatusNotFound, res.Code)

	res = call(t, h, http.MethodPost, "/api/v1/sales", token, map[string]any{"items": []any{}})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, res))

	res = call(t, h, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{{"product_id": "prod_rice", "unit": "bag", "quantity": "30"}},
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "BUSINESS_RULE", errorCode(t, res))

	res = call(t, h, http.MethodGet, "/api/v1/customers/cust_ravi/statement?from=2026-05-02&to=2026-05-01", token, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, h, http.MethodGet, "/api/v1/customers/cust_ravi/statement?from=yesterday", token, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestCustomerPaymentAndReports(t *testing.T) {
	h := newTestAPI(t).Handler()
	owner := login(t, h, "owner", "owner123")
	staff := login(t, h, "staff", "staff123")

	res := call(t, h, http.MethodPost, "/api/v1/customers", staff, map[string]any{"name": "Meena", "phone": "98111"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	customerID := decode(t, res)["customer"].(map[string]any)["id"].(string)

	res = call(t, h, http.MethodPost, "/api/v1/sales", staff, map[string]any{
		"customer_id": customerID,
		"items":       []map[string]any{{"product_id": "prod_rice", "unit": "kg", "quantity": "5"}},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = call(t, h, http.MethodPost, "/api/v1/customers/"+customerID+"/payments", staff, map[string]any{"amount": "100", "method": "UPI"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "200", decode(t, res)["customer"].(map[string]any)["due_amount"])

	res = call(t, h, http.MethodGet, "/api/v1/reports/dues", staff, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, h, http.MethodGet, "/api/v1/reports/dues", owner, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "200", decode(t, res)["total"])

	for _, path := range []string{"/api/v1/reports/daily", "/api/v1/reports/cash", "/api/v1/reports/profit", "/api/v1/reports/overdue", "/api/v1/reports/sales?status=OPEN", "/api/v1/reports/low-stock", "/api/v1/reports/product-profit", "/api/v1/audit-logs"} {
		res = call(t, h, http.MethodGet, path, owner, nil)
		assert.Equal(t, http.StatusOK, res.Code, path+": "+res.Body.String())
	}

	res = call(t, h, http.MethodPost, "/api/v1/expenses", staff, map[string]any{"amount": "20", "category": "tea"})
	require.Equal(t, http.StatusForbidden, res.Code)
	res = call(t, h, http.MethodPost, "/api/v1/expenses", owner, map[string]any{"amount": "20", "category": "tea"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
}

func TestCatalogRoutes(t *testing.T) {
	h := newTestAPI(t).Handler()
	owner := login(t, h, "owner", "owner123")
	staff := login(t, h, "staff", "staff123")

	product := map[string]any{
		"name":             "Tea",
		"base_unit":        "packet",
		"packaging_levels": []map[string]any{{"name": "carton", "quantity": 20}},
		"default_prices":   map[string]any{"packet": "15", "carton": "280"},
	}
	res := call(t, h, http.MethodPost, "/api/v1/products", staff, product)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, h, http.MethodPost, "/api/v1/products", owner, product)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	productID := decode(t, res)["product"].(map[string]any)["id"].(string)

	res = call(t, h, http.MethodPost, "/api/v1/products/"+productID+"/purchases", owner, map[string]any{"unit": "carton", "quantity": "2", "unit_cost": "200"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	got := decode(t, res)["product"].(map[string]any)
	assert.Equal(t, "40", got["stock"])
	assert.Equal(t, "10", got["last_purchase_cost"])

	bill := map[string]any{
		"supplier_name":  "Hind Traders",
		"invoice_number": "HT-221",
		"items": []map[string]any{
			{"product_id": productID, "unit": "carton", "quantity": "1", "unit_cost": "220"},
			{"product_id": "prod_soap", "unit": "box", "quantity": "2", "unit_cost": "96"},
		},
	}
	res = call(t, h, http.MethodPost, "/api/v1/purchases", staff, bill)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, h, http.MethodPost, "/api/v1/purchases", owner, bill)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	purchase := decode(t, res)["purchase"].(map[string]any)
	assert.Equal(t, "412", purchase["total_amount"])
	assert.Len(t, purchase["items"], 2)

	res = call(t, h, http.MethodGet, "/api/v1/purchases", owner, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	purchases := decode(t, res)["purchases"].([]any)
	require.Len(t, purchases, 2)
	assert.Equal(t, "HT-221", purchases[0].(map[string]any)["invoice_number"])

	res = call(t, h, http.MethodPost, "/api/v1/purchases", owner, map[string]any{
		"items": []map[string]any{{"product_id": "prod_missing", "unit": "piece", "quantity": "1", "unit_cost": "1"}},
	})
	require.Equal(t, http.StatusNotFound, res.Code, res.Body.String())
}

func TestMetricsEndpointUsesRoutePatterns(t *testing.T) {
	h := newTestAPI(t).Handler()
	token := login(t, h, "owner", "owner123")
	call(t, h, http.MethodGet, "/api/v1/sales/sale_missing", token, nil)

	res := call(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "udhaar_http_requests_total")
	assert.True(t, strings.Contains(body, `path="GET /api/v1/sales/{id}"`), body)
	assert.NotContains(t, body, "sale_missing")
}
