package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/apperr"
	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/service"
)

// saleView adds the read-only balance aliases older clients still read. They are derived from
// PendingAmount and Status on every response and never stored.
type saleView struct {
	domain.Sale
	BalanceAmount decimal.Decimal   `json:"balance_amount"`
	DueAmount     decimal.Decimal   `json:"due_amount"`
	PaymentStatus domain.SaleStatus `json:"payment_status"`
	NetAmount     decimal.Decimal   `json:"net_amount"`
	IsOverdue     bool              `json:"is_overdue"`
}

func viewOf(s domain.Sale) saleView {
	return saleView{
		Sale:          s,
		BalanceAmount: s.PendingAmount,
		DueAmount:     s.PendingAmount,
		PaymentStatus: s.Status,
		NetAmount:     s.NetAmount(),
		IsOverdue:     s.IsOverdue(time.Now().UTC()),
	}
}

func viewsOf(sales []domain.Sale) []saleView {
	out := make([]saleView, 0, len(sales))
	for _, s := range sales {
		out = append(out, viewOf(s))
	}
	return out
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, apperr.ErrRateLimitExceeded())
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.ReceivePurchase(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	purchase, err := a.service.RecordPurchase(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	purchases, err := a.service.ListPurchases(r.Context(), from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleStatement(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	statement, err := a.service.CustomerStatement(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func (a *API) handleCustomerPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.service.ReceiveCustomerPayment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), service.SaleQuery{
		Status:     domain.SaleStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Limit:      parsePositiveLimit(q.Get("limit"), 100, 500),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": viewsOf(sales)})
}

// handleCreateSale takes the idempotency key from the Idempotency-Key header, falling back to
// the body. A replay answers 200 with the stored sale instead of 201.
func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	result, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"sale": viewOf(result.Sale), "duplicate": result.Duplicate})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": viewOf(sale)})
}

func (a *API) handleSalePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.SalePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sale, err := a.service.ReceiveSalePayment(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": viewOf(sale)})
}

func (a *API) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.service.ProcessReturn(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": viewOf(result.Sale), "return": result.Return})
}

func (a *API) handleReturnableItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ReturnableItems(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.service.AdjustSale(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": viewOf(result.Sale), "adjustment": result.Adjustment})
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.CancelSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": viewOf(sale)})
}

func (a *API) handleExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.service.RecordExpense(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := parseTime(raw)
		if err != nil {
			a.writeError(w, r, apperr.ErrValidation("invalid date").WithDetail("date", raw))
			return
		}
		day = parsed
	}
	actor, _ := service.ActorFromContext(r.Context())
	summary, err := a.reports.DailySummary(r.Context(), actor.TenantID, day)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleCashReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.Cash(r.Context(), actor.TenantID, from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.Profit(r.Context(), actor.TenantID, from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDuesReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.Dues(r.Context(), actor.TenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleOverdueReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.Overdue(r.Context(), actor.TenantID, time.Now().UTC())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	status := domain.SaleStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	out, err := a.reports.SalesOverview(r.Context(), actor.TenantID, status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleLowStockReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.LowStock(r.Context(), actor.TenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleProductProfitReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r, true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	out, err := a.reports.ProductProfit(r.Context(), actor.TenantID, from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// parseRange reads from/to query parameters as RFC 3339 timestamps or YYYY-MM-DD dates. A bare
// date in "to" is inclusive of that day. With defaultToday an empty range means today (UTC).
func parseRange(r *http.Request, defaultToday bool) (time.Time, time.Time, error) {
	q := r.URL.Query()
	rawFrom := strings.TrimSpace(q.Get("from"))
	rawTo := strings.TrimSpace(q.Get("to"))

	var from, to time.Time
	var err error
	if rawFrom != "" {
		if from, err = parseTime(rawFrom); err != nil {
			return from, to, apperr.ErrValidation("invalid from").WithDetail("from", rawFrom)
		}
	}
	if rawTo != "" {
		if to, err = parseTime(rawTo); err != nil {
			return from, to, apperr.ErrValidation("invalid to").WithDetail("to", rawTo)
		}
		if len(rawTo) == len(time.DateOnly) {
			to = to.AddDate(0, 0, 1)
		}
	}
	if defaultToday && from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 0, 1)
	}
	if defaultToday && to.IsZero() {
		to = time.Now().UTC()
	}
	return from, to, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
