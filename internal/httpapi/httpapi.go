package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"udhaar/backend/internal/apperr"
	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/logging"
	"udhaar/backend/internal/metrics"
	"udhaar/backend/internal/report"
	"udhaar/backend/internal/service"
)

type Options struct {
	AllowedOrigin string
	Metrics       *metrics.Metrics
	Logger        logrus.FieldLogger
	// Ready reports whether the transactional store is reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

type API struct {
	service       *service.Service
	reports       *report.Aggregator
	auth          *AuthManager
	metrics       *metrics.Metrics
	log           logrus.FieldLogger
	ready         func(ctx context.Context) error
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, reports *report.Aggregator, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &API{
		service:       svc,
		reports:       reports,
		auth:          auth,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		ready:         opts.Ready,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct))
	mux.HandleFunc("POST /api/v1/products/{id}/purchases", a.requireAuth(a.handlePurchase))
	mux.HandleFunc("GET /api/v1/purchases", a.requireAuth(a.handleListPurchases))
	mux.HandleFunc("POST /api/v1/purchases", a.requireAuth(a.handleRecordPurchase))

	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleListCustomers))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCreateCustomer))
	mux.HandleFunc("GET /api/v1/customers/{id}/statement", a.requireAuth(a.handleStatement))
	mux.HandleFunc("POST /api/v1/customers/{id}/payments", a.requireAuth(a.handleCustomerPayment))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/payments", a.requireAuth(a.handleSalePayment))
	mux.HandleFunc("POST /api/v1/sales/{id}/returns", a.requireAuth(a.handleReturn))
	mux.HandleFunc("GET /api/v1/sales/{id}/returnable-items", a.requireAuth(a.handleReturnableItems))
	mux.HandleFunc("POST /api/v1/sales/{id}/adjustments", a.requireAuth(a.handleAdjustment))
	mux.HandleFunc("POST /api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancel))

	mux.HandleFunc("POST /api/v1/expenses", a.requireAuth(a.handleExpense))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireOwner(a.handleAuditLogs))

	mux.HandleFunc("GET /api/v1/reports/daily", a.requireOwner(a.handleDailyReport))
	mux.HandleFunc("GET /api/v1/reports/cash", a.requireOwner(a.handleCashReport))
	mux.HandleFunc("GET /api/v1/reports/profit", a.requireOwner(a.handleProfitReport))
	mux.HandleFunc("GET /api/v1/reports/dues", a.requireOwner(a.handleDuesReport))
	mux.HandleFunc("GET /api/v1/reports/overdue", a.requireOwner(a.handleOverdueReport))
	mux.HandleFunc("GET /api/v1/reports/sales", a.requireOwner(a.handleSalesReport))
	mux.HandleFunc("GET /api/v1/reports/low-stock", a.requireOwner(a.handleLowStockReport))
	mux.HandleFunc("GET /api/v1/reports/product-profit", a.requireOwner(a.handleProductProfitReport))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor on the request context. Role checks for
// mutations live in the service so every caller gets them.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, apperr.ErrUnauthorized("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// requireOwner guards read-only owner surfaces that never reach a service role check.
func (a *API) requireOwner(next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := service.ActorFromContext(r.Context())
		if actor.Role != domain.RoleOwner {
			a.writeError(w, r, apperr.ErrForbidden("owner role required"))
			return
		}
		next(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	}
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["ok"] = false
			body["store"] = "unavailable"
		}
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		// The mux fills in the matched pattern, which keeps label cardinality bounded.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		a.metrics.RecordHTTPRequest(r.Method, route, rec.status, elapsed)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": elapsed.String(),
		}).Info("http request")
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge).Wrap(err)
		}
		return apperr.ErrBadRequest("invalid JSON body").Wrap(err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError classifies err, logs server-side failures and writes the error envelope. 5xx
// responses never carry internal detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	if appErr.HTTPStatus >= 500 {
		logging.LogError(a.log, "httpapi", "writeError", r.Method+" "+r.URL.Path, nil, err)
	}
	writeJSON(w, appErr.HTTPStatus, map[string]any{"error": appErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
