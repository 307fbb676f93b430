package memory

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

const DemoTenant = "demo"

type state struct {
	products    map[string]domain.Product
	customers   map[string]domain.Customer
	sales       map[string]domain.Sale
	saleByIdem  map[string]string
	saleByInv   map[string]string
	counters    map[string]int64
	ledger      []domain.LedgerEntry
	payments    []domain.Payment
	returns     []domain.Return
	adjustments []domain.Adjustment
	purchases   []domain.Purchase
}

func newState() *state {
	return &state{
		products:   make(map[string]domain.Product),
		customers:  make(map[string]domain.Customer),
		sales:      make(map[string]domain.Sale),
		saleByIdem: make(map[string]string),
		saleByInv:  make(map[string]string),
		counters:   make(map[string]int64),
	}
}

// fork copies the maps and clips the slices so appends in a unit never touch committed state.
func (s *state) fork() *state {
	return &state{
		products:    maps.Clone(s.products),
		customers:   maps.Clone(s.customers),
		sales:       maps.Clone(s.sales),
		saleByIdem:  maps.Clone(s.saleByIdem),
		saleByInv:   maps.Clone(s.saleByInv),
		counters:    maps.Clone(s.counters),
		ledger:      slices.Clip(s.ledger),
		payments:    slices.Clip(s.payments),
		returns:     slices.Clip(s.returns),
		adjustments: slices.Clip(s.adjustments),
		purchases:   slices.Clip(s.purchases),
	}
}

// Store is an in-memory Repository. Units of work run one at a time against a private fork of
// the committed state, which Commit swaps in.
type Store struct {
	writer sync.Mutex
	mu     sync.RWMutex
	state  *state

	usersByUsername map[string]domain.UserAccount
	auditLogs       []domain.AuditLog

	hooks sync.Mutex
	// failDeduct makes the next DeductStock of a product lose its compare-and-swap.
	failDeduct  map[string]int
	unavailable bool
}

func New() *Store {
	return &Store{
		state:           newState(),
		usersByUsername: make(map[string]domain.UserAccount),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		failDeduct:      make(map[string]int),
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_OWNER_PASSWORD and
// SEED_STAFF_PASSWORD; dev defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.Warn("memory store: using default dev credentials, set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.Fatalf("memory store: hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        "usr_" + u.username,
			TenantID:  DemoTenant,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, two products and one customer in DemoTenant.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{
			ID:               "prod_soap",
			Name:             "Bath Soap",
			BaseUnit:         "piece",
			PackagingLevels:  []domain.PackagingLevel{{Name: "box", Quantity: 12}},
			DefaultPrices:    map[string]decimal.Decimal{"piece": decimal.NewFromInt(10), "box": decimal.NewFromInt(110)},
			LastPurchaseCost: decimal.NewFromInt(7),
			PurchaseUnit:     "box",
			Stock:            decimal.NewFromInt(240),
			MinStockAlert:    decimal.NewFromInt(24),
		},
		{
			ID:               "prod_rice",
			Name:             "Rice",
			BaseUnit:         "kg",
			PackagingLevels:  []domain.PackagingLevel{{Name: "bag", Quantity: 25}},
			DefaultPrices:    map[string]decimal.Decimal{"kg": decimal.NewFromInt(60), "bag": decimal.NewFromInt(1450)},
			LastPurchaseCost: decimal.NewFromInt(48),
			PurchaseUnit:     "bag",
			Stock:            decimal.NewFromInt(500),
			MinStockAlert:    decimal.NewFromInt(50),
		},
	} {
		p.TenantID = DemoTenant
		p.IsActive = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.state.products[p.ID] = p
	}
	s.state.customers["cust_ravi"] = domain.Customer{
		ID:        "cust_ravi",
		TenantID:  DemoTenant,
		Name:      "Ravi",
		ShopName:  "Ravi Traders",
		Phone:     "9800000000",
		Address:   "Market Road",
		DueAmount: decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
	}
	return s
}

// FailNextDeduct makes the next stock decrement of productID behave as a lost race.
func (s *Store) FailNextDeduct(productID string) {
	s.hooks.Lock()
	defer s.hooks.Unlock()
	s.failDeduct[productID]++
}

// SetUnavailable makes Begin fail with store.ErrUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.hooks.Lock()
	defer s.hooks.Unlock()
	s.unavailable = down
}

func (s *Store) takeDeductFailure(productID string) bool {
	s.hooks.Lock()
	defer s.hooks.Unlock()
	if s.failDeduct[productID] > 0 {
		s.failDeduct[productID]--
		return true
	}
	return false
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.hooks.Lock()
	down := s.unavailable
	s.hooks.Unlock()
	if down {
		return nil, store.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.writer.Lock()
	s.mu.RLock()
	work := s.state.fork()
	s.mu.RUnlock()
	return &Tx{store: s, work: work}, nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	st := s.snapshot()
	products := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		if p.TenantID != tenantID || !p.IsActive {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) ListCustomers(_ context.Context, tenantID string) ([]domain.Customer, error) {
	st := s.snapshot()
	customers := make([]domain.Customer, 0, len(st.customers))
	for _, c := range st.customers {
		if c.TenantID == tenantID && c.IsActive {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	return getCustomer(s.snapshot(), tenantID, customerID)
}

func (s *Store) GetSale(_ context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	return getSale(s.snapshot(), tenantID, saleID)
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, tenantID string, key string) (*domain.Sale, error) {
	return findByIdem(s.snapshot(), tenantID, key)
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	st := s.snapshot()
	sales := make([]domain.Sale, 0)
	for _, sale := range st.sales {
		if filter.Matches(sale) {
			sales = append(sales, cloneSale(sale))
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.InvoiceNumber, a.InvoiceNumber)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error) {
	return listLedger(s.snapshot(), filter), nil
}

func (s *Store) ListReturns(_ context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Return, error) {
	st := s.snapshot()
	out := make([]domain.Return, 0)
	for _, r := range st.returns {
		if r.TenantID != tenantID || (!from.IsZero() && r.CreatedAt.Before(from)) || (!to.IsZero() && !r.CreatedAt.Before(to)) {
			continue
		}
		dup := r
		dup.Items = slices.Clone(r.Items)
		out = append(out, dup)
	}
	return out, nil
}

// ListPurchases returns purchases newest first.
func (s *Store) ListPurchases(_ context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Purchase, error) {
	st := s.snapshot()
	out := make([]domain.Purchase, 0)
	for i := len(st.purchases) - 1; i >= 0; i-- {
		p := st.purchases[i]
		if p.TenantID != tenantID || (!from.IsZero() && p.CreatedAt.Before(from)) || (!to.IsZero() && !p.CreatedAt.Before(to)) {
			continue
		}
		p.Items = slices.Clone(p.Items)
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.TenantID != tenantID || (!from.IsZero() && entry.CreatedAt.Before(from)) || (!to.IsZero() && !entry.CreatedAt.Before(to)) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FindUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

// AddUser registers an account, used by tests and seeding.
func (s *Store) AddUser(user domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	s.usersByUsername[user.Username] = user
}

func getCustomer(st *state, tenantID, customerID string) (*domain.Customer, error) {
	c, ok := st.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func getSale(st *state, tenantID, saleID string) (*domain.Sale, error) {
	sale, ok := st.sales[saleID]
	if !ok || sale.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func findByIdem(st *state, tenantID, key string) (*domain.Sale, error) {
	id, ok := st.saleByIdem[tenantKey(tenantID, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return getSale(st, tenantID, id)
}

func listLedger(st *state, filter store.LedgerFilter) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0)
	for _, e := range st.ledger {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.LedgerEntry) int {
		return a.Date.Compare(b.Date)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

func tenantKey(tenantID, key string) string {
	return tenantID + "::" + key
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.PackagingLevels = slices.Clone(src.PackagingLevels)
	dup.DefaultPrices = maps.Clone(src.DefaultPrices)
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.Returns = slices.Clone(src.Returns)
	if src.Customer != nil {
		c := *src.Customer
		dup.Customer = &c
	}
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return dup
}

// Payments returns every committed payment record of a tenant.
func (s *Store) Payments(tenantID string) []domain.Payment {
	st := s.snapshot()
	out := make([]domain.Payment, 0)
	for _, p := range st.payments {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out
}

// Adjustments returns every committed adjustment record of a tenant.
func (s *Store) Adjustments(tenantID string) []domain.Adjustment {
	st := s.snapshot()
	out := make([]domain.Adjustment, 0)
	for _, a := range st.adjustments {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out
}
