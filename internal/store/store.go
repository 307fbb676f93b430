package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStockConflict is returned when a conditional stock decrement matched no row.
	ErrStockConflict = errors.New("stock changed during operation")
	// ErrWriteConflict is a serialization failure or deadlock reported by the store.
	ErrWriteConflict = errors.New("write conflict")
	ErrUnavailable   = errors.New("transactional store unavailable")
)

type SaleFilter struct {
	TenantID   string
	Status     domain.SaleStatus
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
}

type LedgerFilter struct {
	TenantID   string
	CustomerID string
	Types      []domain.LedgerEntryType
	From       time.Time
	To         time.Time
	Limit      int
}

// Matches reports whether an entry falls inside the filter. Zero bounds are open.
func (f LedgerFilter) Matches(e domain.LedgerEntry) bool {
	if e.TenantID != f.TenantID {
		return false
	}
	if f.CustomerID != "" && e.CustomerID != f.CustomerID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Date.Before(f.To) {
		return false
	}
	return true
}

// Matches reports whether a sale falls inside the filter. Zero bounds are open.
func (f SaleFilter) Matches(s domain.Sale) bool {
	if s.TenantID != f.TenantID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.CustomerID != "" {
		id, ok := s.CustomerID()
		if !ok || id != f.CustomerID {
			return false
		}
	}
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// StockWriter mutates product stock in base units.
type StockWriter interface {
	// DeductStock decrements only when stock >= qty and returns ErrStockConflict otherwise.
	DeductStock(ctx context.Context, tenantID string, productID string, qty decimal.Decimal) error
	IncreaseStock(ctx context.Context, tenantID string, productID string, qty decimal.Decimal) error
}

// LedgerWriter owns customer due balances and the append-only ledger.
type LedgerWriter interface {
	GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error)
	SetCustomerDue(ctx context.Context, tenantID string, customerID string, due decimal.Decimal) error
	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, error)
}

// Tx is one unit of work. Reads inside it observe the unit's own writes; nothing is visible to
// other units until Commit. Rollback after Commit is a no-op.
type Tx interface {
	StockWriter
	LedgerWriter

	Commit() error
	Rollback() error

	GetProducts(ctx context.Context, tenantID string, ids []string) (map[string]domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProductCost(ctx context.Context, tenantID string, productID string, cost decimal.Decimal) error

	InsertCustomer(ctx context.Context, customer domain.Customer) error

	// NextInvoiceSequence returns a new per-tenant number exactly once per call.
	NextInvoiceSequence(ctx context.Context, tenantID string) (int64, error)
	FindSaleByIdempotencyKey(ctx context.Context, tenantID string, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error)
	// InsertSale returns ErrDuplicateKey when the invoice number or idempotency key is taken.
	InsertSale(ctx context.Context, sale domain.Sale) error
	UpdateSale(ctx context.Context, sale domain.Sale) error
	// ListOpenSales returns the customer's sales with pending > 0, oldest first.
	ListOpenSales(ctx context.Context, tenantID string, customerID string) ([]domain.Sale, error)

	InsertPayment(ctx context.Context, payment domain.Payment) error
	InsertReturn(ctx context.Context, ret domain.Return) error
	InsertAdjustment(ctx context.Context, adj domain.Adjustment) error
	InsertPurchase(ctx context.Context, purchase domain.Purchase) error
}

type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
}

// Reader serves read models outside any unit of work.
type Reader interface {
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error)
	GetSale(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, tenantID string, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, error)
	ListReturns(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Return, error)
	ListPurchases(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Purchase, error)
}

type AuditWriter interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
}

type Repository interface {
	UnitOfWork
	Reader
	AuditWriter
	UserStore
}
