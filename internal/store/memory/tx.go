package memory

import (
	"context"
	"database/sql"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

// Tx holds the writer lock from Begin until Commit or Rollback.
type Tx struct {
	store *Store
	work  *state

	once sync.Once
	done bool
}

func (t *Tx) finish() {
	t.once.Do(func() {
		t.done = true
		t.store.writer.Unlock()
	})
}

func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.store.mu.Lock()
	t.store.state = t.work
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *Tx) Rollback() error {
	t.finish()
	return nil
}

func (t *Tx) GetProducts(_ context.Context, tenantID string, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, ok := t.work.products[id]
		if !ok || p.TenantID != tenantID {
			continue
		}
		out[id] = cloneProduct(p)
	}
	return out, nil
}

func (t *Tx) InsertProduct(_ context.Context, product domain.Product) error {
	if _, exists := t.work.products[product.ID]; exists {
		return store.ErrDuplicateKey
	}
	for _, p := range t.work.products {
		if p.TenantID == product.TenantID && p.Name == product.Name {
			return store.ErrDuplicateKey
		}
	}
	t.work.products[product.ID] = cloneProduct(product)
	return nil
}

func (t *Tx) UpdateProductCost(_ context.Context, tenantID string, productID string, cost decimal.Decimal) error {
	p, ok := t.work.products[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	p.LastPurchaseCost = cost
	t.work.products[productID] = p
	return nil
}

func (t *Tx) DeductStock(_ context.Context, tenantID string, productID string, qty decimal.Decimal) error {
	p, ok := t.work.products[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrStockConflict
	}
	if t.store.takeDeductFailure(productID) || p.Stock.LessThan(qty) {
		return store.ErrStockConflict
	}
	p.Stock = p.Stock.Sub(qty)
	t.work.products[productID] = p
	return nil
}

func (t *Tx) IncreaseStock(_ context.Context, tenantID string, productID string, qty decimal.Decimal) error {
	p, ok := t.work.products[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	p.Stock = p.Stock.Add(qty)
	t.work.products[productID] = p
	return nil
}

func (t *Tx) GetCustomer(_ context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	return getCustomer(t.work, tenantID, customerID)
}

func (t *Tx) InsertCustomer(_ context.Context, customer domain.Customer) error {
	if _, exists := t.work.customers[customer.ID]; exists {
		return store.ErrDuplicateKey
	}
	t.work.customers[customer.ID] = customer
	return nil
}

func (t *Tx) SetCustomerDue(_ context.Context, tenantID string, customerID string, due decimal.Decimal) error {
	c, ok := t.work.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return store.ErrNotFound
	}
	c.DueAmount = due
	t.work.customers[customerID] = c
	return nil
}

func (t *Tx) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) error {
	t.work.ledger = append(t.work.ledger, entry)
	return nil
}

func (t *Tx) ListLedgerEntries(_ context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error) {
	return listLedger(t.work, filter), nil
}

func (t *Tx) NextInvoiceSequence(_ context.Context, tenantID string) (int64, error) {
	t.work.counters[tenantID]++
	return t.work.counters[tenantID], nil
}

func (t *Tx) FindSaleByIdempotencyKey(_ context.Context, tenantID string, key string) (*domain.Sale, error) {
	return findByIdem(t.work, tenantID, key)
}

func (t *Tx) GetSale(_ context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	return getSale(t.work, tenantID, saleID)
}

func (t *Tx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.work.sales[sale.ID]; exists {
		return store.ErrDuplicateKey
	}
	if _, exists := t.work.saleByInv[tenantKey(sale.TenantID, sale.InvoiceNumber)]; exists {
		return store.ErrDuplicateKey
	}
	if sale.IdempotencyKey != "" {
		if _, exists := t.work.saleByIdem[tenantKey(sale.TenantID, sale.IdempotencyKey)]; exists {
			return store.ErrDuplicateKey
		}
		t.work.saleByIdem[tenantKey(sale.TenantID, sale.IdempotencyKey)] = sale.ID
	}
	t.work.saleByInv[tenantKey(sale.TenantID, sale.InvoiceNumber)] = sale.ID
	t.work.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (t *Tx) UpdateSale(_ context.Context, sale domain.Sale) error {
	existing, ok := t.work.sales[sale.ID]
	if !ok || existing.TenantID != sale.TenantID {
		return store.ErrNotFound
	}
	t.work.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (t *Tx) ListOpenSales(_ context.Context, tenantID string, customerID string) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0)
	for _, sale := range t.work.sales {
		if sale.TenantID != tenantID || sale.Status == domain.SaleStatusCancelled || !sale.PendingAmount.IsPositive() {
			continue
		}
		if id, ok := sale.CustomerID(); !ok || id != customerID {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.InvoiceNumber < b.InvoiceNumber {
			return -1
		}
		if a.InvoiceNumber > b.InvoiceNumber {
			return 1
		}
		return 0
	})
	return out, nil
}

func (t *Tx) InsertPayment(_ context.Context, payment domain.Payment) error {
	t.work.payments = append(t.work.payments, payment)
	return nil
}

func (t *Tx) InsertReturn(_ context.Context, ret domain.Return) error {
	ret.Items = slices.Clone(ret.Items)
	t.work.returns = append(t.work.returns, ret)
	return nil
}

func (t *Tx) InsertAdjustment(_ context.Context, adj domain.Adjustment) error {
	t.work.adjustments = append(t.work.adjustments, adj)
	return nil
}

func (t *Tx) InsertPurchase(_ context.Context, purchase domain.Purchase) error {
	purchase.Items = slices.Clone(purchase.Items)
	t.work.purchases = append(t.work.purchases, purchase)
	return nil
}
