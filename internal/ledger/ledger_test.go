package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

type fakeBook struct {
	customers map[string]domain.Customer
	entries   []domain.LedgerEntry
	sales     map[string]domain.Sale
	payments  []domain.Payment
}

func newFakeBook(due string) *fakeBook {
	return &fakeBook{
		customers: map[string]domain.Customer{"c1": {ID: "c1", TenantID: "t1", Name: "Ravi", DueAmount: d(due)}},
		sales:     map[string]domain.Sale{},
	}
}

func (f *fakeBook) GetCustomer(_ context.Context, tenantID, id string) (*domain.Customer, error) {
	c, ok := f.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeBook) SetCustomerDue(_ context.Context, _ string, id string, due decimal.Decimal) error {
	c := f.customers[id]
	c.DueAmount = due
	f.customers[id] = c
	return nil
}

func (f *fakeBook) AppendLedgerEntry(_ context.Context, e domain.LedgerEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeBook) ListLedgerEntries(_ context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBook) ListOpenSales(_ context.Context, _ string, customerID string) ([]domain.Sale, error) {
	var out []domain.Sale
	for _, s := range f.sales {
		if id, ok := s.CustomerID(); ok && id == customerID && s.PendingAmount.IsPositive() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBook) UpdateSale(_ context.Context, s domain.Sale) error {
	f.sales[s.ID] = s
	return nil
}

func (f *fakeBook) InsertPayment(_ context.Context, p domain.Payment) error {
	f.payments = append(f.payments, p)
	return nil
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var day = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func post(t *testing.T, f *fakeBook, typ domain.LedgerEntryType, signed string, at time.Time) domain.LedgerEntry {
	t.Helper()
	e, err := ApplyDelta(context.Background(), f, Posting{TenantID: "t1", CustomerID: "c1", Type: typ, At: at}, d(signed))
	require.NoError(t, err)
	return e
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	f := newFakeBook("100")

	e := post(t, f, domain.LedgerPayment, "-150", day)
	assert.True(t, e.BalanceAfter.IsZero())
	assert.True(t, d("150").Equal(e.Amount))
	assert.True(t, d("-100").Equal(e.Delta))
	assert.True(t, f.customers["c1"].DueAmount.IsZero())
}

func TestApplyDeltaKeepsDueEqualToLastBalance(t *testing.T) {
	f := newFakeBook("0")
	post(t, f, domain.LedgerSale, "600", day)
	post(t, f, domain.LedgerPayment, "-200", day.Add(time.Hour))
	last := post(t, f, domain.LedgerReturn, "-50", day.Add(2*time.Hour))

	assert.True(t, d("350").Equal(last.BalanceAfter))
	assert.True(t, f.customers["c1"].DueAmount.Equal(last.BalanceAfter))
}

func TestApplyDeltaCashAuditEntry(t *testing.T) {
	f := newFakeBook("40")
	e, err := ApplyDelta(context.Background(), f, Posting{TenantID: "t1", CustomerID: "c1", Type: domain.LedgerPayment, Amount: d("400"), At: day}, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, d("400").Equal(e.Amount))
	assert.True(t, d("40").Equal(e.BalanceAfter))
	assert.True(t, e.Delta.IsZero())
}

func TestApplyDeltaUnknownCustomer(t *testing.T) {
	f := newFakeBook("0")
	_, err := ApplyDelta(context.Background(), f, Posting{TenantID: "t2", CustomerID: "c1"}, d("1"))
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStatementReconstructsOpeningAndClosing(t *testing.T) {
	f := newFakeBook("0")
	post(t, f, domain.LedgerSale, "500", day.AddDate(0, 0, -3))
	post(t, f, domain.LedgerPayment, "-200", day)
	post(t, f, domain.LedgerSale, "100", day.Add(time.Hour))

	st, err := StatementFor(context.Background(), f, "t1", "c1", day.Truncate(24*time.Hour), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, st.Entries, 2)
	assert.True(t, d("500").Equal(st.OpeningBalance), st.OpeningBalance.String())
	assert.True(t, d("400").Equal(st.ClosingBalance))

	st, err = StatementFor(context.Background(), f, "t1", "c1", day.AddDate(0, 0, 10), day.AddDate(0, 0, 11))
	require.NoError(t, err)
	assert.Empty(t, st.Entries)
	assert.True(t, d("400").Equal(st.OpeningBalance))
	assert.True(t, d("400").Equal(st.ClosingBalance))

	_, err = StatementFor(context.Background(), f, "t1", "c1", day, day)
	require.True(t, errors.Is(err, domain.ErrInvalidRange))
}

func TestStatementOpeningAfterClampedPayment(t *testing.T) {
	f := newFakeBook("100")
	post(t, f, domain.LedgerPayment, "-150", day)

	st, err := StatementFor(context.Background(), f, "t1", "c1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, d("100").Equal(st.OpeningBalance))
	assert.True(t, st.ClosingBalance.IsZero())
}

func openSale(id, invoice string, pending string, at time.Time) domain.Sale {
	return domain.Sale{
		ID:            id,
		TenantID:      "t1",
		InvoiceNumber: invoice,
		Customer:      &domain.CustomerSnapshot{ID: "c1"},
		FinalAmount:   d(pending),
		TotalAmount:   d(pending),
		PaidAmount:    decimal.Zero,
		PendingAmount: d(pending),
		Status:        domain.SaleStatusOpen,
		CreatedAt:     at,
	}
}

func TestAllocateFIFOOldestFirst(t *testing.T) {
	sales := []domain.Sale{
		openSale("s3", "INV-3", "300", day.Add(2*time.Hour)),
		openSale("s1", "INV-1", "100", day),
		openSale("s2", "INV-2", "200", day.Add(time.Hour)),
	}

	allocs, rest := AllocateFIFO(sales, d("250"))
	require.Len(t, allocs, 2)
	assert.Equal(t, "s1", allocs[0].SaleID)
	assert.True(t, d("100").Equal(allocs[0].Amount))
	assert.Equal(t, "s2", allocs[1].SaleID)
	assert.True(t, d("150").Equal(allocs[1].Amount))
	assert.True(t, rest.IsZero())

	_, rest = AllocateFIFO(sales, d("700"))
	assert.True(t, d("100").Equal(rest))
}

func TestAllocateFIFOTieBreaksOnInvoice(t *testing.T) {
	sales := []domain.Sale{
		openSale("b", "INV-2", "50", day),
		openSale("a", "INV-1", "50", day),
	}
	allocs, _ := AllocateFIFO(sales, d("50"))
	require.Len(t, allocs, 1)
	assert.Equal(t, "a", allocs[0].SaleID)
}

func TestReconcileOpenSalesUpdatesSalesAndPayments(t *testing.T) {
	f := newFakeBook("300")
	f.sales["s1"] = openSale("s1", "INV-1", "100", day)
	f.sales["s2"] = openSale("s2", "INV-2", "200", day.Add(time.Hour))

	payments, err := ReconcileOpenSales(context.Background(), f, "t1", "c1", d("150"), domain.PaymentUPI, day.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, domain.PaymentUPI, payments[0].Method)

	assert.Equal(t, domain.SaleStatusPaid, f.sales["s1"].Status)
	assert.Equal(t, domain.SaleStatusPartial, f.sales["s2"].Status)
	assert.True(t, d("150").Equal(f.sales["s2"].PendingAmount))
	assert.Len(t, f.payments, 2)
}
