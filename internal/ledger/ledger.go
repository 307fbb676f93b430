// Package ledger maintains customer due balances as a projection of an append-only ledger.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/sale"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/xid"
)

// Posting describes one balance-affecting event. Amount defaults to the absolute signed delta.
type Posting struct {
	TenantID    string
	CustomerID  string
	SaleID      string
	Type        domain.LedgerEntryType
	Amount      decimal.Decimal
	PaymentMode domain.PaymentMethod
	Remark      string
	Source      domain.LedgerSource
	CreatedBy   string
	At          time.Time
}

// ApplyDelta moves the customer's due by signed, clamped at zero, and appends the matching entry.
// It must run inside the same unit of work as the sale mutation it records.
func ApplyDelta(ctx context.Context, w store.LedgerWriter, p Posting, signed decimal.Decimal) (domain.LedgerEntry, error) {
	customer, err := w.GetCustomer(ctx, p.TenantID, p.CustomerID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	due := customer.DueAmount
	next := due.Add(signed)
	if next.IsNegative() {
		next = decimal.Zero
	}
	if !next.Equal(due) {
		if err := w.SetCustomerDue(ctx, p.TenantID, p.CustomerID, next); err != nil {
			return domain.LedgerEntry{}, err
		}
	}

	amount := p.Amount
	if amount.IsZero() {
		amount = signed.Abs()
	}
	entry := domain.LedgerEntry{
		ID:           xid.New("led"),
		TenantID:     p.TenantID,
		CustomerID:   p.CustomerID,
		SaleID:       p.SaleID,
		Type:         p.Type,
		Amount:       amount,
		Delta:        next.Sub(due),
		BalanceAfter: next,
		PaymentMode:  p.PaymentMode,
		Remark:       p.Remark,
		Source:       p.Source,
		CreatedBy:    p.CreatedBy,
		Date:         p.At,
	}
	if err := w.AppendLedgerEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// History is the read side a statement needs. Both a unit of work and the reader satisfy it.
type History interface {
	GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error)
	ListLedgerEntries(ctx context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error)
}

// StatementFor reconstructs the customer's balances over [from, to). The opening balance inverts
// the first entry in range; an empty range reports the live due for both ends.
func StatementFor(ctx context.Context, h History, tenantID, customerID string, from, to time.Time) (domain.Statement, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return domain.Statement{}, domain.ErrInvalidRange
	}
	customer, err := h.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		return domain.Statement{}, err
	}
	entries, err := h.ListLedgerEntries(ctx, store.LedgerFilter{
		TenantID:   tenantID,
		CustomerID: customerID,
		From:       from,
		To:         to,
	})
	if err != nil {
		return domain.Statement{}, err
	}

	st := domain.Statement{
		Customer:       *customer,
		From:           from,
		To:             to,
		OpeningBalance: customer.DueAmount,
		ClosingBalance: customer.DueAmount,
		Entries:        entries,
	}
	if len(entries) > 0 {
		st.OpeningBalance = entries[0].BalanceBefore()
		st.ClosingBalance = entries[len(entries)-1].BalanceAfter
	}
	return st, nil
}

type Allocation struct {
	SaleID string
	Amount decimal.Decimal
}

// AllocateFIFO spreads amount over open sales oldest first, settling each sale in full before the
// next. It returns the allocations and whatever could not be applied.
func AllocateFIFO(open []domain.Sale, amount decimal.Decimal) ([]Allocation, decimal.Decimal) {
	ordered := make([]domain.Sale, len(open))
	copy(ordered, open)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].InvoiceNumber < ordered[j].InvoiceNumber
	})

	remaining := amount
	out := make([]Allocation, 0, len(ordered))
	for _, s := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if s.Status == domain.SaleStatusCancelled || !s.PendingAmount.IsPositive() {
			continue
		}
		share := decimal.Min(remaining, s.PendingAmount)
		out = append(out, Allocation{SaleID: s.ID, Amount: share})
		remaining = remaining.Sub(share)
	}
	return out, remaining
}

// SaleBook is the part of a unit of work reconciliation writes to.
type SaleBook interface {
	ListOpenSales(ctx context.Context, tenantID string, customerID string) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, s domain.Sale) error
	InsertPayment(ctx context.Context, payment domain.Payment) error
}

// ReconcileOpenSales applies a customer-level payment to that customer's open sales FIFO and
// records one Payment per sale touched. The caller has already checked amount against the due.
func ReconcileOpenSales(ctx context.Context, book SaleBook, tenantID, customerID string, amount decimal.Decimal, method domain.PaymentMethod, at time.Time) ([]domain.Payment, error) {
	open, err := book.ListOpenSales(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	allocations, _ := AllocateFIFO(open, amount)

	byID := make(map[string]domain.Sale, len(open))
	for _, s := range open {
		byID[s.ID] = s
	}

	payments := make([]domain.Payment, 0, len(allocations))
	for _, a := range allocations {
		s := byID[a.SaleID]
		if err := sale.ApplyPayment(&s, a.Amount, at); err != nil {
			return nil, fmt.Errorf("allocate to %s: %w", s.InvoiceNumber, err)
		}
		if err := book.UpdateSale(ctx, s); err != nil {
			return nil, err
		}
		payment := domain.Payment{
			ID:         xid.New("pay"),
			TenantID:   tenantID,
			CustomerID: customerID,
			SaleID:     s.ID,
			Amount:     a.Amount,
			Method:     method,
			CreatedAt:  at,
		}
		if err := book.InsertPayment(ctx, payment); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, nil
}
