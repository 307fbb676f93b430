package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/ledger"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/validation"
	"udhaar/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:        xid.New("cust"),
		TenantID:  actor.TenantID,
		Name:      strings.TrimSpace(req.Name),
		ShopName:  strings.TrimSpace(req.ShopName),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		DueAmount: decimal.Zero,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := s.runTx(ctx, "create_customer", func(tx store.Tx) error {
		return tx.InsertCustomer(ctx, customer)
	}); err != nil {
		return domain.Customer{}, s.fail(actor, "create_customer", customer.Name, err)
	}

	s.committed(ctx, actor, "customer_create", "customer", customer.ID, "name="+customer.Name)
	return customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return strings.ToLower(customers[i].Name) < strings.ToLower(customers[j].Name)
	})
	return customers, nil
}

// ReceiveCustomerPayment settles a customer's due without naming a sale. The amount is spread
// over open sales oldest first and may never exceed the current due.
func (s *Service) ReceiveCustomerPayment(ctx context.Context, customerID string, req domain.CustomerPaymentRequest) (domain.CustomerPaymentResult, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.CustomerPaymentResult{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.CustomerPaymentResult{}, err
	}
	method := req.Method.OrCash()

	var result domain.CustomerPaymentResult
	err = s.runTx(ctx, "receive_customer_payment", func(tx store.Tx) error {
		customer, err := tx.GetCustomer(ctx, actor.TenantID, customerID)
		if err != nil {
			return fmt.Errorf("customer %s: %w", customerID, err)
		}
		if req.Amount.GreaterThan(customer.DueAmount) {
			return domain.ErrPaymentExceedsDue.With("payment %s exceeds due %s", req.Amount, customer.DueAmount)
		}

		now := s.now()
		allocations, err := ledger.ReconcileOpenSales(ctx, tx, actor.TenantID, customerID, req.Amount, method, now)
		if err != nil {
			return err
		}
		remark := strings.TrimSpace(req.Remark)
		if remark == "" {
			remark = "Payment received"
		}
		entry, err := ledger.ApplyDelta(ctx, tx, ledger.Posting{
			TenantID:    actor.TenantID,
			CustomerID:  customerID,
			Type:        domain.LedgerPayment,
			PaymentMode: method,
			Remark:      remark,
			Source:      domain.SourceDueReport,
			CreatedBy:   actor.UserID,
			At:          now,
		}, req.Amount.Neg())
		if err != nil {
			return err
		}
		updated, err := tx.GetCustomer(ctx, actor.TenantID, customerID)
		if err != nil {
			return err
		}

		result = domain.CustomerPaymentResult{Customer: *updated, Entry: entry, Allocations: allocations}
		return nil
	})
	if err != nil {
		return domain.CustomerPaymentResult{}, s.fail(actor, "receive_customer_payment", customerID, err)
	}

	s.committed(ctx, actor, "customer_payment", "customer", customerID, fmt.Sprintf("amount=%s,method=%s,sales=%d", req.Amount, method, len(result.Allocations)))
	return result, nil
}

// CustomerStatement reconstructs opening and closing balances for [from, to). Zero bounds are open.
func (s *Service) CustomerStatement(ctx context.Context, customerID string, from time.Time, to time.Time) (domain.Statement, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.Statement{}, err
	}
	st, err := ledger.StatementFor(ctx, s.repo, actor.TenantID, customerID, from, to)
	if err != nil {
		return domain.Statement{}, fmt.Errorf("statement for %s: %w", customerID, err)
	}
	return st, nil
}

// RecordExpense books shop spending in the ledger. Expenses belong to no customer and never move a due.
func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (domain.LedgerEntry, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.LedgerEntry{}, err
	}

	entry := domain.LedgerEntry{
		ID:           xid.New("led"),
		TenantID:     actor.TenantID,
		Type:         domain.LedgerExpense,
		Amount:       req.Amount,
		Delta:        decimal.Zero,
		BalanceAfter: decimal.Zero,
		PaymentMode:  req.Mode.OrCash(),
		Remark:       strings.TrimSpace(req.Remark),
		Category:     strings.TrimSpace(req.Category),
		Source:       domain.SourceManual,
		CreatedBy:    actor.UserID,
		Date:         s.now(),
	}
	if err := s.runTx(ctx, "record_expense", func(tx store.Tx) error {
		return tx.AppendLedgerEntry(ctx, entry)
	}); err != nil {
		return domain.LedgerEntry{}, s.fail(actor, "record_expense", entry.Category, err)
	}

	s.committed(ctx, actor, "expense_record", "ledger", entry.ID, fmt.Sprintf("category=%s,amount=%s", entry.Category, entry.Amount))
	return entry, nil
}
