package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/inventory"
	"udhaar/backend/internal/ledger"
	"udhaar/backend/internal/sale"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/validation"
	"udhaar/backend/internal/xid"
)

// SaleResult reports whether the sale was created by this call or replayed from an earlier one.
type SaleResult struct {
	Sale      domain.Sale
	Duplicate bool
}

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (SaleResult, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return SaleResult{}, err
	}
	if err := validation.Struct(req); err != nil {
		return SaleResult{}, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	tenantID := actor.TenantID

	var result SaleResult
	err = s.runTx(ctx, "create_sale", func(tx store.Tx) error {
		if key != "" {
			existing, err := tx.FindSaleByIdempotencyKey(ctx, tenantID, key)
			if err == nil {
				result = SaleResult{Sale: *existing, Duplicate: true}
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		ids := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			ids = append(ids, strings.TrimSpace(item.ProductID))
		}
		products, err := tx.GetProducts(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		lines := make([]sale.Line, 0, len(req.Items))
		for i, item := range req.Items {
			product, ok := products[ids[i]]
			if !ok || !product.IsActive {
				return fmt.Errorf("product %s: %w", ids[i], store.ErrNotFound)
			}
			lines = append(lines, sale.Line{Product: product, Unit: item.Unit, Quantity: item.Quantity})
		}

		items, requirement, err := sale.BuildItems(lines)
		if err != nil {
			return err
		}
		if err := inventory.Validate(products, requirement); err != nil {
			return err
		}
		totals, err := sale.ComputeTotals(items, req.Discount, req.PaymentReceived)
		if err != nil {
			return err
		}

		var customer *domain.Customer
		if id := strings.TrimSpace(req.CustomerID); id != "" {
			customer, err = tx.GetCustomer(ctx, tenantID, id)
			if err != nil {
				return fmt.Errorf("customer %s: %w", id, err)
			}
		}

		seq, err := tx.NextInvoiceSequence(ctx, tenantID)
		if err != nil {
			return err
		}
		now := s.now()
		dueDate := now.AddDate(0, 0, s.dueDays)
		if req.DueDate != nil && !req.DueDate.IsZero() {
			dueDate = req.DueDate.UTC()
		}

		created := sale.New(sale.Params{
			ID:              xid.New("sale"),
			TenantID:        tenantID,
			InvoiceNumber:   fmt.Sprintf("%s-%08d", s.invoicePrefix, seq),
			Customer:        customer,
			DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
			Items:           items,
			Totals:          totals,
			DueDate:         dueDate,
			IdempotencyKey:  key,
			CreatedBy:       actor.UserID,
			At:              now,
		})
		if err := tx.InsertSale(ctx, created); err != nil {
			return err
		}
		if err := inventory.DeductAll(ctx, tx, tenantID, requirement); err != nil {
			return err
		}

		method := req.PaymentMethod.OrCash()
		if customer != nil {
			posting := ledger.Posting{
				TenantID:   tenantID,
				CustomerID: customer.ID,
				SaleID:     created.ID,
				Type:       domain.LedgerSale,
				Remark:     "Invoice " + created.InvoiceNumber,
				Source:     domain.SourceBilling,
				CreatedBy:  actor.UserID,
				At:         now,
			}
			if _, err := ledger.ApplyDelta(ctx, tx, posting, totals.Pending); err != nil {
				return err
			}
			if totals.Paid.IsPositive() {
				// Cash collected at billing never entered the due, so it is recorded without moving it.
				posting.Type = domain.LedgerPayment
				posting.Amount = totals.Paid
				posting.PaymentMode = method
				posting.Remark = "Paid at billing " + created.InvoiceNumber
				if _, err := ledger.ApplyDelta(ctx, tx, posting, decimal.Zero); err != nil {
					return err
				}
				// Walk-in cash lives on the sale's PaidAmount only; payment records belong to a customer.
				err := tx.InsertPayment(ctx, domain.Payment{
					ID:         xid.New("pay"),
					TenantID:   tenantID,
					CustomerID: customer.ID,
					SaleID:     created.ID,
					Amount:     totals.Paid,
					Method:     method,
					CreatedAt:  now,
				})
				if err != nil {
					return err
				}
			}
		}

		result = SaleResult{Sale: created}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key committed first. Serializable isolation reports
		// that as a write conflict rather than a unique violation.
		if key != "" && (errors.Is(err, store.ErrDuplicateKey) || errors.Is(err, domain.ErrRetry)) {
			if existing, findErr := s.repo.FindSaleByIdempotencyKey(ctx, tenantID, key); findErr == nil {
				return SaleResult{Sale: *existing, Duplicate: true}, nil
			}
		}
		return SaleResult{}, s.fail(actor, "create_sale", key, err)
	}

	if !result.Duplicate {
		s.committed(ctx, actor, "sale_create", "sale", result.Sale.ID, fmt.Sprintf("invoice=%s,final=%s,paid=%s",
			result.Sale.InvoiceNumber, result.Sale.FinalAmount, result.Sale.PaidAmount))
	}
	return result, nil
}

// mutateSale loads a sale inside a unit of work, hands it to fn, and persists the result.
func (s *Service) mutateSale(ctx context.Context, op string, saleID string, fn func(tx store.Tx, actor domain.Actor, current *domain.Sale) error) (domain.Sale, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	var out domain.Sale
	err = s.runTx(ctx, op, func(tx store.Tx) error {
		current, err := tx.GetSale(ctx, actor.TenantID, saleID)
		if err != nil {
			return fmt.Errorf("sale %s: %w", saleID, err)
		}
		if err := fn(tx, actor, current); err != nil {
			return err
		}
		if err := tx.UpdateSale(ctx, *current); err != nil {
			return err
		}
		out = *current
		return nil
	})
	if err != nil {
		return domain.Sale{}, s.fail(actor, op, saleID, err)
	}
	return out, nil
}

func (s *Service) ReceiveSalePayment(ctx context.Context, saleID string, req domain.SalePaymentRequest) (domain.Sale, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Sale{}, err
	}
	method := req.Method.OrCash()

	updated, err := s.mutateSale(ctx, "receive_sale_payment", saleID, func(tx store.Tx, actor domain.Actor, current *domain.Sale) error {
		customerID, err := current.RequireCustomer()
		if err != nil {
			return err
		}
		now := s.now()
		if err := sale.ApplyPayment(current, req.Amount, now); err != nil {
			return err
		}
		remark := strings.TrimSpace(req.Note)
		if remark == "" {
			remark = "Payment for " + current.InvoiceNumber
		}
		if _, err := ledger.ApplyDelta(ctx, tx, ledger.Posting{
			TenantID:    actor.TenantID,
			CustomerID:  customerID,
			SaleID:      current.ID,
			Type:        domain.LedgerPayment,
			PaymentMode: method,
			Remark:      remark,
			Source:      domain.SourceManual,
			CreatedBy:   actor.UserID,
			At:          now,
		}, req.Amount.Neg()); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, domain.Payment{
			ID:         xid.New("pay"),
			TenantID:   actor.TenantID,
			CustomerID: customerID,
			SaleID:     current.ID,
			Amount:     req.Amount,
			Method:     method,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return domain.Sale{}, err
	}

	actor, _ := s.tenant(ctx)
	s.committed(ctx, actor, "sale_payment", "sale", updated.ID, fmt.Sprintf("amount=%s,method=%s", req.Amount, method))
	return updated, nil
}

func (s *Service) ProcessReturn(ctx context.Context, saleID string, req domain.ReturnRequest) (domain.ReturnResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ReturnResult{}, err
	}
	typ := req.ReturnType
	if typ == "" {
		typ = domain.ReturnStock
	}
	if !typ.Valid() {
		return domain.ReturnResult{}, domain.ErrInvalidEnum.With("unknown return type %q", string(typ))
	}
	lines := make([]sale.ReturnLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, sale.ReturnLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Unit:      item.Unit,
			Quantity:  item.Quantity,
		})
	}

	var ret domain.Return
	updated, err := s.mutateSale(ctx, "process_return", saleID, func(tx store.Tx, actor domain.Actor, current *domain.Sale) error {
		customerID, err := current.RequireCustomer()
		if err != nil {
			return err
		}
		plan, err := sale.PlanReturn(*current, lines, typ, req.AdjustAmount)
		if err != nil {
			return err
		}

		now := s.now()
		ret = domain.Return{
			ID:                xid.New("ret"),
			TenantID:          actor.TenantID,
			SaleID:            current.ID,
			CustomerID:        customerID,
			Items:             plan.Items,
			TotalReturnAmount: plan.Refund,
			ReturnType:        plan.Type,
			Note:              strings.TrimSpace(req.Note),
			CreatedBy:         actor.UserID,
			CreatedAt:         now,
		}
		sale.ApplyReturn(current, plan, ret.ID, now)

		if err := inventory.RestoreAll(ctx, tx, actor.TenantID, plan.Restore); err != nil {
			return err
		}
		if err := tx.InsertReturn(ctx, ret); err != nil {
			return err
		}
		remark := fmt.Sprintf("Return against %s", current.InvoiceNumber)
		if plan.Type == domain.ReturnPriceAdjustment {
			remark = fmt.Sprintf("Price adjustment against %s", current.InvoiceNumber)
		}
		_, err = ledger.ApplyDelta(ctx, tx, ledger.Posting{
			TenantID:   actor.TenantID,
			CustomerID: customerID,
			SaleID:     current.ID,
			Type:       domain.LedgerReturn,
			Remark:     remark,
			Source:     domain.SourceManual,
			CreatedBy:  actor.UserID,
			At:         now,
		}, plan.Refund.Neg())
		return err
	})
	if err != nil {
		return domain.ReturnResult{}, err
	}

	actor, _ := s.tenant(ctx)
	s.committed(ctx, actor, "sale_return", "sale", updated.ID, fmt.Sprintf("type=%s,amount=%s", ret.ReturnType, ret.TotalReturnAmount))
	return domain.ReturnResult{Sale: updated, Return: ret}, nil
}

func (s *Service) AdjustSale(ctx context.Context, saleID string, req domain.AdjustmentRequest) (domain.AdjustmentResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.AdjustmentResult{}, err
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.AdjustmentRateFix
	}
	if !reason.Valid() {
		return domain.AdjustmentResult{}, domain.ErrInvalidEnum.With("unknown adjustment reason %q", string(reason))
	}
	if reason == domain.AdjustmentReturn {
		return domain.AdjustmentResult{}, domain.ErrAdjustmentUseReturn
	}

	var adj domain.Adjustment
	updated, err := s.mutateSale(ctx, "adjust_sale", saleID, func(tx store.Tx, actor domain.Actor, current *domain.Sale) error {
		now := s.now()
		if err := sale.ApplyAdjustment(current, req.Amount, now); err != nil {
			return err
		}
		adj = domain.Adjustment{
			ID:        xid.New("adj"),
			TenantID:  actor.TenantID,
			SaleID:    current.ID,
			Amount:    req.Amount,
			Reason:    reason,
			Note:      strings.TrimSpace(req.Note),
			CreatedBy: actor.UserID,
			CreatedAt: now,
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return err
		}
		customerID, ok := current.CustomerID()
		if !ok {
			return nil
		}
		_, err := ledger.ApplyDelta(ctx, tx, ledger.Posting{
			TenantID:   actor.TenantID,
			CustomerID: customerID,
			SaleID:     current.ID,
			Type:       domain.LedgerAdjustment,
			Remark:     fmt.Sprintf("%s adjustment on %s", reason, current.InvoiceNumber),
			Source:     domain.SourceManual,
			CreatedBy:  actor.UserID,
			At:         now,
		}, req.Amount.Neg())
		return err
	})
	if err != nil {
		return domain.AdjustmentResult{}, err
	}

	actor, _ := s.tenant(ctx)
	s.committed(ctx, actor, "sale_adjust", "sale", updated.ID, fmt.Sprintf("reason=%s,amount=%s", reason, req.Amount))
	return domain.AdjustmentResult{Sale: updated, Adjustment: adj}, nil
}

func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	if _, err := s.owner(ctx); err != nil {
		return domain.Sale{}, err
	}

	var released decimal.Decimal
	updated, err := s.mutateSale(ctx, "cancel_sale", saleID, func(tx store.Tx, actor domain.Actor, current *domain.Sale) error {
		now := s.now()
		res, err := sale.Cancel(current, now)
		if err != nil {
			return err
		}
		released = res.Released
		if err := inventory.RestoreAll(ctx, tx, actor.TenantID, res.Restore); err != nil {
			return err
		}
		customerID, ok := current.CustomerID()
		if !ok || !res.Released.IsPositive() {
			return nil
		}
		_, err = ledger.ApplyDelta(ctx, tx, ledger.Posting{
			TenantID:   actor.TenantID,
			CustomerID: customerID,
			SaleID:     current.ID,
			Type:       domain.LedgerAdjustment,
			Remark:     "Sale cancelled",
			Source:     domain.SourceManual,
			CreatedBy:  actor.UserID,
			At:         now,
		}, res.Released.Neg())
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	actor, _ := s.tenant(ctx)
	s.committed(ctx, actor, "sale_cancel", "sale", updated.ID, fmt.Sprintf("invoice=%s,released=%s", updated.InvoiceNumber, released))
	return updated, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	found, err := s.repo.GetSale(ctx, actor.TenantID, saleID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", saleID, err)
	}
	return *found, nil
}

type SaleQuery struct {
	Status     domain.SaleStatus
	CustomerID string
	Limit      int
}

// ListSales returns the tenant's sales newest first.
func (s *Service) ListSales(ctx context.Context, q SaleQuery) ([]domain.Sale, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, domain.ErrInvalidEnum.With("unknown sale status %q", string(q.Status))
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return s.repo.ListSales(ctx, store.SaleFilter{
		TenantID:   actor.TenantID,
		Status:     q.Status,
		CustomerID: q.CustomerID,
		Limit:      q.Limit,
	})
}

func (s *Service) ReturnableItems(ctx context.Context, saleID string) ([]domain.ReturnableItem, error) {
	found, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return sale.Returnable(found), nil
}
