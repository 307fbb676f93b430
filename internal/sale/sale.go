// Package sale holds the invoice aggregate and its state transitions. Functions here never touch
// storage; the coordinator persists whatever they produce.
package sale

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/inventory"
	"udhaar/backend/internal/pricing"
)

// Line is one requested sale line resolved against the product read in the current unit.
type Line struct {
	Product  domain.Product
	Unit     string
	Quantity decimal.Decimal
}

// BuildItems prices and converts every line and aggregates the base quantity each product needs.
func BuildItems(lines []Line) ([]domain.SaleItem, inventory.Requirement, error) {
	if len(lines) == 0 {
		return nil, nil, domain.ErrEmptySale
	}

	items := make([]domain.SaleItem, 0, len(lines))
	req := inventory.Requirement{}
	for _, line := range lines {
		p := line.Product
		if !p.IsActive {
			return nil, nil, domain.ErrInactiveProduct.With("product %s is inactive", p.Name)
		}
		unit := pricing.NormalizeUnit(line.Unit)
		if unit == "" {
			unit = pricing.NormalizeUnit(p.BaseUnit)
		}

		price, err := pricing.UnitPrice(p, unit)
		if err != nil {
			return nil, nil, err
		}
		total, err := pricing.LineTotal(p, unit, line.Quantity)
		if err != nil {
			return nil, nil, err
		}
		if !total.IsPositive() {
			return nil, nil, pricing.ErrInvalidPrice.With("invalid price for %s", p.Name)
		}
		factor, err := pricing.ConversionFactor(p, unit)
		if err != nil {
			return nil, nil, err
		}
		base := line.Quantity.Mul(factor)

		items = append(items, domain.SaleItem{
			ProductID:              p.ID,
			ProductName:            p.Name,
			SellingUnit:            unit,
			Quantity:               line.Quantity,
			ReturnedQty:            decimal.Zero,
			Price:                  price,
			Total:                  total,
			CostPriceAtSale:        p.LastPurchaseCost,
			ConvertedBaseQuantity:  base,
			ConversionFactorAtSale: factor,
			BaseUnitAtSale:         p.BaseUnit,
		})
		req.Add(p.ID, base)
	}
	return items, req, nil
}

type Totals struct {
	Total    decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
	Paid     decimal.Decimal
	Pending  decimal.Decimal
}

// ComputeTotals derives the invoice amounts. Discount outside [0, total] and payment outside
// [0, final] are rejected rather than clamped.
func ComputeTotals(items []domain.SaleItem, discount, payment decimal.Decimal) (Totals, error) {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	if discount.IsNegative() {
		return Totals{}, domain.ErrInvalidAmount.With("discount cannot be negative")
	}
	if discount.GreaterThan(total) {
		return Totals{}, domain.ErrDiscountExceedsTotal
	}
	final := total.Sub(discount)
	if payment.IsNegative() {
		return Totals{}, domain.ErrInvalidAmount.With("payment cannot be negative")
	}
	if payment.GreaterThan(final) {
		return Totals{}, domain.ErrPaymentExceedsPayable
	}
	return Totals{
		Total:    total,
		Discount: discount,
		Final:    final,
		Paid:     payment,
		Pending:  final.Sub(payment),
	}, nil
}

type Params struct {
	ID              string
	TenantID        string
	InvoiceNumber   string
	Customer        *domain.Customer
	DeliveryAddress string
	Items           []domain.SaleItem
	Totals          Totals
	DueDate         time.Time
	IdempotencyKey  string
	CreatedBy       string
	At              time.Time
}

// New assembles a sale in its initial state.
func New(p Params) domain.Sale {
	s := domain.Sale{
		ID:             p.ID,
		TenantID:       p.TenantID,
		InvoiceNumber:  p.InvoiceNumber,
		Items:          p.Items,
		TotalAmount:    p.Totals.Total,
		Discount:       p.Totals.Discount,
		FinalAmount:    p.Totals.Final,
		PaidAmount:     p.Totals.Paid,
		PendingAmount:  p.Totals.Pending,
		Adjustments:    decimal.Zero,
		ReturnsAmount:  decimal.Zero,
		PaymentType:    domain.PaymentTypeUdhaar,
		Returns:        []domain.ReturnRef{},
		DueDate:        p.DueDate,
		IdempotencyKey: p.IdempotencyKey,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.At,
		UpdatedAt:      p.At,
	}
	if p.Totals.Paid.IsPositive() {
		s.PaymentType = domain.PaymentTypeCash
	}

	s.DeliveryAddress = p.DeliveryAddress
	if c := p.Customer; c != nil {
		s.Customer = &domain.CustomerSnapshot{
			ID:       c.ID,
			Name:     c.Name,
			ShopName: c.ShopName,
			Phone:    c.Phone,
			Address:  c.Address,
		}
		if s.DeliveryAddress == "" {
			s.DeliveryAddress = c.Address
		}
	}
	if s.DeliveryAddress == "" {
		s.DeliveryAddress = "N/A"
	}

	Recompute(&s)
	return s
}

// DeriveStatus maps balances to a status for any sale that is not cancelled.
func DeriveStatus(pending, paid decimal.Decimal) domain.SaleStatus {
	switch {
	case !pending.IsPositive():
		return domain.SaleStatusPaid
	case paid.IsPositive():
		return domain.SaleStatusPartial
	default:
		return domain.SaleStatusOpen
	}
}

// Recompute refreshes the status. CANCELLED is terminal and never recomputed.
func Recompute(s *domain.Sale) {
	if s.Status == domain.SaleStatusCancelled {
		return
	}
	s.Status = DeriveStatus(s.PendingAmount, s.PaidAmount)
}

func ensureOpen(s *domain.Sale) error {
	if s.Status == domain.SaleStatusCancelled {
		return domain.ErrSaleCancelled
	}
	return nil
}

// ApplyPayment records cash received against the sale.
func ApplyPayment(s *domain.Sale, amount decimal.Decimal, at time.Time) error {
	if err := ensureOpen(s); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if amount.GreaterThan(s.PendingAmount) {
		return domain.ErrPaymentExceedsBalance.With("payment %s exceeds balance %s", amount.String(), s.PendingAmount.String())
	}
	s.PaidAmount = s.PaidAmount.Add(amount)
	s.PendingAmount = s.PendingAmount.Sub(amount)
	s.UpdatedAt = at
	Recompute(s)
	return nil
}

// ApplyAdjustment reduces the pending amount for a reason other than a return.
func ApplyAdjustment(s *domain.Sale, amount decimal.Decimal, at time.Time) error {
	if err := ensureOpen(s); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if amount.GreaterThan(s.PendingAmount) {
		return domain.ErrAdjustmentExceedsPending
	}
	s.PendingAmount = s.PendingAmount.Sub(amount)
	s.Adjustments = s.Adjustments.Add(amount)
	s.UpdatedAt = at
	Recompute(s)
	return nil
}

type CancelResult struct {
	// Released is the pending amount that was still owed when the sale was cancelled.
	Released decimal.Decimal
	Restore  inventory.Requirement
}

// Cancel fully reverses the sale. Every line's recorded base quantity is restored, ignoring any
// earlier partial returns.
func Cancel(s *domain.Sale, at time.Time) (CancelResult, error) {
	if s.Status == domain.SaleStatusCancelled {
		return CancelResult{}, domain.ErrAlreadyCancelled
	}

	restore := inventory.Requirement{}
	for _, item := range s.Items {
		restore.Add(item.ProductID, item.ConvertedBaseQuantity)
	}
	released := s.PendingAmount

	s.PendingAmount = decimal.Zero
	s.Status = domain.SaleStatusCancelled
	cancelledAt := at
	s.CancelledAt = &cancelledAt
	s.UpdatedAt = at

	return CancelResult{Released: released, Restore: restore}, nil
}

// CheckInvariant verifies the balance equation and the derived status.
func CheckInvariant(s domain.Sale) error {
	if s.Status == domain.SaleStatusCancelled {
		if !s.PendingAmount.IsZero() {
			return fmt.Errorf("sale %s: cancelled with pending %s", s.ID, s.PendingAmount)
		}
		return nil
	}
	if !s.FinalAmount.Equal(s.TotalAmount.Sub(s.Discount)) {
		return fmt.Errorf("sale %s: final %s != total %s - discount %s", s.ID, s.FinalAmount, s.TotalAmount, s.Discount)
	}
	want := s.FinalAmount.Sub(s.PaidAmount).Sub(s.Adjustments).Sub(s.ReturnsAmount)
	if !s.PendingAmount.Equal(want) {
		return fmt.Errorf("sale %s: pending %s != %s", s.ID, s.PendingAmount, want)
	}
	if s.PendingAmount.IsNegative() {
		return fmt.Errorf("sale %s: negative pending %s", s.ID, s.PendingAmount)
	}
	if got := DeriveStatus(s.PendingAmount, s.PaidAmount); got != s.Status {
		return fmt.Errorf("sale %s: status %s, balances imply %s", s.ID, s.Status, got)
	}
	return nil
}
