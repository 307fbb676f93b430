package sale

import (
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/inventory"
	"udhaar/backend/internal/pricing"
)

type ReturnLine struct {
	ProductID string
	Unit      string
	Quantity  decimal.Decimal
}

// ReturnPlan is a validated return that has not been applied yet.
type ReturnPlan struct {
	Type    domain.ReturnType
	Items   []domain.ReturnItem
	Nominal decimal.Decimal
	Refund  decimal.Decimal
	Restore inventory.Requirement

	returned map[int]decimal.Decimal
}

// PlanReturn validates a return against the sale. Both return types are bounded by the quantity
// not yet returned; only STOCK_RETURN moves stock and returned quantities.
func PlanReturn(s domain.Sale, lines []ReturnLine, typ domain.ReturnType, adjust decimal.Decimal) (ReturnPlan, error) {
	if s.Status == domain.SaleStatusCancelled {
		return ReturnPlan{}, domain.ErrSaleCancelled.With("cannot return items of a cancelled sale")
	}
	if len(lines) == 0 {
		return ReturnPlan{}, domain.ErrEmptyReturn
	}
	if typ == "" {
		typ = domain.ReturnStock
	}

	plan := ReturnPlan{
		Type:     typ,
		Items:    make([]domain.ReturnItem, 0, len(lines)),
		Nominal:  decimal.Zero,
		Restore:  inventory.Requirement{},
		returned: map[int]decimal.Decimal{},
	}
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			return ReturnPlan{}, pricing.ErrInvalidQuantity
		}
		idx := findItem(s.Items, line)
		if idx < 0 {
			return ReturnPlan{}, domain.ErrItemNotInSale.With("product %s not found in sale", line.ProductID)
		}
		item := s.Items[idx]

		requested := plan.returned[idx].Add(line.Quantity)
		if requested.GreaterThan(item.RemainingQty()) {
			return ReturnPlan{}, domain.ErrReturnExceedsSold.With("return quantity for %s exceeds sold quantity (sold %s, returned %s)",
				item.ProductName, item.Quantity.String(), item.ReturnedQty.String())
		}
		plan.returned[idx] = requested
		plan.Nominal = plan.Nominal.Add(item.Price.Mul(line.Quantity))

		restocked := decimal.Zero
		if typ == domain.ReturnStock {
			restocked = line.Quantity.Mul(item.ConversionFactorAtSale)
			plan.Restore.Add(item.ProductID, restocked)
		}
		plan.Items = append(plan.Items, domain.ReturnItem{
			ProductID:       item.ProductID,
			SellingUnit:     item.SellingUnit,
			Quantity:        line.Quantity,
			PriceAtSale:     item.Price,
			BaseQuantity:    restocked,
			CostPriceAtSale: item.CostPriceAtSale,
		})
	}

	plan.Refund = plan.Nominal
	if typ == domain.ReturnPriceAdjustment {
		if !adjust.IsPositive() {
			return ReturnPlan{}, domain.ErrAdjustmentRequired
		}
		if adjust.GreaterThan(plan.Nominal) {
			return ReturnPlan{}, domain.ErrAdjustmentExceedsValue
		}
		plan.Refund = adjust
	}

	if plan.Refund.GreaterThan(s.PendingAmount) {
		return ReturnPlan{}, domain.ErrReturnExceedsPending.With("return %s exceeds pending %s", plan.Refund.String(), s.PendingAmount.String())
	}
	return plan, nil
}

// ApplyReturn mutates the sale with a plan produced by PlanReturn on the same snapshot.
func ApplyReturn(s *domain.Sale, plan ReturnPlan, returnID string, at time.Time) {
	if plan.Type == domain.ReturnStock {
		for idx, qty := range plan.returned {
			s.Items[idx].ReturnedQty = s.Items[idx].ReturnedQty.Add(qty)
		}
	}
	s.PendingAmount = s.PendingAmount.Sub(plan.Refund)
	s.ReturnsAmount = s.ReturnsAmount.Add(plan.Refund)
	s.Returns = append(s.Returns, domain.ReturnRef{ReturnID: returnID, Amount: plan.Refund, CreatedAt: at})
	s.UpdatedAt = at
	Recompute(s)
}

// Returnable lists what can still be returned from each line.
func Returnable(s domain.Sale) []domain.ReturnableItem {
	out := make([]domain.ReturnableItem, 0, len(s.Items))
	if s.Status == domain.SaleStatusCancelled {
		return out
	}
	for _, item := range s.Items {
		available := item.RemainingQty()
		if !available.IsPositive() {
			continue
		}
		out = append(out, domain.ReturnableItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			SellingUnit:  item.SellingUnit,
			Price:        item.Price,
			SoldQty:      item.Quantity,
			ReturnedQty:  item.ReturnedQty,
			AvailableQty: available,
		})
	}
	return out
}

func findItem(items []domain.SaleItem, line ReturnLine) int {
	unit := pricing.NormalizeUnit(line.Unit)
	for i, item := range items {
		if item.ProductID != line.ProductID {
			continue
		}
		if unit == "" || item.SellingUnit == unit {
			return i
		}
	}
	return -1
}
