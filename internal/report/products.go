package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
)

type LowStockProduct struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	BaseUnit      string          `json:"base_unit"`
	Stock         decimal.Decimal `json:"stock"`
	MinStockAlert decimal.Decimal `json:"min_stock_alert"`
}

type LowStockReport struct {
	Products []LowStockProduct `json:"products"`
}

type ProductProfit struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	BaseUnit  string          `json:"base_unit"`
	SoldQty   decimal.Decimal `json:"sold_qty"`
	Sales     decimal.Decimal `json:"sales"`
	Cost      decimal.Decimal `json:"cost"`
	Returns   decimal.Decimal `json:"returns"`
	Profit    decimal.Decimal `json:"profit"`
}

type ProductProfitReport struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Products []ProductProfit `json:"products"`
	Profit   decimal.Decimal `json:"profit"`
}

// LowStock lists active products at or below their alert threshold, emptiest first.
func (a *Aggregator) LowStock(ctx context.Context, tenantID string) (LowStockReport, error) {
	return cached(ctx, a, tenantID, "low_stock", "all", func(ctx context.Context) (LowStockReport, error) {
		out := LowStockReport{Products: []LowStockProduct{}}
		products, err := a.reader.ListProducts(ctx, tenantID)
		if err != nil {
			return out, err
		}
		for _, p := range products {
			if !p.IsActive || !p.LowStock() {
				continue
			}
			out.Products = append(out.Products, LowStockProduct{
				ProductID:     p.ID,
				Name:          p.Name,
				BaseUnit:      p.BaseUnit,
				Stock:         p.Stock,
				MinStockAlert: p.MinStockAlert,
			})
		}
		sort.SliceStable(out.Products, func(i, j int) bool {
			return out.Products[i].Stock.LessThan(out.Products[j].Stock)
		})
		return out, nil
	})
}

// ProductProfit splits profit by product. Quantities are in base units. A return's refund is
// spread over its lines in proportion to their value at sale price, so a PRICE_ADJUSTMENT that
// refunded less than the nominal value lowers every line alike. Sale-level discounts are not
// attributable to a product and only appear in Profit.
func (a *Aggregator) ProductProfit(ctx context.Context, tenantID string, from, to time.Time) (ProductProfitReport, error) {
	if !from.Before(to) {
		return ProductProfitReport{}, domain.ErrInvalidRange
	}
	return cached(ctx, a, tenantID, "product_profit", rangeKey(from, to), func(ctx context.Context) (ProductProfitReport, error) {
		out := ProductProfitReport{From: from, To: to, Products: []ProductProfit{}, Profit: decimal.Zero}
		rows := map[string]*ProductProfit{}
		row := func(id, name, unit string) *ProductProfit {
			r, ok := rows[id]
			if !ok {
				r = &ProductProfit{ProductID: id, Name: name, BaseUnit: unit, SoldQty: decimal.Zero, Sales: decimal.Zero, Cost: decimal.Zero, Returns: decimal.Zero}
				rows[id] = r
			}
			return r
		}

		sales, err := a.activeSales(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		for _, s := range sales {
			for _, item := range s.Items {
				r := row(item.ProductID, item.ProductName, item.BaseUnitAtSale)
				r.SoldQty = r.SoldQty.Add(item.ConvertedBaseQuantity)
				r.Sales = r.Sales.Add(item.Total)
				r.Cost = r.Cost.Add(item.CostPriceAtSale.Mul(item.ConvertedBaseQuantity))
			}
		}

		returns, err := a.standingReturns(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		if len(returns) > 0 {
			catalog, err := a.reader.ListProducts(ctx, tenantID)
			if err != nil {
				return out, err
			}
			byID := make(map[string]domain.Product, len(catalog))
			for _, p := range catalog {
				byID[p.ID] = p
			}
			for _, ret := range returns {
				for id, refund := range allocateRefund(ret) {
					p := byID[id]
					r := row(id, p.Name, p.BaseUnit)
					r.Returns = r.Returns.Add(refund)
				}
			}
		}

		for _, r := range rows {
			r.Profit = r.Sales.Sub(r.Cost).Sub(r.Returns)
			out.Profit = out.Profit.Add(r.Profit)
			out.Products = append(out.Products, *r)
		}
		sort.SliceStable(out.Products, func(i, j int) bool {
			if !out.Products[i].Profit.Equal(out.Products[j].Profit) {
				return out.Products[i].Profit.GreaterThan(out.Products[j].Profit)
			}
			return out.Products[i].ProductID < out.Products[j].ProductID
		})
		return out, nil
	})
}

// allocateRefund returns, per product, the share of the refund minus the cost of units restocked.
// Shares are rounded to cents; the last line absorbs the rounding so shares add up to the refund.
func allocateRefund(ret domain.Return) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	nominal := decimal.Zero
	for _, item := range ret.Items {
		nominal = nominal.Add(item.PriceAtSale.Mul(item.Quantity))
	}
	if !nominal.IsPositive() {
		return out
	}
	remaining := ret.TotalReturnAmount
	for i, item := range ret.Items {
		share := remaining
		if i < len(ret.Items)-1 {
			share = item.PriceAtSale.Mul(item.Quantity).Mul(ret.TotalReturnAmount).Div(nominal).Round(2)
			remaining = remaining.Sub(share)
		}
		restocked := item.CostPriceAtSale.Mul(item.BaseQuantity)
		out[item.ProductID] = out[item.ProductID].Add(share.Sub(restocked))
	}
	return out
}
