// Package inventory applies stock movements in base units inside a unit of work.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

// Requirement accumulates base quantities per product across lines.
type Requirement map[string]decimal.Decimal

func (r Requirement) Add(productID string, qty decimal.Decimal) {
	r[productID] = r[productID].Add(qty)
}

// ProductIDs returns the products in sorted order so concurrent units touch rows in the same order.
func (r Requirement) ProductIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks every requirement against the stock read in the current unit before any write.
func Validate(products map[string]domain.Product, req Requirement) error {
	for _, id := range req.ProductIDs() {
		product, ok := products[id]
		if !ok {
			return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		need := req[id]
		if product.Stock.LessThan(need) {
			return domain.ErrInsufficientStock.With("Insufficient stock for %s. Available: %s %s, Required: %s %s",
				product.Name, product.Stock.String(), product.BaseUnit, need.String(), product.BaseUnit)
		}
	}
	return nil
}

// DeductAll issues one conditional decrement per product. A decrement that matches no row aborts
// the whole unit with store.ErrStockConflict.
func DeductAll(ctx context.Context, w store.StockWriter, tenantID string, req Requirement) error {
	for _, id := range req.ProductIDs() {
		qty := req[id]
		if !qty.IsPositive() {
			continue
		}
		if err := w.DeductStock(ctx, tenantID, id, qty); err != nil {
			if errors.Is(err, store.ErrStockConflict) {
				return fmt.Errorf("deduct %s: %w", id, err)
			}
			return err
		}
	}
	return nil
}

// RestoreAll returns stock after a cancellation or return.
func RestoreAll(ctx context.Context, w store.StockWriter, tenantID string, req Requirement) error {
	for _, id := range req.ProductIDs() {
		if err := Add(ctx, w, tenantID, id, req[id]); err != nil {
			return err
		}
	}
	return nil
}

// Add is an unconditional increment used for purchase receipts and restores.
func Add(ctx context.Context, w store.StockWriter, tenantID string, productID string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return nil
	}
	return w.IncreaseStock(ctx, tenantID, productID, qty)
}
