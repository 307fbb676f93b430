// Package pricing resolves a product's packaging hierarchy to base-unit multipliers and unit prices.
// Every function is pure over a product snapshot.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
)

var (
	ErrUnknownUnit      = &domain.RuleError{Code: "UNKNOWN_UNIT", Message: "unknown unit"}
	ErrInvalidQuantity  = &domain.RuleError{Code: "INVALID_QUANTITY", Message: "quantity must be greater than zero"}
	ErrPriceNotDefined  = &domain.RuleError{Code: "PRICE_NOT_DEFINED", Message: "price not defined for unit"}
	ErrInvalidPrice     = &domain.RuleError{Code: "INVALID_PRICE", Message: "invalid price"}
	ErrInvalidPackaging = &domain.RuleError{Code: "INVALID_PACKAGING", Message: "invalid packaging levels"}
)

// NormalizeUnit trims and lowercases a unit name.
func NormalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// ConversionFactor returns how many base units one unit holds. Level factors are cumulative in
// declared order.
func ConversionFactor(p domain.Product, unit string) (decimal.Decimal, error) {
	unit = NormalizeUnit(unit)
	if unit == NormalizeUnit(p.BaseUnit) {
		return decimal.NewFromInt(1), nil
	}

	factor := decimal.NewFromInt(1)
	for _, level := range p.PackagingLevels {
		factor = factor.Mul(decimal.NewFromInt(level.Quantity))
		if NormalizeUnit(level.Name) == unit {
			return factor, nil
		}
	}
	return decimal.Zero, ErrUnknownUnit.With("unknown unit %q for %s", unit, p.Name)
}

func ToBaseQuantity(p domain.Product, unit string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	factor, err := ConversionFactor(p, unit)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(factor), nil
}

// UnitPrice resolves the price of one unit. The base unit prefers the selling price override.
func UnitPrice(p domain.Product, unit string) (decimal.Decimal, error) {
	unit = NormalizeUnit(unit)
	if _, err := ConversionFactor(p, unit); err != nil {
		return decimal.Zero, err
	}

	var (
		price decimal.Decimal
		ok    bool
	)
	if unit == NormalizeUnit(p.BaseUnit) && p.SellingPrice.Valid {
		price, ok = p.SellingPrice.Decimal, true
	} else {
		price, ok = lookupPrice(p.DefaultPrices, unit)
	}
	if !ok {
		return decimal.Zero, ErrPriceNotDefined.With("price not defined for unit %q of %s", unit, p.Name)
	}
	if price.IsNegative() {
		return decimal.Zero, ErrInvalidPrice.With("invalid price for unit %q of %s", unit, p.Name)
	}
	return price, nil
}

func LineTotal(p domain.Product, unit string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	price, err := UnitPrice(p, unit)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(price), nil
}

// PerBaseUnit converts a cost quoted per unit into a cost per base unit.
func PerBaseUnit(p domain.Product, unit string, cost decimal.Decimal) (decimal.Decimal, error) {
	factor, err := ConversionFactor(p, unit)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.Div(factor), nil
}

// Normalize returns a copy of p with every unit name normalized.
func Normalize(p domain.Product) domain.Product {
	p.BaseUnit = NormalizeUnit(p.BaseUnit)
	p.PurchaseUnit = NormalizeUnit(p.PurchaseUnit)
	levels := make([]domain.PackagingLevel, len(p.PackagingLevels))
	for i, level := range p.PackagingLevels {
		levels[i] = domain.PackagingLevel{Name: NormalizeUnit(level.Name), Quantity: level.Quantity}
	}
	p.PackagingLevels = levels
	prices := make(map[string]decimal.Decimal, len(p.DefaultPrices))
	for unit, price := range p.DefaultPrices {
		prices[NormalizeUnit(unit)] = price
	}
	p.DefaultPrices = prices
	return p
}

// ValidateProduct checks the catalog invariants of a normalized product.
func ValidateProduct(p domain.Product) error {
	if p.BaseUnit == "" {
		return ErrInvalidPackaging.With("base unit is required")
	}
	seen := map[string]bool{p.BaseUnit: true}
	for _, level := range p.PackagingLevels {
		if level.Name == "" {
			return ErrInvalidPackaging.With("packaging level name is required")
		}
		if seen[level.Name] {
			return ErrInvalidPackaging.With("duplicate unit %q", level.Name)
		}
		if level.Quantity < 2 {
			return ErrInvalidPackaging.With("packaging level %q must hold at least 2 units", level.Name)
		}
		seen[level.Name] = true
	}

	if _, ok := p.DefaultPrices[p.BaseUnit]; !ok {
		return ErrPriceNotDefined.With("default price for base unit %q is required", p.BaseUnit)
	}
	for unit, price := range p.DefaultPrices {
		if !seen[unit] {
			return ErrUnknownUnit.With("price unit %q is not declared", unit)
		}
		if price.IsNegative() {
			return ErrInvalidPrice.With("price for %q cannot be negative", unit)
		}
	}
	if p.SellingPrice.Valid && p.SellingPrice.Decimal.IsNegative() {
		return ErrInvalidPrice.With("selling price cannot be negative")
	}
	if p.PurchaseUnit != "" && !seen[p.PurchaseUnit] {
		return ErrUnknownUnit.With("purchase unit %q is not declared", p.PurchaseUnit)
	}
	if p.LastPurchaseCost.IsNegative() || p.Stock.IsNegative() || p.MinStockAlert.IsNegative() {
		return domain.ErrInvalidProduct.With("cost and stock values for %s cannot be negative", p.Name)
	}
	return nil
}

func lookupPrice(prices map[string]decimal.Decimal, unit string) (decimal.Decimal, bool) {
	if price, ok := prices[unit]; ok {
		return price, true
	}
	for k, price := range prices {
		if NormalizeUnit(k) == unit {
			return price, true
		}
	}
	return decimal.Zero, false
}
