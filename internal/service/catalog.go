package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/inventory"
	"udhaar/backend/internal/pricing"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/validation"
	"udhaar/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Product{}, err
	}

	levels := make([]domain.PackagingLevel, 0, len(req.PackagingLevels))
	for _, level := range req.PackagingLevels {
		levels = append(levels, domain.PackagingLevel{Name: level.Name, Quantity: level.Quantity})
	}
	now := s.now()
	product := pricing.Normalize(domain.Product{
		ID:               xid.New("prod"),
		TenantID:         actor.TenantID,
		Name:             strings.TrimSpace(req.Name),
		BaseUnit:         req.BaseUnit,
		PackagingLevels:  levels,
		DefaultPrices:    req.DefaultPrices,
		SellingPrice:     req.SellingPrice,
		LastPurchaseCost: req.LastPurchaseCost,
		PurchaseUnit:     req.PurchaseUnit,
		Stock:            req.InitialStock,
		MinStockAlert:    req.MinStockAlert,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if product.PurchaseUnit == "" {
		product.PurchaseUnit = product.BaseUnit
	}
	if err := pricing.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}

	if err := s.runTx(ctx, "create_product", func(tx store.Tx) error {
		return tx.InsertProduct(ctx, product)
	}); err != nil {
		return domain.Product{}, s.fail(actor, "create_product", product.Name, err)
	}

	s.committed(ctx, actor, "product_create", "product", product.ID, fmt.Sprintf("name=%s,stock=%s %s", product.Name, product.Stock, product.BaseUnit))
	return product, nil
}

// ReceivePurchase adds stock bought in any declared unit and records the cost per base unit.
func (s *Service) ReceivePurchase(ctx context.Context, productID string, req domain.PurchaseRequest) (domain.Product, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Product{}, err
	}
	_, products, err := s.receive(ctx, actor, domain.PurchaseCreateRequest{
		Items: []domain.PurchaseLineRequest{{ProductID: productID, Unit: req.Unit, Quantity: req.Quantity, UnitCost: req.UnitCost}},
	})
	if err != nil {
		return domain.Product{}, err
	}
	return products[productID], nil
}

// RecordPurchase stores a supplier bill and receives every line into stock. Each line moves the
// product's last purchase cost; when a bill repeats a product the later line wins.
func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Purchase{}, err
	}
	if err := validation.Struct(req); err != nil {
		return domain.Purchase{}, err
	}
	purchase, _, err := s.receive(ctx, actor, req)
	return purchase, err
}

func (s *Service) ListPurchases(ctx context.Context, from time.Time, to time.Time) ([]domain.Purchase, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchases(ctx, actor.TenantID, from, to)
}

// receive runs one purchase as a unit of work and returns the stored record with the products
// as they stand after it.
func (s *Service) receive(ctx context.Context, actor domain.Actor, req domain.PurchaseCreateRequest) (domain.Purchase, map[string]domain.Product, error) {
	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, strings.TrimSpace(line.ProductID))
	}
	purchase := domain.Purchase{
		ID:            xid.New("pur"),
		TenantID:      actor.TenantID,
		SupplierName:  strings.TrimSpace(req.SupplierName),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Items:         make([]domain.PurchaseItem, 0, len(req.Items)),
		TotalAmount:   decimal.Zero,
		Note:          strings.TrimSpace(req.Note),
		CreatedBy:     actor.UserID,
		CreatedAt:     s.now(),
	}

	var after map[string]domain.Product
	err := s.runTx(ctx, "receive_purchase", func(tx store.Tx) error {
		products, err := tx.GetProducts(ctx, actor.TenantID, ids)
		if err != nil {
			return err
		}
		for i, line := range req.Items {
			product, ok := products[ids[i]]
			if !ok || !product.IsActive {
				return fmt.Errorf("product %s: %w", ids[i], store.ErrNotFound)
			}
			unit := pricing.NormalizeUnit(line.Unit)
			factor, err := pricing.ConversionFactor(product, unit)
			if err != nil {
				return err
			}
			base, err := pricing.ToBaseQuantity(product, unit, line.Quantity)
			if err != nil {
				return err
			}
			cost, err := pricing.PerBaseUnit(product, unit, line.UnitCost)
			if err != nil {
				return err
			}
			if err := inventory.Add(ctx, tx, actor.TenantID, product.ID, base); err != nil {
				return err
			}
			if err := tx.UpdateProductCost(ctx, actor.TenantID, product.ID, cost); err != nil {
				return err
			}
			total := line.Quantity.Mul(line.UnitCost)
			purchase.TotalAmount = purchase.TotalAmount.Add(total)
			purchase.Items = append(purchase.Items, domain.PurchaseItem{
				ProductID:                  product.ID,
				ProductName:                product.Name,
				PurchaseUnit:               unit,
				Quantity:                   line.Quantity,
				UnitCost:                   line.UnitCost,
				TotalCost:                  total,
				ConvertedBaseQuantity:      base,
				ConversionFactorAtPurchase: factor,
				BaseUnitAtPurchase:         product.BaseUnit,
				CostPerBaseUnit:            cost,
			})
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}
		after, err = tx.GetProducts(ctx, actor.TenantID, ids)
		return err
	})
	if err != nil {
		return domain.Purchase{}, nil, s.fail(actor, "receive_purchase", purchase.ID, err)
	}

	s.committed(ctx, actor, "purchase_receive", "purchase", purchase.ID, fmt.Sprintf("supplier=%s,lines=%d,total=%s",
		purchase.SupplierName, len(purchase.Items), purchase.TotalAmount))
	return purchase, after, nil
}
