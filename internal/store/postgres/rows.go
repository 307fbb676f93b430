package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
)

// Row types mirror the tables one to one. The unit of work scans them column by column and the
// read side loads them through gorm, so both paths share the same conversions.

const productColumns = `id, tenant_id, name, base_unit, packaging_levels, default_prices, selling_price,
	last_purchase_cost, purchase_unit, stock, min_stock_alert, is_active, created_at, updated_at`

type productRow struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string
	Name             string
	BaseUnit         string
	PackagingLevels  []byte `gorm:"type:jsonb"`
	DefaultPrices    []byte `gorm:"type:jsonb"`
	SellingPrice     decimal.NullDecimal
	LastPurchaseCost decimal.Decimal
	PurchaseUnit     string
	Stock            decimal.Decimal
	MinStockAlert    decimal.Decimal
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (productRow) TableName() string { return "products" }

func (r *productRow) targets() []any {
	return []any{&r.ID, &r.TenantID, &r.Name, &r.BaseUnit, &r.PackagingLevels, &r.DefaultPrices, &r.SellingPrice,
		&r.LastPurchaseCost, &r.PurchaseUnit, &r.Stock, &r.MinStockAlert, &r.IsActive, &r.CreatedAt, &r.UpdatedAt}
}

func (r productRow) toDomain() (domain.Product, error) {
	p := domain.Product{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Name:             r.Name,
		BaseUnit:         r.BaseUnit,
		SellingPrice:     r.SellingPrice,
		LastPurchaseCost: r.LastPurchaseCost,
		PurchaseUnit:     r.PurchaseUnit,
		Stock:            r.Stock,
		MinStockAlert:    r.MinStockAlert,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(r.PackagingLevels, &p.PackagingLevels); err != nil {
		return domain.Product{}, err
	}
	if err := json.Unmarshal(r.DefaultPrices, &p.DefaultPrices); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func productArgs(p domain.Product) ([]any, error) {
	levels, err := json.Marshal(nonNilSlice(p.PackagingLevels))
	if err != nil {
		return nil, err
	}
	prices, err := json.Marshal(p.DefaultPrices)
	if err != nil {
		return nil, err
	}
	return []any{p.ID, p.TenantID, p.Name, p.BaseUnit, levels, prices, p.SellingPrice,
		p.LastPurchaseCost, p.PurchaseUnit, p.Stock, p.MinStockAlert, p.IsActive, p.CreatedAt, p.UpdatedAt}, nil
}

const customerColumns = `id, tenant_id, name, shop_name, phone, address, due_amount, is_active, created_at`

type customerRow struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string
	Name      string
	ShopName  string
	Phone     string
	Address   string
	DueAmount decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
}

func (customerRow) TableName() string { return "customers" }

func (r *customerRow) targets() []any {
	return []any{&r.ID, &r.TenantID, &r.Name, &r.ShopName, &r.Phone, &r.Address, &r.DueAmount, &r.IsActive, &r.CreatedAt}
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		ShopName:  r.ShopName,
		Phone:     r.Phone,
		Address:   r.Address,
		DueAmount: r.DueAmount,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const saleColumns = `id, tenant_id, invoice_number, customer_id, customer, delivery_address, items,
	total_amount, discount, final_amount, paid_amount, pending_amount, adjustments, returns_amount,
	status, payment_type, returns, due_date, idempotency_key, created_by, created_at, updated_at, cancelled_at`

type saleRow struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string
	InvoiceNumber   string
	CustomerID      sql.NullString
	Customer        []byte `gorm:"type:jsonb"`
	DeliveryAddress string
	Items           []byte `gorm:"type:jsonb"`
	TotalAmount     decimal.Decimal
	Discount        decimal.Decimal
	FinalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	PendingAmount   decimal.Decimal
	Adjustments     decimal.Decimal
	ReturnsAmount   decimal.Decimal
	Status          string
	PaymentType     string
	Returns         []byte `gorm:"type:jsonb"`
	DueDate         time.Time
	IdempotencyKey  sql.NullString
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     sql.NullTime
}

func (saleRow) TableName() string { return "sales" }

func (r *saleRow) targets() []any {
	return []any{&r.ID, &r.TenantID, &r.InvoiceNumber, &r.CustomerID, &r.Customer, &r.DeliveryAddress, &r.Items,
		&r.TotalAmount, &r.Discount, &r.FinalAmount, &r.PaidAmount, &r.PendingAmount, &r.Adjustments, &r.ReturnsAmount,
		&r.Status, &r.PaymentType, &r.Returns, &r.DueDate, &r.IdempotencyKey, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.CancelledAt}
}

func (r saleRow) toDomain() (domain.Sale, error) {
	s := domain.Sale{
		ID:              r.ID,
		TenantID:        r.TenantID,
		InvoiceNumber:   r.InvoiceNumber,
		DeliveryAddress: r.DeliveryAddress,
		TotalAmount:     r.TotalAmount,
		Discount:        r.Discount,
		FinalAmount:     r.FinalAmount,
		PaidAmount:      r.PaidAmount,
		PendingAmount:   r.PendingAmount,
		Adjustments:     r.Adjustments,
		ReturnsAmount:   r.ReturnsAmount,
		Status:          domain.SaleStatus(r.Status),
		PaymentType:     domain.PaymentType(r.PaymentType),
		DueDate:         r.DueDate.UTC(),
		IdempotencyKey:  r.IdempotencyKey.String,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if len(r.Customer) > 0 && string(r.Customer) != "null" {
		s.Customer = &domain.CustomerSnapshot{}
		if err := json.Unmarshal(r.Customer, s.Customer); err != nil {
			return domain.Sale{}, err
		}
	}
	if err := json.Unmarshal(r.Items, &s.Items); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(r.Returns, &s.Returns); err != nil {
		return domain.Sale{}, err
	}
	if r.CancelledAt.Valid {
		at := r.CancelledAt.Time.UTC()
		s.CancelledAt = &at
	}
	return s, nil
}

func saleArgs(s domain.Sale) ([]any, error) {
	var customerID sql.NullString
	var snapshot []byte
	if s.Customer != nil {
		customerID = sql.NullString{String: s.Customer.ID, Valid: true}
		raw, err := json.Marshal(s.Customer)
		if err != nil {
			return nil, err
		}
		snapshot = raw
	}
	items, err := json.Marshal(nonNilSlice(s.Items))
	if err != nil {
		return nil, err
	}
	returns, err := json.Marshal(nonNilSlice(s.Returns))
	if err != nil {
		return nil, err
	}
	idem := sql.NullString{String: s.IdempotencyKey, Valid: s.IdempotencyKey != ""}
	var cancelledAt sql.NullTime
	if s.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *s.CancelledAt, Valid: true}
	}
	return []any{s.ID, s.TenantID, s.InvoiceNumber, customerID, snapshot, s.DeliveryAddress, items,
		s.TotalAmount, s.Discount, s.FinalAmount, s.PaidAmount, s.PendingAmount, s.Adjustments, s.ReturnsAmount,
		string(s.Status), string(s.PaymentType), returns, s.DueDate, idem, s.CreatedBy, s.CreatedAt, s.UpdatedAt, cancelledAt}, nil
}

const ledgerColumns = `id, tenant_id, customer_id, sale_id, type, amount, delta, balance_after,
	payment_mode, remark, category, source, created_by, date`

type ledgerRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string
	CustomerID   sql.NullString
	SaleID       sql.NullString
	Type         string
	Amount       decimal.Decimal
	Delta        decimal.Decimal
	BalanceAfter decimal.Decimal
	PaymentMode  string
	Remark       string
	Category     string
	Source       string
	CreatedBy    string
	Date         time.Time
}

func (ledgerRow) TableName() string { return "ledger_entries" }

func (r *ledgerRow) targets() []any {
	return []any{&r.ID, &r.TenantID, &r.CustomerID, &r.SaleID, &r.Type, &r.Amount, &r.Delta, &r.BalanceAfter,
		&r.PaymentMode, &r.Remark, &r.Category, &r.Source, &r.CreatedBy, &r.Date}
}

func (r ledgerRow) toDomain() domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:           r.ID,
		TenantID:     r.TenantID,
		CustomerID:   r.CustomerID.String,
		SaleID:       r.SaleID.String,
		Type:         domain.LedgerEntryType(r.Type),
		Amount:       r.Amount,
		Delta:        r.Delta,
		BalanceAfter: r.BalanceAfter,
		PaymentMode:  domain.PaymentMethod(r.PaymentMode),
		Remark:       r.Remark,
		Category:     r.Category,
		Source:       domain.LedgerSource(r.Source),
		CreatedBy:    r.CreatedBy,
		Date:         r.Date.UTC(),
	}
}

type returnRow struct {
	ID                string `gorm:"primaryKey"`
	TenantID          string
	SaleID            string
	CustomerID        string
	Items             []byte `gorm:"type:jsonb"`
	TotalReturnAmount decimal.Decimal
	ReturnType        string
	Note              string
	CreatedBy         string
	CreatedAt         time.Time
}

func (returnRow) TableName() string { return "sale_returns" }

func (r returnRow) toDomain() (domain.Return, error) {
	ret := domain.Return{
		ID:                r.ID,
		TenantID:          r.TenantID,
		SaleID:            r.SaleID,
		CustomerID:        r.CustomerID,
		TotalReturnAmount: r.TotalReturnAmount,
		ReturnType:        domain.ReturnType(r.ReturnType),
		Note:              r.Note,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Items, &ret.Items); err != nil {
		return domain.Return{}, err
	}
	return ret, nil
}

type purchaseRow struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string
	SupplierName  string
	InvoiceNumber string
	Items         []byte `gorm:"type:jsonb"`
	TotalAmount   decimal.Decimal
	Note          string
	CreatedBy     string
	CreatedAt     time.Time
}

func (purchaseRow) TableName() string { return "purchases" }

func (r purchaseRow) toDomain() (domain.Purchase, error) {
	p := domain.Purchase{
		ID:            r.ID,
		TenantID:      r.TenantID,
		SupplierName:  r.SupplierName,
		InvoiceNumber: r.InvoiceNumber,
		TotalAmount:   r.TotalAmount,
		Note:          r.Note,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Items, &p.Items); err != nil {
		return domain.Purchase{}, err
	}
	return p, nil
}

type auditRow struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string
	ActorID    string
	ActorRole  string
	Action     string
	EntityType string
	EntityID   string
	Detail     string
	CreatedAt  time.Time
}

func (auditRow) TableName() string { return "audit_logs" }

type userRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string
	Username     string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func nullString(val string) sql.NullString {
	return sql.NullString{String: val, Valid: val != ""}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
