package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PackagingLevel struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

type Product struct {
	ID               string                     `json:"id"`
	TenantID         string                     `json:"tenant_id"`
	Name             string                     `json:"name"`
	BaseUnit         string                     `json:"base_unit"`
	PackagingLevels  []PackagingLevel           `json:"packaging_levels"`
	DefaultPrices    map[string]decimal.Decimal `json:"default_prices"`
	SellingPrice     decimal.NullDecimal        `json:"selling_price"`
	LastPurchaseCost decimal.Decimal            `json:"last_purchase_cost"`
	PurchaseUnit     string                     `json:"purchase_unit"`
	Stock            decimal.Decimal            `json:"stock"`
	MinStockAlert    decimal.Decimal            `json:"min_stock_alert"`
	IsActive         bool                       `json:"is_active"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// LowStock reports whether stock has fallen to the alert threshold.
func (p Product) LowStock() bool {
	return p.MinStockAlert.IsPositive() && p.Stock.LessThanOrEqual(p.MinStockAlert)
}

type Customer struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	ShopName  string          `json:"shop_name"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	DueAmount decimal.Decimal `json:"due_amount"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// CustomerSnapshot is the customer as billed. A nil snapshot on a Sale means a walk-in sale.
type CustomerSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShopName string `json:"shop_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type SaleItem struct {
	ProductID              string          `json:"product_id"`
	ProductName            string          `json:"product_name"`
	SellingUnit            string          `json:"selling_unit"`
	Quantity               decimal.Decimal `json:"quantity"`
	ReturnedQty            decimal.Decimal `json:"returned_qty"`
	Price                  decimal.Decimal `json:"price"`
	Total                  decimal.Decimal `json:"total"`
	CostPriceAtSale        decimal.Decimal `json:"cost_price_at_sale"`
	ConvertedBaseQuantity  decimal.Decimal `json:"converted_base_quantity"`
	ConversionFactorAtSale decimal.Decimal `json:"conversion_factor_at_sale"`
	BaseUnitAtSale         string          `json:"base_unit_at_sale"`
}

// RemainingQty is the sold quantity not yet returned.
func (i SaleItem) RemainingQty() decimal.Decimal {
	return i.Quantity.Sub(i.ReturnedQty)
}

type ReturnRef struct {
	ReturnID  string          `json:"return_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type Sale struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	InvoiceNumber   string            `json:"invoice_number"`
	Customer        *CustomerSnapshot `json:"customer,omitempty"`
	DeliveryAddress string            `json:"delivery_address"`
	Items           []SaleItem        `json:"items"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Discount        decimal.Decimal   `json:"discount"`
	FinalAmount     decimal.Decimal   `json:"final_amount"`
	PaidAmount      decimal.Decimal   `json:"paid_amount"`
	PendingAmount   decimal.Decimal   `json:"pending_amount"`
	Adjustments     decimal.Decimal   `json:"adjustments"`
	ReturnsAmount   decimal.Decimal   `json:"returns_amount"`
	Status          SaleStatus        `json:"status"`
	PaymentType     PaymentType       `json:"payment_type"`
	Returns         []ReturnRef       `json:"returns"`
	DueDate         time.Time         `json:"due_date"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	CreatedBy       string            `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
}

// CustomerID returns the attached customer's ID and false for walk-in sales.
func (s Sale) CustomerID() (string, bool) {
	if s.Customer == nil {
		return "", false
	}
	return s.Customer.ID, true
}

// RequireCustomer guards operations that are only valid for sales billed to a customer.
func (s Sale) RequireCustomer() (string, error) {
	id, ok := s.CustomerID()
	if !ok {
		return "", ErrCustomerRequired
	}
	return id, nil
}

// NetAmount is the billed amount after returns.
func (s Sale) NetAmount() decimal.Decimal {
	return s.FinalAmount.Sub(s.ReturnsAmount)
}

func (s Sale) IsOverdue(now time.Time) bool {
	return s.Status != SaleStatusCancelled && s.DueDate.Before(now) && s.PendingAmount.IsPositive()
}

type LedgerEntry struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	SaleID       string          `json:"sale_id,omitempty"`
	Type         LedgerEntryType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Delta        decimal.Decimal `json:"delta"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	PaymentMode  PaymentMethod   `json:"payment_mode"`
	Remark       string          `json:"remark"`
	Category     string          `json:"category,omitempty"`
	Source       LedgerSource    `json:"source"`
	CreatedBy    string          `json:"created_by"`
	Date         time.Time       `json:"date"`
}

// BalanceBefore inverts the entry to the due balance just before it was posted.
func (e LedgerEntry) BalanceBefore() decimal.Decimal {
	return e.BalanceAfter.Sub(e.Delta)
}

type Payment struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	CustomerID string          `json:"customer_id"`
	SaleID     string          `json:"sale_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ReturnItem struct {
	ProductID       string          `json:"product_id"`
	SellingUnit     string          `json:"selling_unit"`
	Quantity        decimal.Decimal `json:"quantity"`
	PriceAtSale     decimal.Decimal `json:"price_at_sale"`
	BaseQuantity    decimal.Decimal `json:"base_quantity"`
	CostPriceAtSale decimal.Decimal `json:"cost_price_at_sale"`
}

type Return struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	SaleID            string          `json:"sale_id"`
	CustomerID        string          `json:"customer_id"`
	Items             []ReturnItem    `json:"items"`
	TotalReturnAmount decimal.Decimal `json:"total_return_amount"`
	ReturnType        ReturnType      `json:"return_type"`
	Note              string          `json:"note"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PurchaseItem snapshots the unit conversion and cost at the time stock was received.
type PurchaseItem struct {
	ProductID                  string          `json:"product_id"`
	ProductName                string          `json:"product_name"`
	PurchaseUnit               string          `json:"purchase_unit"`
	Quantity                   decimal.Decimal `json:"quantity"`
	UnitCost                   decimal.Decimal `json:"unit_cost"`
	TotalCost                  decimal.Decimal `json:"total_cost"`
	ConvertedBaseQuantity      decimal.Decimal `json:"converted_base_quantity"`
	ConversionFactorAtPurchase decimal.Decimal `json:"conversion_factor_at_purchase"`
	BaseUnitAtPurchase         string          `json:"base_unit_at_purchase"`
	CostPerBaseUnit            decimal.Decimal `json:"cost_per_base_unit"`
}

type Purchase struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	SupplierName  string          `json:"supplier_name"`
	InvoiceNumber string          `json:"invoice_number"`
	Items         []PurchaseItem  `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Note          string          `json:"note"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Adjustment struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	SaleID    string           `json:"sale_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Reason    AdjustmentReason `json:"reason"`
	Note      string           `json:"note"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

type Actor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

type UserAccount struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
