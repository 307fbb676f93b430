package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type ProductCreateRequest struct {
	Name             string                     `json:"name" validate:"notblank,max=120"`
	BaseUnit         string                     `json:"base_unit" validate:"notblank,max=40"`
	PackagingLevels  []PackagingLevelRequest    `json:"packaging_levels" validate:"omitempty,dive"`
	DefaultPrices    map[string]decimal.Decimal `json:"default_prices" validate:"required,min=1,dive,keys,notblank,endkeys,gte=0"`
	SellingPrice     decimal.NullDecimal        `json:"selling_price"`
	LastPurchaseCost decimal.Decimal            `json:"last_purchase_cost" validate:"gte=0"`
	PurchaseUnit     string                     `json:"purchase_unit"`
	InitialStock     decimal.Decimal            `json:"initial_stock" validate:"gte=0"`
	MinStockAlert    decimal.Decimal            `json:"min_stock_alert" validate:"gte=0"`
}

type PackagingLevelRequest struct {
	Name     string `json:"name" validate:"notblank,max=40"`
	Quantity int64  `json:"quantity" validate:"gte=2"`
}

// PurchaseRequest receives stock in any declared unit. UnitCost is the cost of one purchase unit.
type PurchaseRequest struct {
	Unit     string          `json:"unit" validate:"notblank"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

type PurchaseLineRequest struct {
	ProductID string          `json:"product_id" validate:"notblank"`
	Unit      string          `json:"unit" validate:"notblank,max=32"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

// PurchaseCreateRequest records a supplier bill covering one or more products.
type PurchaseCreateRequest struct {
	SupplierName  string                `json:"supplier_name" validate:"max=120"`
	InvoiceNumber string                `json:"invoice_number" validate:"max=60"`
	Items         []PurchaseLineRequest `json:"items" validate:"required,min=1,dive"`
	Note          string                `json:"note" validate:"max=240"`
}

type CustomerCreateRequest struct {
	Name     string `json:"name" validate:"notblank,max=120"`
	ShopName string `json:"shop_name" validate:"max=120"`
	Phone    string `json:"phone" validate:"max=32"`
	Address  string `json:"address" validate:"max=240"`
}

type SaleLineRequest struct {
	ProductID string          `json:"product_id" validate:"notblank"`
	Unit      string          `json:"unit" validate:"max=32"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type CreateSaleRequest struct {
	CustomerID      string            `json:"customer_id"`
	Items           []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	Discount        decimal.Decimal   `json:"discount" validate:"gte=0"`
	PaymentReceived decimal.Decimal   `json:"payment_received" validate:"gte=0"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	DeliveryAddress string            `json:"delivery_address" validate:"max=240"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key" validate:"max=128"`
}

type SalePaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method PaymentMethod   `json:"method"`
	Note   string          `json:"note" validate:"max=240"`
}

// ReturnLineRequest names a sold product. Unit picks between lines of the same product sold in
// different units; when empty the first line of the product is used.
type ReturnLineRequest struct {
	ProductID string          `json:"product_id" validate:"notblank"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type ReturnRequest struct {
	Items        []ReturnLineRequest `json:"items" validate:"required,min=1,dive"`
	ReturnType   ReturnType          `json:"return_type"`
	Note         string              `json:"note" validate:"max=240"`
	AdjustAmount decimal.Decimal     `json:"adjust_amount" validate:"gte=0"`
}

type AdjustmentRequest struct {
	Amount decimal.Decimal  `json:"amount" validate:"gt=0"`
	Reason AdjustmentReason `json:"reason"`
	Note   string           `json:"note" validate:"max=240"`
}

type CustomerPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method PaymentMethod   `json:"method"`
	Remark string          `json:"remark" validate:"max=240"`
}

type ExpenseRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Category string          `json:"category" validate:"notblank,max=60"`
	Mode     PaymentMethod   `json:"mode"`
	Remark   string          `json:"remark" validate:"max=240"`
}

type ReturnResult struct {
	Sale   Sale   `json:"sale"`
	Return Return `json:"return"`
}

type AdjustmentResult struct {
	Sale       Sale       `json:"sale"`
	Adjustment Adjustment `json:"adjustment"`
}

type CustomerPaymentResult struct {
	Customer    Customer    `json:"customer"`
	Entry       LedgerEntry `json:"entry"`
	Allocations []Payment   `json:"allocations"`
}

type Statement struct {
	Customer       Customer        `json:"customer"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Entries        []LedgerEntry   `json:"entries"`
}

type ReturnableItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SellingUnit  string          `json:"selling_unit"`
	Price        decimal.Decimal `json:"price"`
	SoldQty      decimal.Decimal `json:"sold_qty"`
	ReturnedQty  decimal.Decimal `json:"returned_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
}
