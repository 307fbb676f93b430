package domain

import (
	"fmt"
	"strings"
)

type SaleStatus string

const (
	SaleStatusOpen      SaleStatus = "OPEN"
	SaleStatusPartial   SaleStatus = "PARTIAL"
	SaleStatusPaid      SaleStatus = "PAID"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusOpen, SaleStatusPartial, SaleStatusPaid, SaleStatusCancelled:
		return true
	}
	return false
}

func (s *SaleStatus) UnmarshalText(text []byte) error {
	v := SaleStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: unknown sale status %q", ErrInvalidEnum, string(text))
	}
	*s = v
	return nil
}

type LedgerEntryType string

const (
	LedgerSale       LedgerEntryType = "SALE"
	LedgerPayment    LedgerEntryType = "PAYMENT"
	LedgerReturn     LedgerEntryType = "RETURN"
	LedgerSaleReturn LedgerEntryType = "SALE_RETURN"
	LedgerAdjustment LedgerEntryType = "ADJUSTMENT"
	LedgerExpense    LedgerEntryType = "EXPENSE"
)

func (t LedgerEntryType) Valid() bool {
	switch t {
	case LedgerSale, LedgerPayment, LedgerReturn, LedgerSaleReturn, LedgerAdjustment, LedgerExpense:
		return true
	}
	return false
}

// Reducing reports whether the entry type lowers a customer's due.
func (t LedgerEntryType) Reducing() bool {
	switch t {
	case LedgerPayment, LedgerReturn, LedgerSaleReturn, LedgerAdjustment:
		return true
	}
	return false
}

func (t *LedgerEntryType) UnmarshalText(text []byte) error {
	v := LedgerEntryType(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: unknown ledger entry type %q", ErrInvalidEnum, string(text))
	}
	*t = v
	return nil
}

type ReturnType string

const (
	ReturnStock           ReturnType = "STOCK_RETURN"
	ReturnPriceAdjustment ReturnType = "PRICE_ADJUSTMENT"
)

func (t ReturnType) Valid() bool {
	return t == ReturnStock || t == ReturnPriceAdjustment
}

func (t *ReturnType) UnmarshalText(text []byte) error {
	raw := strings.ToUpper(strings.TrimSpace(string(text)))
	if raw == "" {
		*t = ReturnStock
		return nil
	}
	v := ReturnType(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown return type %q", ErrInvalidEnum, string(text))
	}
	*t = v
	return nil
}

type AdjustmentReason string

const (
	AdjustmentReturn  AdjustmentReason = "RETURN"
	AdjustmentRateFix AdjustmentReason = "RATE_FIX"
	AdjustmentDamage  AdjustmentReason = "DAMAGE"
)

func (r AdjustmentReason) Valid() bool {
	switch r {
	case AdjustmentReturn, AdjustmentRateFix, AdjustmentDamage:
		return true
	}
	return false
}

func (r *AdjustmentReason) UnmarshalText(text []byte) error {
	raw := strings.ToUpper(strings.TrimSpace(string(text)))
	if raw == "" {
		*r = AdjustmentRateFix
		return nil
	}
	v := AdjustmentReason(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown adjustment reason %q", ErrInvalidEnum, string(text))
	}
	*r = v
	return nil
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi"
	PaymentBank PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentUPI, PaymentBank:
		return true
	}
	return false
}

func (m *PaymentMethod) UnmarshalText(text []byte) error {
	raw := strings.ToLower(strings.TrimSpace(string(text)))
	if raw == "" {
		*m = PaymentCash
		return nil
	}
	v := PaymentMethod(raw)
	if !v.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidEnum, string(text))
	}
	*m = v
	return nil
}

// OrCash defaults an unset method.
func (m PaymentMethod) OrCash() PaymentMethod {
	if m == "" {
		return PaymentCash
	}
	return m
}

type LedgerSource string

const (
	SourceBilling   LedgerSource = "BILLING"
	SourceDueReport LedgerSource = "DUE_REPORT"
	SourceManual    LedgerSource = "MANUAL"
)

type PaymentType string

const (
	PaymentTypeCash   PaymentType = "cash"
	PaymentTypeUdhaar PaymentType = "udhaar"
)
