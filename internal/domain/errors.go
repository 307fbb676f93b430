package domain

import (
	"errors"
	"fmt"
)

// RuleError is a business-rule violation surfaced to the caller as a 400.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

// Is matches any RuleError with the same code so wrapped detail errors still compare equal.
func (e *RuleError) Is(target error) bool {
	t, ok := target.(*RuleError)
	return ok && t.Code == e.Code
}

// With returns a copy of the rule carrying a more specific message.
func (e *RuleError) With(format string, args ...any) *RuleError {
	return &RuleError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func rule(code, message string) *RuleError {
	return &RuleError{Code: code, Message: message}
}

var (
	ErrInvalidAmount            = rule("INVALID_AMOUNT", "amount must be greater than zero")
	ErrDiscountExceedsTotal     = rule("DISCOUNT_EXCEEDS_TOTAL", "discount cannot exceed total amount")
	ErrPaymentExceedsPayable    = rule("PAYMENT_EXCEEDS_PAYABLE", "payment cannot exceed payable amount")
	ErrPaymentExceedsBalance    = rule("PAYMENT_EXCEEDS_BALANCE", "payment exceeds balance")
	ErrPaymentExceedsDue        = rule("PAYMENT_EXCEEDS_DUE", "payment exceeds customer due")
	ErrReturnExceedsSold        = rule("RETURN_EXCEEDS_SOLD", "return quantity exceeds sold quantity")
	ErrReturnExceedsPending     = rule("RETURN_EXCEEDS_PENDING", "return exceeds pending amount")
	ErrAdjustmentRequired       = rule("ADJUSTMENT_REQUIRED", "adjust amount must be greater than zero")
	ErrAdjustmentExceedsValue   = rule("ADJUSTMENT_EXCEEDS_VALUE", "adjust amount exceeds returned items value")
	ErrAdjustmentExceedsPending = rule("ADJUSTMENT_EXCEEDS_PENDING", "adjustment exceeds pending amount")
	ErrAdjustmentUseReturn      = rule("ADJUSTMENT_USE_RETURN", "returns must be processed through the return operation")
	ErrSaleCancelled            = rule("SALE_CANCELLED", "sale is cancelled")
	ErrAlreadyCancelled         = rule("ALREADY_CANCELLED", "already cancelled")
	ErrCustomerRequired         = rule("CUSTOMER_REQUIRED", "sale has no customer attached")
	ErrInsufficientStock        = rule("INSUFFICIENT_STOCK", "insufficient stock")
	ErrItemNotInSale            = rule("ITEM_NOT_IN_SALE", "item not found in sale")
	ErrInactiveProduct          = rule("INACTIVE_PRODUCT", "product is inactive")
	ErrEmptySale                = rule("EMPTY_SALE", "sale requires at least one item")
	ErrEmptyReturn              = rule("EMPTY_RETURN", "return requires at least one item")
	ErrInvalidProduct           = rule("INVALID_PRODUCT", "invalid product definition")
	ErrInvalidRange             = rule("INVALID_RANGE", "invalid date range")
	ErrInvalidEnum              = rule("INVALID_VALUE", "invalid value")
)

var (
	// ErrRetry marks a lost optimistic-concurrency race; the caller may resubmit.
	ErrRetry = errors.New("concurrent update, please retry")
	// ErrMissingTenant means the request carried no tenant context.
	ErrMissingTenant = errors.New("missing tenant context")
	ErrOwnerRequired = errors.New("owner role required")
)
