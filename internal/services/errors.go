package services

import (
	"fmt"
	"strings"
)

// ErrorCode is the stable machine-readable identifier carried on every
// business error the engine returns. Codes never change once published.
type ErrorCode string

const (
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	CodeCartNotFound      ErrorCode = "CART_NOT_FOUND"
	CodeCartEmpty         ErrorCode = "CART_EMPTY"
	CodeInvalidQuantity   ErrorCode = "INVALID_QUANTITY"
	CodeCartTooLarge      ErrorCode = "CART_TOO_LARGE"
	CodeProductNotFound   ErrorCode = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"

	CodePromoCodeNotFound      ErrorCode = "PROMO_CODE_NOT_FOUND"
	CodePromoCodeInactive      ErrorCode = "PROMO_CODE_INACTIVE"
	CodePromoCodeExpired       ErrorCode = "PROMO_CODE_EXPIRED"
	CodePromoCodeExhausted     ErrorCode = "PROMO_CODE_EXHAUSTED"
	CodePromoMinPurchaseNotMet ErrorCode = "PROMO_MIN_PURCHASE_NOT_MET"
	CodePromoCategoryMismatch  ErrorCode = "PROMO_CATEGORY_MISMATCH"

	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	CodeOrderNotFound      ErrorCode = "ORDER_NOT_FOUND"
	CodeInvalidOrderStatus ErrorCode = "INVALID_ORDER_STATUS"
	CodeIllegalTransition  ErrorCode = "ILLEGAL_TRANSITION"
	CodeInvalidEvent       ErrorCode = "INVALID_EVENT"

	CodeTransactionError ErrorCode = "TRANSACTION_ERROR"
)

// Error is the structured business error surfaced to callers. Details carries
// machine-readable context such as the offending product id or the available
// balance, shaped per code.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	cause   error
}

// NewError builds a service error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured context and returns the receiver for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error without changing the surfaced code.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// CartValidationError aggregates every violated cart check in evaluation
// order, so callers can present all problems at once instead of the first.
type CartValidationError struct {
	Violations []*Error
}

// Error implements the error interface.
func (e *CartValidationError) Error() string {
	codes := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		codes = append(codes, string(violation.Code))
	}
	return fmt.Sprintf("cart validation failed: %s", strings.Join(codes, ", "))
}
