package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
)

// StockError wraps stock-specific failures with machine readable codes.
// ProductID, Requested, and Available are populated for per-product failures.
type StockError struct {
	Op        string
	Code      StockErrorCode
	Message   string
	ProductID string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ForProduct attaches per-product context and returns the receiver for chaining.
func (e *StockError) ForProduct(productID string, requested, available int) *StockError {
	e.ProductID = productID
	e.Requested = requested
	e.Available = available
	return e
}
