package services

import (
	"fmt"

	domain "github.com/orderforge/engine/internal/domain"
)

const defaultMaxCartItems = 50

// CartValidator checks desired cart lines against live product records. Every
// check is evaluated and every violation collected, so callers can show the
// full list of problems in one pass instead of fixing them one at a time.
type CartValidator struct {
	maxItems int
}

// NewCartValidator builds a validator with the given total-quantity cap. A
// non-positive cap falls back to the default of 50.
func NewCartValidator(maxItems int) *CartValidator {
	if maxItems <= 0 {
		maxItems = defaultMaxCartItems
	}
	return &CartValidator{maxItems: maxItems}
}

// MaxItems returns the configured total-quantity cap.
func (v *CartValidator) MaxItems() int {
	return v.maxItems
}

// Validate runs all checks against the given lines and resolved products.
// allowEmpty skips the non-empty check, for callers validating a cart after a
// removal that may legitimately have emptied it. A nil return means the cart
// is valid.
func (v *CartValidator) Validate(items []domain.CartItem, products map[string]domain.Product, allowEmpty bool) *CartValidationError {
	var violations []*Error

	if len(items) == 0 {
		if allowEmpty {
			return nil
		}
		violations = append(violations, NewError(CodeCartEmpty, "cart has no items"))
		return &CartValidationError{Violations: violations}
	}

	var invalidQuantities []string
	totalQuantity := 0
	for _, item := range items {
		if item.Quantity <= 0 {
			invalidQuantities = append(invalidQuantities, item.ProductID)
			continue
		}
		totalQuantity += item.Quantity
	}
	if len(invalidQuantities) > 0 {
		violations = append(violations, NewError(CodeInvalidQuantity, "cart lines must have a positive quantity").
			WithDetails(map[string]any{"productIds": invalidQuantities}))
	}

	if totalQuantity > v.maxItems {
		violations = append(violations, NewError(CodeCartTooLarge, fmt.Sprintf("cart holds %d items, the maximum is %d", totalQuantity, v.maxItems)).
			WithDetails(map[string]any{"total": totalQuantity, "max": v.maxItems}))
	}

	var missing []string
	for _, item := range items {
		if _, ok := products[item.ProductID]; !ok {
			missing = append(missing, item.ProductID)
		}
	}
	if len(missing) > 0 {
		violations = append(violations, NewError(CodeProductNotFound, "cart references unknown products").
			WithDetails(map[string]any{"productIds": missing}))
	}

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || item.Quantity <= 0 {
			continue
		}
		if item.Quantity > product.Stock {
			violations = append(violations, NewError(CodeInsufficientStock, fmt.Sprintf("product %s has %d in stock, %d requested", item.ProductID, product.Stock, item.Quantity)).
				WithDetails(map[string]any{
					"productId": item.ProductID,
					"requested": item.Quantity,
					"available": product.Stock,
				}))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &CartValidationError{Violations: violations}
}
