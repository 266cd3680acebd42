package services

import (
	"fmt"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

// PromoQuote is the outcome of evaluating a promotion against a subtotal.
// FreeShipping zeroes the shipping fee; Discount stays zero in that case.
type PromoQuote struct {
	Code         string
	Discount     int64
	FreeShipping bool
}

// QuotePromotion evaluates a promotion against a subtotal and the categories
// present in the priced items. Checks run in a fixed order and fail fast, each
// with its own error code. usageOffset discounts uses already counted for the
// order under evaluation, so a payment-time re-check of a code the checkout
// already counted does not see its own use.
//
// Fixed discounts clamp at the subtotal so a promotion can never push an
// order total negative. Percentage discounts truncate toward zero.
func QuotePromotion(promo domain.Promotion, subtotal int64, categories []string, now time.Time, usageOffset int) (PromoQuote, error) {
	if !promo.Active {
		return PromoQuote{}, NewError(CodePromoCodeInactive, fmt.Sprintf("promotion %s is not active", promo.Code)).
			WithDetails(map[string]any{"code": promo.Code})
	}
	if promo.ExpiresAt != nil && !now.Before(*promo.ExpiresAt) {
		return PromoQuote{}, NewError(CodePromoCodeExpired, fmt.Sprintf("promotion %s expired", promo.Code)).
			WithDetails(map[string]any{"code": promo.Code, "expiredAt": promo.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	if promo.UsageLimit != nil {
		used := promo.UsedCount - usageOffset
		if used < 0 {
			used = 0
		}
		if used >= *promo.UsageLimit {
			return PromoQuote{}, NewError(CodePromoCodeExhausted, fmt.Sprintf("promotion %s usage limit reached", promo.Code)).
				WithDetails(map[string]any{"code": promo.Code, "usageLimit": *promo.UsageLimit})
		}
	}
	if min := promo.Conditions.MinPurchase; min > 0 && subtotal < min {
		return PromoQuote{}, NewError(CodePromoMinPurchaseNotMet, fmt.Sprintf("promotion %s requires a subtotal of at least %d", promo.Code, min)).
			WithDetails(map[string]any{"code": promo.Code, "minPurchase": min, "subtotal": subtotal})
	}
	if required := promo.Conditions.Categories; len(required) > 0 && !categoriesIntersect(categories, required) {
		return PromoQuote{}, NewError(CodePromoCategoryMismatch, fmt.Sprintf("promotion %s does not apply to these items", promo.Code)).
			WithDetails(map[string]any{"code": promo.Code, "categories": required})
	}

	quote := PromoQuote{Code: promo.Code}
	switch promo.Discount.Kind {
	case domain.DiscountPercentage:
		quote.Discount = subtotal * promo.Discount.Value / 100
	case domain.DiscountFixed:
		quote.Discount = promo.Discount.Value
		if quote.Discount > subtotal {
			quote.Discount = subtotal
		}
	case domain.DiscountFreeShipping:
		quote.FreeShipping = true
	}
	return quote, nil
}

func categoriesIntersect(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
