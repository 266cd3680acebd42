package services

import (
	"testing"

	domain "github.com/orderforge/engine/internal/domain"
)

func TestCartValidatorAcceptsValidCart(t *testing.T) {
	validator := NewCartValidator(50)

	items := []domain.CartItem{
		{ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-2", Quantity: 1},
	}
	products := map[string]domain.Product{
		"prod-1": {ID: "prod-1", Stock: 5},
		"prod-2": {ID: "prod-2", Stock: 1},
	}

	if err := validator.Validate(items, products, false); err != nil {
		t.Fatalf("expected valid cart, got %v", err)
	}
}

func TestCartValidatorRejectsEmptyCart(t *testing.T) {
	validator := NewCartValidator(50)

	err := validator.Validate(nil, nil, false)
	if err == nil {
		t.Fatal("expected empty cart violation")
	}
	if len(err.Violations) != 1 || err.Violations[0].Code != CodeCartEmpty {
		t.Fatalf("unexpected violations %#v", err.Violations)
	}

	if err := validator.Validate(nil, nil, true); err != nil {
		t.Fatalf("allow-empty validation should pass, got %v", err)
	}
}

func TestCartValidatorCollectsAllViolations(t *testing.T) {
	validator := NewCartValidator(5)

	items := []domain.CartItem{
		{ProductID: "prod-1", Quantity: 0},
		{ProductID: "prod-2", Quantity: 4},
		{ProductID: "prod-3", Quantity: 3},
	}
	products := map[string]domain.Product{
		"prod-1": {ID: "prod-1", Stock: 10},
		"prod-2": {ID: "prod-2", Stock: 1},
	}

	err := validator.Validate(items, products, false)
	if err == nil {
		t.Fatal("expected violations")
	}

	wantCodes := []ErrorCode{
		CodeInvalidQuantity,
		CodeCartTooLarge,
		CodeProductNotFound,
		CodeInsufficientStock,
	}
	if len(err.Violations) != len(wantCodes) {
		t.Fatalf("expected %d violations, got %d: %v", len(wantCodes), len(err.Violations), err)
	}
	for i, want := range wantCodes {
		if err.Violations[i].Code != want {
			t.Fatalf("violation %d: expected %s, got %s", i, want, err.Violations[i].Code)
		}
	}
}

func TestCartValidatorStockViolationDetails(t *testing.T) {
	validator := NewCartValidator(50)

	items := []domain.CartItem{{ProductID: "prod-1", Quantity: 2}}
	products := map[string]domain.Product{"prod-1": {ID: "prod-1", Stock: 1}}

	err := validator.Validate(items, products, false)
	if err == nil {
		t.Fatal("expected insufficient stock violation")
	}
	violation := err.Violations[0]
	if violation.Code != CodeInsufficientStock {
		t.Fatalf("expected %s, got %s", CodeInsufficientStock, violation.Code)
	}
	if violation.Details["requested"] != 2 || violation.Details["available"] != 1 {
		t.Fatalf("unexpected details %#v", violation.Details)
	}
	if violation.Details["productId"] != "prod-1" {
		t.Fatalf("unexpected product id %v", violation.Details["productId"])
	}
}

func TestCartValidatorDefaultsMaxItems(t *testing.T) {
	validator := NewCartValidator(0)
	if validator.MaxItems() != defaultMaxCartItems {
		t.Fatalf("expected default max %d, got %d", defaultMaxCartItems, validator.MaxItems())
	}
}
