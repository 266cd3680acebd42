package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

func TestCatalogServiceUpsertGeneratesID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	var saved domain.Product
	products := &stubProductRepository{
		upsertFunc: func(_ context.Context, product domain.Product) (domain.Product, error) {
			saved = product
			return product, nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "prd_test" },
	})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}

	product, err := service.UpsertProduct(ctx, UpsertProductCommand{
		SellerID: "seller-1",
		Name:     "Wooden Top",
		Category: "toys",
		Price:    1200,
		Stock:    8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ID != "prd_test" {
		t.Fatalf("expected generated id, got %s", product.ID)
	}
	if !saved.CreatedAt.Equal(now) || !saved.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %#v", saved)
	}
}

func TestCatalogServiceUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)

	products := &stubProductRepository{
		findByIDFunc: func(_ context.Context, id string) (domain.Product, error) {
			return domain.Product{ID: id, CreatedAt: created}, nil
		},
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products: products,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}

	product, err := service.UpsertProduct(ctx, UpsertProductCommand{
		ID:       "prd_1",
		SellerID: "seller-1",
		Name:     "Wooden Top",
		Price:    1200,
		Stock:    8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !product.CreatedAt.Equal(created) {
		t.Fatalf("expected original createdAt preserved, got %v", product.CreatedAt)
	}
	if !product.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, product.UpdatedAt)
	}
}

func TestCatalogServiceGetProductNotFound(t *testing.T) {
	ctx := context.Background()
	service, err := NewCatalogService(CatalogServiceDeps{Products: &stubProductRepository{}})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}

	_, err = service.GetProduct(ctx, "prd_missing")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != CodeProductNotFound {
		t.Fatalf("expected %s, got %v", CodeProductNotFound, err)
	}
}

func TestCatalogServiceRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	service, err := NewCatalogService(CatalogServiceDeps{Products: &stubProductRepository{}})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}

	cases := []UpsertProductCommand{
		{Name: "x", Price: 1, Stock: 1},
		{SellerID: "s", Price: 1, Stock: 1},
		{SellerID: "s", Name: "x", Price: -1},
		{SellerID: "s", Name: "x", Stock: -1},
	}
	for i, cmd := range cases {
		if _, err := service.UpsertProduct(ctx, cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}
