package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/repositories"
)

const productIDPrefix = "prd_"

var (
	// ErrCatalogInvalidInput signals the caller provided invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return productIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, translateCatalogError(productID, err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		SellerID:   strings.TrimSpace(filter.SellerID),
		Category:   strings.TrimSpace(filter.Category),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, translateCatalogError("", err)
	}
	return page, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if strings.TrimSpace(cmd.SellerID) == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrCatalogInvalidInput)
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
	}

	now := s.clock()
	product := domain.Product{
		ID:        strings.TrimSpace(cmd.ID),
		SellerID:  strings.TrimSpace(cmd.SellerID),
		Name:      strings.TrimSpace(cmd.Name),
		Category:  strings.TrimSpace(cmd.Category),
		Price:     cmd.Price,
		Stock:     cmd.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if product.ID == "" {
		product.ID = s.newID()
	} else if existing, err := s.products.FindByID(ctx, product.ID); err == nil {
		product.CreatedAt = existing.CreatedAt
	}

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, translateCatalogError(product.ID, err)
	}

	s.logger(ctx, "catalog.product_upserted", map[string]any{
		"product_id": saved.ID,
		"seller_id":  saved.SellerID,
	})
	return saved, nil
}

func translateCatalogError(productID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return NewError(CodeProductNotFound, fmt.Sprintf("product %s not found", productID)).
			WithDetails(map[string]any{"productId": productID}).WithCause(err)
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return NewError(CodeTransactionError, "catalog operation failed").WithCause(err)
}

var _ CatalogService = (*catalogService)(nil)
