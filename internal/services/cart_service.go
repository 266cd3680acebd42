package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/repositories"
)

const (
	eventCartItemAdded   = "cart.item_added"
	eventCartItemUpdated = "cart.item_updated"
	eventCartItemRemoved = "cart.item_removed"
	eventCartCleared     = "cart.cleared"
)

var (
	// ErrCartInvalidInput signals the caller provided invalid arguments.
	ErrCartInvalidInput = errors.New("cart: invalid input")
)

// CartServiceDeps bundles the collaborators required to construct a cart service.
type CartServiceDeps struct {
	Carts     repositories.CartRepository
	Products  repositories.ProductRepository
	Validator *CartValidator
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	validator *CartValidator
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	validator := deps.Validator
	if validator == nil {
		validator = NewCartValidator(0)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:     deps.Carts,
		products:  deps.Products,
		validator: validator,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetCart returns the user's cart, lazily creating an empty one on first access.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if err := validateCartItemCommand(cmd, false); err != nil {
		return Cart{}, err
	}

	cart, err := s.carts.Get(ctx, strings.TrimSpace(cmd.UserID))
	if err != nil {
		return Cart{}, translateCartError(err)
	}

	items := mergeCartLine(cart.Items, cmd.ProductID, cmd.Quantity)
	cart, err = s.saveValidated(ctx, cart, items, false)
	if err != nil {
		return Cart{}, err
	}

	s.logger(ctx, eventCartItemAdded, map[string]any{
		"user_id":    cart.UserID,
		"product_id": cmd.ProductID,
		"quantity":   cmd.Quantity,
	})
	return cart, nil
}

// UpdateItem replaces the quantity of a line. A zero quantity removes it.
func (s *cartService) UpdateItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if err := validateCartItemCommand(cmd, true); err != nil {
		return Cart{}, err
	}

	cart, err := s.carts.Get(ctx, strings.TrimSpace(cmd.UserID))
	if err != nil {
		return Cart{}, translateCartError(err)
	}

	items := setCartLine(cart.Items, cmd.ProductID, cmd.Quantity)
	cart, err = s.saveValidated(ctx, cart, items, cmd.Quantity == 0)
	if err != nil {
		return Cart{}, err
	}

	s.logger(ctx, eventCartItemUpdated, map[string]any{
		"user_id":    cart.UserID,
		"product_id": cmd.ProductID,
		"quantity":   cmd.Quantity,
	})
	return cart, nil
}

// RemoveItem drops a line. The remaining cart is validated with the empty
// check skipped, since a removal may legitimately empty the cart.
func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return Cart{}, translateCartError(err)
	}

	items := setCartLine(cart.Items, productID, 0)
	cart, err = s.saveValidated(ctx, cart, items, true)
	if err != nil {
		return Cart{}, err
	}

	s.logger(ctx, eventCartItemRemoved, map[string]any{
		"user_id":    userID,
		"product_id": productID,
	})
	return cart, nil
}

// ClearCart empties the cart. Carts are cleared, never deleted.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return translateCartError(err)
	}

	now := s.clock()
	cart.Items = []domain.CartItem{}
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if _, err := s.carts.Upsert(ctx, cart); err != nil {
		return translateCartError(err)
	}

	s.logger(ctx, eventCartCleared, map[string]any{"user_id": userID})
	return nil
}

func (s *cartService) saveValidated(ctx context.Context, cart Cart, items []domain.CartItem, allowEmpty bool) (Cart, error) {
	products, err := s.resolveProducts(ctx, items)
	if err != nil {
		return Cart{}, err
	}
	if verr := s.validator.Validate(items, products, allowEmpty); verr != nil {
		return Cart{}, verr
	}

	now := s.clock()
	cart.Items = items
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	saved, err := s.carts.Upsert(ctx, cart)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return saved, nil
}

func (s *cartService) resolveProducts(ctx context.Context, items []domain.CartItem) (map[string]domain.Product, error) {
	if len(items) == 0 {
		return map[string]domain.Product{}, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, translateCartError(err)
	}
	return products, nil
}

func validateCartItemCommand(cmd CartItemCommand, allowZero bool) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 0 || (cmd.Quantity == 0 && !allowZero) {
		return fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	return nil
}

func mergeCartLine(items []domain.CartItem, productID string, quantity int) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ProductID == productID {
			out[i].Quantity += quantity
			return out
		}
	}
	return append(out, domain.CartItem{ProductID: productID, Quantity: quantity})
}

func setCartLine(items []domain.CartItem, productID string, quantity int) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items)+1)
	found := false
	for _, item := range items {
		if item.ProductID == productID {
			found = true
			if quantity > 0 {
				out = append(out, domain.CartItem{ProductID: productID, Quantity: quantity})
			}
			continue
		}
		out = append(out, item)
	}
	if !found && quantity > 0 {
		out = append(out, domain.CartItem{ProductID: productID, Quantity: quantity})
	}
	return out
}

func translateCartError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return NewError(CodeCartNotFound, "cart not found").WithCause(err)
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return NewError(CodeTransactionError, "cart operation failed").WithCause(err)
}

var _ CartService = (*cartService)(nil)
