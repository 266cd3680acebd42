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

const (
	eventCheckoutCompleted     = "checkout.completed"
	eventCheckoutFailed        = "checkout.failed"
	eventCheckoutPublishFailed = "checkout.publish_failed"

	orderIDPrefix = "ord_"

	defaultShippingFee int64 = 500
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid arguments.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
)

// CheckoutServiceDeps bundles the collaborators required to construct a checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Promotions  repositories.PromotionRepository
	Tx          repositories.UnitOfWork
	Events      OrderEventPublisher
	Validator   *CartValidator
	ShippingFee int64
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts       repositories.CartRepository
	products    repositories.ProductRepository
	orders      repositories.OrderRepository
	promotions  repositories.PromotionRepository
	tx          repositories.UnitOfWork
	events      OrderEventPublisher
	validator   *CartValidator
	shippingFee int64
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("checkout service: promotion repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("checkout service: unit of work is required")
	}

	validator := deps.Validator
	if validator == nil {
		validator = NewCartValidator(0)
	}
	shippingFee := deps.ShippingFee
	if shippingFee < 0 {
		return nil, errors.New("checkout service: shipping fee must not be negative")
	}
	if shippingFee == 0 {
		shippingFee = defaultShippingFee
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:       deps.Carts,
		products:    deps.Products,
		orders:      deps.Orders,
		promotions:  deps.Promotions,
		tx:          deps.Tx,
		events:      deps.Events,
		validator:   validator,
		shippingFee: shippingFee,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// sellerGroup collects the participating lines belonging to one seller.
// Checkout produces one pending order per group.
type sellerGroup struct {
	sellerID   string
	items      []domain.OrderItem
	categories []string
	subtotal   int64
}

// Checkout validates the participating cart lines, prices them with live
// product data, and creates one pending order per seller inside a single
// transaction together with the stock decrements, the promo usage increment,
// and the removal of the ordered cart lines. All reads happen before any
// write, which the underlying store requires of its transactions.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckoutCommand(cmd); err != nil {
		return CheckoutResult{}, err
	}

	userID := strings.TrimSpace(cmd.UserID)
	promoCode := strings.TrimSpace(cmd.PromoCode)
	now := s.clock()

	var created []domain.Order
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		created = created[:0]

		cart, err := s.carts.Get(txCtx, userID)
		if err != nil {
			return translateCheckoutError(err)
		}
		participating, remaining := splitSelectedItems(cart.Items, cmd.SelectedItemIDs)
		if len(participating) == 0 {
			return NewError(CodeCartEmpty, "no cart items to check out")
		}

		products, err := s.products.FindByIDs(txCtx, cartProductIDs(participating))
		if err != nil {
			return translateCheckoutError(err)
		}

		var promo domain.Promotion
		if promoCode != "" {
			promo, err = s.promotions.FindByCode(txCtx, promoCode)
			if err != nil {
				return translatePromoLookupError(promoCode, err)
			}
		}

		if verr := s.validator.Validate(participating, products, false); verr != nil {
			return verr
		}

		groups := groupBySeller(participating, products)
		quotes := make([]PromoQuote, len(groups))
		applied := make([]bool, len(groups))
		promoApplied := false
		if promoCode != "" {
			var condErr error
			for i, group := range groups {
				quote, err := QuotePromotion(promo, group.subtotal, group.categories, now, 0)
				if err != nil {
					if isPromoConditionError(err) {
						if condErr == nil {
							condErr = err
						}
						continue
					}
					return err
				}
				quotes[i] = quote
				applied[i] = true
				promoApplied = true
			}
			if !promoApplied {
				return condErr
			}
		}

		// Decrement before the order writes. The repository re-reads the
		// product documents inside the transaction, so it has to run while
		// the transaction is still read-only; the decrement itself is the
		// authority on stock sufficiency, not the validation pass above.
		if err := s.products.DecrementStock(txCtx, cartQuantities(participating), now); err != nil {
			return translateCheckoutError(err)
		}

		for i, group := range groups {
			shipping := s.shippingFee
			if quotes[i].FreeShipping {
				shipping = 0
			}
			order := domain.Order{
				ID:              s.newID(),
				UserID:          userID,
				Items:           group.items,
				Subtotal:        group.subtotal,
				Shipping:        shipping,
				Discount:        quotes[i].Discount,
				Total:           group.subtotal + shipping - quotes[i].Discount,
				Status:          domain.Pending(),
				PaymentMethod:   cmd.PaymentMethod,
				ShippingAddress: cmd.ShippingAddress,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if applied[i] {
				code := promoCode
				order.PromoCode = &code
			}
			inserted, err := s.orders.Insert(txCtx, order)
			if err != nil {
				return translateCheckoutError(err)
			}
			created = append(created, inserted)
		}

		// One checkout consumes one use of the code, however many seller
		// orders it discounts. The payment re-evaluation offsets this single
		// use for every order created here.
		if promoApplied {
			if err := s.promotions.AdjustUsage(txCtx, promoCode, 1, now); err != nil {
				return translateCheckoutError(err)
			}
		}

		cart.Items = remaining
		cart.UpdatedAt = now
		if cart.CreatedAt.IsZero() {
			cart.CreatedAt = now
		}
		if _, err := s.carts.Upsert(txCtx, cart); err != nil {
			return translateCheckoutError(err)
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, eventCheckoutFailed, map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return CheckoutResult{}, translateCheckoutError(err)
	}

	for _, order := range created {
		s.publish(ctx, OrderEventMessage{
			EventType:  EventOrderPlaced,
			OrderID:    order.ID,
			UserID:     order.UserID,
			Status:     string(order.Status.Kind),
			Total:      order.Total,
			SellerID:   orderSellerID(order),
			OccurredAt: now,
		})
	}

	s.logger(ctx, eventCheckoutCompleted, map[string]any{
		"user_id": userID,
		"orders":  len(created),
	})
	return CheckoutResult{Orders: created}, nil
}

func (s *checkoutService) publish(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, eventCheckoutPublishFailed, map[string]any{
			"order_id": message.OrderID,
			"error":    err.Error(),
		})
	}
}

func validateCheckoutCommand(cmd CheckoutCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentBalance, domain.PaymentCashOnDelivery:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	addr := cmd.ShippingAddress
	if strings.TrimSpace(addr.Recipient) == "" ||
		strings.TrimSpace(addr.Line1) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" ||
		strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrCheckoutInvalidInput)
	}
	return nil
}

func splitSelectedItems(items []domain.CartItem, selected []string) (participating, remaining []domain.CartItem) {
	if len(selected) == 0 {
		return items, []domain.CartItem{}
	}
	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		chosen[strings.TrimSpace(id)] = struct{}{}
	}
	remaining = []domain.CartItem{}
	for _, item := range items {
		if _, ok := chosen[item.ProductID]; ok {
			participating = append(participating, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	return participating, remaining
}

func cartProductIDs(items []domain.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func cartQuantities(items []domain.CartItem) map[string]int {
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}
	return quantities
}

// groupBySeller partitions validated lines into one group per seller,
// preserving first-appearance order. Unit prices are captured from the live
// product records at this moment and never re-read.
func groupBySeller(items []domain.CartItem, products map[string]domain.Product) []sellerGroup {
	var groups []sellerGroup
	index := make(map[string]int)
	for _, item := range items {
		product := products[item.ProductID]
		i, ok := index[product.SellerID]
		if !ok {
			i = len(groups)
			index[product.SellerID] = i
			groups = append(groups, sellerGroup{sellerID: product.SellerID})
		}
		groups[i].items = append(groups[i].items, domain.OrderItem{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
		groups[i].subtotal += product.Price * int64(item.Quantity)
		if product.Category != "" && !containsString(groups[i].categories, product.Category) {
			groups[i].categories = append(groups[i].categories, product.Category)
		}
	}
	return groups
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func orderSellerID(order domain.Order) string {
	if len(order.Items) == 0 {
		return ""
	}
	return order.Items[0].SellerID
}

func isPromoConditionError(err error) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Code == CodePromoMinPurchaseNotMet || svcErr.Code == CodePromoCategoryMismatch
}

func translatePromoLookupError(code string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return NewError(CodePromoCodeNotFound, fmt.Sprintf("promotion %s not found", code)).
			WithDetails(map[string]any{"code": code}).WithCause(err)
	}
	return translateCheckoutError(err)
}

func translateCheckoutError(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	var verr *CartValidationError
	if errors.As(err, &verr) {
		return err
	}
	if errors.Is(err, ErrCheckoutInvalidInput) {
		return err
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return NewError(CodeInsufficientStock, stockErr.Message).WithDetails(map[string]any{
				"productId": stockErr.ProductID,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			}).WithCause(err)
		case repositories.StockErrorProductNotFound:
			return NewError(CodeProductNotFound, stockErr.Message).WithDetails(map[string]any{
				"productId": stockErr.ProductID,
			}).WithCause(err)
		}
	}
	return NewError(CodeTransactionError, "checkout transaction failed").WithCause(err)
}

var _ CheckoutService = (*checkoutService)(nil)
