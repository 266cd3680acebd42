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
	eventPaymentSettled       = "payment.settled"
	eventPaymentFailed        = "payment.failed"
	eventPaymentPublishFailed = "payment.publish_failed"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid arguments.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
)

// PaymentServiceDeps bundles the collaborators required to construct a payment service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Promotions  repositories.PromotionRepository
	Ledger      repositories.LedgerRepository
	Tx          repositories.UnitOfWork
	Events      OrderEventPublisher
	ShippingFee int64
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders      repositories.OrderRepository
	products    repositories.ProductRepository
	promotions  repositories.PromotionRepository
	ledger      repositories.LedgerRepository
	tx          repositories.UnitOfWork
	events      OrderEventPublisher
	shippingFee int64
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("payment service: product repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("payment service: promotion repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("payment service: ledger repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("payment service: unit of work is required")
	}

	shippingFee := deps.ShippingFee
	if shippingFee < 0 {
		return nil, errors.New("payment service: shipping fee must not be negative")
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
		// The service only mints ids for the payment debit ledger events.
		idGen = func() string { return balanceEventIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:      deps.Orders,
		products:    deps.Products,
		promotions:  deps.Promotions,
		ledger:      deps.Ledger,
		tx:          deps.Tx,
		events:      deps.Events,
		shippingFee: shippingFee,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Pay settles a pending order. The promo code is re-evaluated authoritatively,
// the final totals are written, and for balance orders the ledger fold, the
// sufficiency check, and the payment debit all happen inside the same
// transaction as the pending-to-paid transition.
func (s *paymentService) Pay(ctx context.Context, cmd PayCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	now := s.clock()
	var paid domain.Order
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return translateOrderLookupError(orderID, err)
		}
		if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
			return orderNotFoundError(orderID)
		}
		if order.Status.Kind != domain.StatusPending {
			return NewError(CodeInvalidOrderStatus, fmt.Sprintf("order %s is %s, expected pending", orderID, order.Status.Kind)).
				WithDetails(map[string]any{"current": string(order.Status.Kind)})
		}

		promoCode, alreadyCounted := resolvePromoCode(order, cmd.PromoCode)
		discount, shipping := int64(0), s.shippingFee
		newlyApplied := false
		if promoCode != "" {
			promo, err := s.promotions.FindByCode(txCtx, promoCode)
			if err != nil {
				return translatePromoLookupError(promoCode, err)
			}
			categories, err := s.orderCategories(txCtx, order)
			if err != nil {
				return err
			}
			offset := 0
			if alreadyCounted {
				offset = 1
			}
			quote, err := QuotePromotion(promo, order.Subtotal, categories, now, offset)
			if err != nil {
				return err
			}
			discount = quote.Discount
			if quote.FreeShipping {
				shipping = 0
			}
			newlyApplied = !alreadyCounted
		}

		total := order.Subtotal + shipping - discount

		if order.PaymentMethod == domain.PaymentBalance {
			events, err := s.ledger.ListByUser(txCtx, order.UserID)
			if err != nil {
				return translatePaymentError(err)
			}
			available := domain.FoldBalance(events)
			if available < total {
				return NewError(CodeInsufficientBalance, fmt.Sprintf("balance %d is below the order total %d", available, total)).
					WithDetails(map[string]any{"available": available, "required": total})
			}
			debit := domain.BalanceEvent{
				ID:        s.newID(),
				UserID:    order.UserID,
				Amount:    total,
				Kind:      domain.BalancePayment,
				Reference: order.ID,
				CreatedAt: now,
			}
			if err := s.ledger.Append(txCtx, debit); err != nil {
				return translatePaymentError(err)
			}
		}

		next, err := domain.Transition(order.Status, domain.ConfirmPayment{At: now})
		if err != nil {
			return translateTransitionError(err)
		}
		order.Status = next
		order.Discount = discount
		order.Shipping = shipping
		order.Total = total
		if promoCode != "" {
			code := promoCode
			order.PromoCode = &code
		} else {
			order.PromoCode = nil
		}
		order.UpdatedAt = now

		if paid, err = s.orders.Update(txCtx, order); err != nil {
			return translatePaymentError(err)
		}
		if newlyApplied {
			if err := s.promotions.AdjustUsage(txCtx, promoCode, 1, now); err != nil {
				return translatePaymentError(err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, eventPaymentFailed, map[string]any{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return Order{}, translatePaymentError(err)
	}

	s.publish(ctx, OrderEventMessage{
		EventType:  EventPaymentSuccess,
		OrderID:    paid.ID,
		UserID:     paid.UserID,
		Status:     string(paid.Status.Kind),
		Total:      paid.Total,
		OccurredAt: now,
	})
	s.logger(ctx, eventPaymentSettled, map[string]any{
		"order_id": paid.ID,
		"total":    paid.Total,
		"method":   string(paid.PaymentMethod),
	})
	return paid, nil
}

// PayAll settles each order in sequence. A failure stops nothing and rolls
// nothing back: orders already paid stay paid, and the failure is reported
// alongside the successes.
func (s *paymentService) PayAll(ctx context.Context, cmd PayAllCommand) (PayAllResult, error) {
	if len(cmd.OrderIDs) == 0 {
		return PayAllResult{}, fmt.Errorf("%w: at least one order id is required", ErrPaymentInvalidInput)
	}

	var result PayAllResult
	for _, orderID := range cmd.OrderIDs {
		order, err := s.Pay(ctx, PayCommand{UserID: cmd.UserID, OrderID: orderID, PromoCode: cmd.PromoCode})
		if err != nil {
			result.Failures = append(result.Failures, PayFailure{OrderID: orderID, Err: err})
			continue
		}
		result.Paid = append(result.Paid, order)
	}
	return result, nil
}

func (s *paymentService) orderCategories(ctx context.Context, order domain.Order) ([]string, error) {
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, translatePaymentError(err)
	}
	var categories []string
	for _, item := range order.Items {
		if product, ok := products[item.ProductID]; ok && product.Category != "" && !containsString(categories, product.Category) {
			categories = append(categories, product.Category)
		}
	}
	return categories, nil
}

func (s *paymentService) publish(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, eventPaymentPublishFailed, map[string]any{
			"order_id": message.OrderID,
			"error":    err.Error(),
		})
	}
}

// resolvePromoCode picks the code to re-evaluate: an explicit override wins,
// otherwise the code captured at checkout. alreadyCounted reports whether the
// checkout transaction already incremented this code's usage for this order.
func resolvePromoCode(order domain.Order, override string) (code string, alreadyCounted bool) {
	override = strings.TrimSpace(override)
	checkoutCode := ""
	if order.PromoCode != nil {
		checkoutCode = strings.TrimSpace(*order.PromoCode)
	}
	if override == "" {
		return checkoutCode, checkoutCode != ""
	}
	return override, override == checkoutCode
}

func orderNotFoundError(orderID string) *Error {
	return NewError(CodeOrderNotFound, fmt.Sprintf("order %s not found", orderID)).
		WithDetails(map[string]any{"orderId": orderID})
}

func translateOrderLookupError(orderID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return orderNotFoundError(orderID).WithCause(err)
	}
	return translatePaymentError(err)
}

func translateTransitionError(err error) error {
	if errors.Is(err, domain.ErrInvalidEventPayload) {
		return NewError(CodeInvalidEvent, err.Error()).WithCause(err)
	}
	if errors.Is(err, domain.ErrIllegalTransition) {
		return NewError(CodeIllegalTransition, err.Error()).WithCause(err)
	}
	return err
}

func translatePaymentError(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, ErrPaymentInvalidInput) {
		return err
	}
	return NewError(CodeTransactionError, "payment transaction failed").WithCause(err)
}

var _ PaymentService = (*paymentService)(nil)
