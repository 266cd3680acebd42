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
	eventOrderTransitioned     = "order.transitioned"
	eventOrderTransitionFailed = "order.transition_failed"
	eventOrderPublishFailed    = "order.publish_failed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Ledger      repositories.LedgerRepository
	Tx          repositories.UnitOfWork
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	ledger repositories.LedgerRepository
	tx     repositories.UnitOfWork
	events OrderEventPublisher
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: ledger repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		// The service only mints ids for the refund and income ledger
		// credits; order ids are assigned at checkout.
		idGen = func() string { return balanceEventIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		ledger: deps.Ledger,
		tx:     deps.Tx,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderServiceError(translateOrderLookupError(orderID, err))
	}
	// Orders are scoped to their buyer; an id belonging to someone else is
	// indistinguishable from a missing one.
	if order.UserID != userID {
		return Order{}, orderNotFoundError(orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, translateOrderServiceError(err)
	}
	return page, nil
}

// Transition applies one lifecycle event. The payload is validated first, the
// cash-on-delivery ship exception is checked next, and only then is the pure
// transition table consulted. The status write and the ledger entries coupled
// to Refund and Deliver happen in one transaction.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Event == nil {
		return Order{}, fmt.Errorf("%w: event is required", ErrOrderInvalidInput)
	}
	// Payment confirmation carries a ledger debit and belongs to the payment
	// pipeline, not this endpoint.
	if cmd.Event.Kind() == domain.EventConfirmPayment {
		return Order{}, NewError(CodeInvalidEvent, "confirm_payment must go through the payment pipeline")
	}
	if err := domain.ValidateEventPayload(cmd.Event); err != nil {
		return Order{}, translateTransitionError(err)
	}

	now := s.clock()
	var updated domain.Order
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return translateOrderLookupError(orderID, err)
		}
		if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
			return orderNotFoundError(orderID)
		}

		next, err := s.nextStatus(order, cmd.Event, now)
		if err != nil {
			return err
		}

		order.Status = next
		order.UpdatedAt = now
		if updated, err = s.orders.Update(txCtx, order); err != nil {
			return translateOrderServiceError(err)
		}
		return s.applyLedgerSideEffects(txCtx, updated, cmd.Event, now)
	})
	if err != nil {
		s.logger(ctx, eventOrderTransitionFailed, map[string]any{
			"order_id": orderID,
			"event":    string(cmd.Event.Kind()),
			"error":    err.Error(),
		})
		return Order{}, translateOrderServiceError(err)
	}

	s.publishTransition(ctx, updated, cmd.Event, now)
	s.logger(ctx, eventOrderTransitioned, map[string]any{
		"order_id": updated.ID,
		"event":    string(cmd.Event.Kind()),
		"status":   string(updated.Status.Kind),
	})
	return updated, nil
}

// AllowedEvents lists the events the given order currently accepts, including
// the cash-on-delivery ship exception for pending COD orders.
func (s *orderService) AllowedEvents(ctx context.Context, userID, orderID string) ([]domain.EventKind, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	allowed := domain.AllowedEvents(order.Status.Kind)
	if codShipAllowed(order) && !containsEvent(allowed, domain.EventShip) {
		allowed = append(allowed, domain.EventShip)
	}
	return allowed, nil
}

// nextStatus layers the cash-on-delivery exception on top of the pure table:
// a pending COD order may ship before payment is confirmed.
func (s *orderService) nextStatus(order domain.Order, event domain.OrderLifecycleEvent, now time.Time) (domain.OrderStatus, error) {
	event = stampEvent(event, now)

	if ship, ok := event.(domain.Ship); ok && codShipAllowed(order) {
		at := ship.At
		return domain.OrderStatus{
			Kind:      domain.StatusShipped,
			ShippedAt: &at,
			Tracking:  strings.TrimSpace(ship.Tracking),
		}, nil
	}

	next, err := domain.Transition(order.Status, event)
	if err != nil {
		return domain.OrderStatus{}, translateTransitionError(err)
	}
	return next, nil
}

// stampEvent fills a zero event timestamp with the transaction clock so wire
// events without an explicit time still land with a real one.
func stampEvent(event domain.OrderLifecycleEvent, now time.Time) domain.OrderLifecycleEvent {
	switch e := event.(type) {
	case domain.Ship:
		if e.At.IsZero() {
			e.At = now
		}
		return e
	case domain.Deliver:
		if e.At.IsZero() {
			e.At = now
		}
		return e
	case domain.Refund:
		if e.At.IsZero() {
			e.At = now
		}
		return e
	}
	return event
}

// applyLedgerSideEffects writes the balance entries coupled to specific
// transitions: a refund credit for balance-paid orders and per-seller income
// credits when a cash-on-delivery order is delivered. Shipping is excluded
// from seller income.
func (s *orderService) applyLedgerSideEffects(ctx context.Context, order domain.Order, event domain.OrderLifecycleEvent, now time.Time) error {
	switch event.(type) {
	case domain.Refund:
		if order.PaymentMethod != domain.PaymentBalance {
			return nil
		}
		credit := domain.BalanceEvent{
			ID:        s.newID(),
			UserID:    order.UserID,
			Amount:    order.Total,
			Kind:      domain.BalanceRefund,
			Reference: order.ID,
			CreatedAt: now,
		}
		if err := s.ledger.Append(ctx, credit); err != nil {
			return translateOrderServiceError(err)
		}
	case domain.Deliver:
		if order.PaymentMethod != domain.PaymentCashOnDelivery {
			return nil
		}
		for _, income := range sellerIncome(order) {
			credit := domain.BalanceEvent{
				ID:        s.newID(),
				UserID:    income.sellerID,
				Amount:    income.amount,
				Kind:      domain.BalanceIncome,
				Reference: order.ID,
				CreatedAt: now,
			}
			if err := s.ledger.Append(ctx, credit); err != nil {
				return translateOrderServiceError(err)
			}
		}
	}
	return nil
}

func (s *orderService) publishTransition(ctx context.Context, order domain.Order, event domain.OrderLifecycleEvent, now time.Time) {
	if s.events == nil {
		return
	}

	message := OrderEventMessage{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status.Kind),
		Total:      order.Total,
		OccurredAt: now,
	}
	switch event.(type) {
	case domain.Ship:
		message.EventType = EventOrderShipped
		message.SellerID = orderSellerID(order)
		message.Tracking = order.Status.Tracking
	case domain.Deliver:
		message.EventType = EventOrderDelivered
	case domain.Cancel:
		message.EventType = EventOrderCancelled
	case domain.Refund:
		message.EventType = EventOrderRefunded
	default:
		return
	}

	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, eventOrderPublishFailed, map[string]any{
			"order_id": message.OrderID,
			"error":    err.Error(),
		})
	}
}

func codShipAllowed(order domain.Order) bool {
	return order.PaymentMethod == domain.PaymentCashOnDelivery &&
		order.Status.Kind == domain.StatusPending
}

type incomeLine struct {
	sellerID string
	amount   int64
}

// sellerIncome totals each seller's share of the order lines, preserving
// first-appearance order for deterministic ledger writes.
func sellerIncome(order domain.Order) []incomeLine {
	var lines []incomeLine
	index := make(map[string]int)
	for _, item := range order.Items {
		amount := item.UnitPrice * int64(item.Quantity)
		if i, ok := index[item.SellerID]; ok {
			lines[i].amount += amount
			continue
		}
		index[item.SellerID] = len(lines)
		lines = append(lines, incomeLine{sellerID: item.SellerID, amount: amount})
	}
	return lines
}

func containsEvent(events []domain.EventKind, kind domain.EventKind) bool {
	for _, event := range events {
		if event == kind {
			return true
		}
	}
	return false
}

func translateOrderServiceError(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, ErrOrderInvalidInput) {
		return err
	}
	return NewError(CodeTransactionError, "order operation failed").WithCause(err)
}

var _ OrderService = (*orderService)(nil)
