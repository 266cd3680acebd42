package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/services"
)

// Stub services with overridable behaviour per test. Nil funcs answer zero
// values so each test only wires what it asserts on.

type stubCartService struct {
	getCartFunc    func(ctx context.Context, userID string) (services.Cart, error)
	addItemFunc    func(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error)
	updateItemFunc func(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error)
	removeItemFunc func(ctx context.Context, userID, productID string) (services.Cart, error)
	clearCartFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getCartFunc != nil {
		return s.getCartFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	if s.addItemFunc != nil {
		return s.addItemFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.CartItemCommand) (services.Cart, error) {
	if s.updateItemFunc != nil {
		return s.updateItemFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) (services.Cart, error) {
	if s.removeItemFunc != nil {
		return s.removeItemFunc(ctx, userID, productID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearCartFunc != nil {
		return s.clearCartFunc(ctx, userID)
	}
	return nil
}

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFunc != nil {
		return s.checkoutFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, nil
}

type stubPaymentService struct {
	payFunc    func(ctx context.Context, cmd services.PayCommand) (services.Order, error)
	payAllFunc func(ctx context.Context, cmd services.PayAllCommand) (services.PayAllResult, error)
}

func (s *stubPaymentService) Pay(ctx context.Context, cmd services.PayCommand) (services.Order, error) {
	if s.payFunc != nil {
		return s.payFunc(ctx, cmd)
	}
	return services.Order{ID: cmd.OrderID}, nil
}

func (s *stubPaymentService) PayAll(ctx context.Context, cmd services.PayAllCommand) (services.PayAllResult, error) {
	if s.payAllFunc != nil {
		return s.payAllFunc(ctx, cmd)
	}
	return services.PayAllResult{}, nil
}

type stubOrderService struct {
	getOrderFunc      func(ctx context.Context, userID, orderID string) (services.Order, error)
	listOrdersFunc    func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc    func(ctx context.Context, cmd services.TransitionCommand) (services.Order, error)
	allowedEventsFunc func(ctx context.Context, userID, orderID string) ([]domain.EventKind, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getOrderFunc != nil {
		return s.getOrderFunc(ctx, userID, orderID)
	}
	return services.Order{ID: orderID, UserID: userID}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrdersFunc != nil {
		return s.listOrdersFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{ID: cmd.OrderID}, nil
}

func (s *stubOrderService) AllowedEvents(ctx context.Context, userID, orderID string) ([]domain.EventKind, error) {
	if s.allowedEventsFunc != nil {
		return s.allowedEventsFunc(ctx, userID, orderID)
	}
	return nil, nil
}

type stubLedgerService struct {
	currentBalanceFunc func(ctx context.Context, userID string) (int64, error)
	historyFunc        func(ctx context.Context, userID string) ([]services.BalanceEvent, error)
	depositFunc        func(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error)
	withdrawFunc       func(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error)
}

func (s *stubLedgerService) CurrentBalance(ctx context.Context, userID string) (int64, error) {
	if s.currentBalanceFunc != nil {
		return s.currentBalanceFunc(ctx, userID)
	}
	return 0, nil
}

func (s *stubLedgerService) History(ctx context.Context, userID string) ([]services.BalanceEvent, error) {
	if s.historyFunc != nil {
		return s.historyFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubLedgerService) Deposit(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error) {
	if s.depositFunc != nil {
		return s.depositFunc(ctx, cmd)
	}
	return services.BalanceEvent{UserID: cmd.UserID, Amount: cmd.Amount, Kind: domain.BalanceDeposit}, nil
}

func (s *stubLedgerService) Withdraw(ctx context.Context, cmd services.BalanceCommand) (services.BalanceEvent, error) {
	if s.withdrawFunc != nil {
		return s.withdrawFunc(ctx, cmd)
	}
	return services.BalanceEvent{UserID: cmd.UserID, Amount: cmd.Amount, Kind: domain.BalanceWithdrawn}, nil
}

type stubCatalogService struct {
	getProductFunc    func(ctx context.Context, productID string) (services.Product, error)
	listProductsFunc  func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	upsertProductFunc func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFunc != nil {
		return s.getProductFunc(ctx, productID)
	}
	return services.Product{ID: productID}, nil
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFunc != nil {
		return s.listProductsFunc(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.upsertProductFunc != nil {
		return s.upsertProductFunc(ctx, cmd)
	}
	return services.Product{ID: cmd.ID, SellerID: cmd.SellerID}, nil
}

type stubSystemService struct {
	healthFunc func(ctx context.Context) (services.SystemHealth, error)
}

func (s *stubSystemService) Health(ctx context.Context) (services.SystemHealth, error) {
	if s.healthFunc != nil {
		return s.healthFunc(ctx)
	}
	return services.SystemHealth{Status: domain.HealthStatusOK}, nil
}

var (
	_ services.CartService     = (*stubCartService)(nil)
	_ services.CheckoutService = (*stubCheckoutService)(nil)
	_ services.PaymentService  = (*stubPaymentService)(nil)
	_ services.OrderService    = (*stubOrderService)(nil)
	_ services.LedgerService   = (*stubLedgerService)(nil)
	_ services.CatalogService  = (*stubCatalogService)(nil)
	_ services.SystemService   = (*stubSystemService)(nil)
)

// authedRequest builds a request carrying the identity header the shim reads.
func authedRequest(method, target, userID, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	return req
}
