package services

import (
	"context"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Pagination      = domain.Pagination
	Product         = domain.Product
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	Address         = domain.Address
	PaymentMethod   = domain.PaymentMethod
	Promotion       = domain.Promotion
	BalanceEvent    = domain.BalanceEvent
	SystemHealth    = domain.SystemHealthReport
	LifecycleEvent  = domain.OrderLifecycleEvent
	OrderStatusKind = domain.OrderStatusKind
)

// CartService manages mutable cart state, running every mutation through the
// aggregating cart validator.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CartItemCommand adds or updates a single cart line. For UpdateItem a zero
// quantity removes the line.
type CartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// CheckoutService turns validated cart lines into pending orders, one per
// seller group, atomically with the stock decrements that back them.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CheckoutCommand carries the buyer's checkout request. When SelectedItemIDs
// is non-empty only those cart lines participate and the rest stay in the cart.
type CheckoutCommand struct {
	UserID          string
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	SelectedItemIDs []string
	PromoCode       string
}

// CheckoutResult lists the created orders in seller-group order.
type CheckoutResult struct {
	Orders []Order
}

// PaymentService settles pending orders against the balance ledger.
type PaymentService interface {
	Pay(ctx context.Context, cmd PayCommand) (Order, error)
	PayAll(ctx context.Context, cmd PayAllCommand) (PayAllResult, error)
}

// PayCommand identifies the order to settle. PromoCode, when set, replaces
// the code captured at checkout for the authoritative re-evaluation.
type PayCommand struct {
	UserID    string
	OrderID   string
	PromoCode string
}

// PayAllCommand settles several orders in sequence, typically the sibling
// orders produced by one checkout.
type PayAllCommand struct {
	UserID    string
	OrderIDs  []string
	PromoCode string
}

// PayAllResult reports per-order outcomes. Paid orders stay paid even when a
// sibling fails; there is no cross-order rollback.
type PayAllResult struct {
	Paid     []Order
	Failures []PayFailure
}

// PayFailure couples a failed order id with the error that stopped it.
type PayFailure struct {
	OrderID string
	Err     error
}

// OrderService reads orders and advances them through the lifecycle state
// machine, applying the ledger side effects coupled to specific transitions.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Transition(ctx context.Context, cmd TransitionCommand) (Order, error)
	AllowedEvents(ctx context.Context, userID, orderID string) ([]domain.EventKind, error)
}

// OrderListFilter narrows an order listing. Status values are matched against
// the status kind, case-insensitively.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination Pagination
}

// TransitionCommand applies one lifecycle event to an order.
type TransitionCommand struct {
	UserID  string
	OrderID string
	Event   LifecycleEvent
}

// LedgerService exposes the append-only balance ledger. The balance is always
// a fold over events; nothing stores a running total.
type LedgerService interface {
	CurrentBalance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string) ([]BalanceEvent, error)
	Deposit(ctx context.Context, cmd BalanceCommand) (BalanceEvent, error)
	Withdraw(ctx context.Context, cmd BalanceCommand) (BalanceEvent, error)
}

// BalanceCommand moves funds in or out of a user's ledger.
type BalanceCommand struct {
	UserID    string
	Amount    int64
	Reference string
}

// CatalogService maintains the sellable product catalog.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
}

// ProductListFilter narrows a catalog listing.
type ProductListFilter struct {
	SellerID   string
	Category   string
	Pagination Pagination
}

// UpsertProductCommand creates or replaces a catalog entry. An empty ID
// creates a new product.
type UpsertProductCommand struct {
	ID       string
	SellerID string
	Name     string
	Category string
	Price    int64
	Stock    int
}

// SystemService reports engine dependency health.
type SystemService interface {
	Health(ctx context.Context) (SystemHealth, error)
}

// Event types published after pipeline transactions commit.
const (
	EventOrderPlaced    = "ORDER_PLACED"
	EventPaymentSuccess = "PAYMENT_SUCCESS"
	EventOrderShipped   = "ORDER_SHIPPED"
	EventOrderDelivered = "ORDER_DELIVERED"
	EventOrderCancelled = "ORDER_CANCELLED"
	EventOrderRefunded  = "ORDER_REFUNDED"
)

// OrderEventMessage is the payload handed to the event sink after a commit.
type OrderEventMessage struct {
	EventType  string    `json:"eventType"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	Total      int64     `json:"total"`
	SellerID   string    `json:"sellerId,omitempty"`
	Tracking   string    `json:"tracking,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher is the fire-and-forget event sink. Publish failures are
// logged by implementations and never surface into pipeline results.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}
