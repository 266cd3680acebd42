package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a sellable catalog entry. Stock is mutated only through
// conditional decrements inside checkout transactions and never goes negative.
type Product struct {
	ID        string
	SellerID  string
	Name      string
	Category  string
	Price     int64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single desired line in a user's cart.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart aggregates the mutable shopping cart state for a user. Carts are
// created lazily on first access and cleared, never deleted.
type Cart struct {
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMethod enumerates how an order is settled.
type PaymentMethod string

const (
	// PaymentBalance settles the order against the buyer's internal balance ledger.
	PaymentBalance PaymentMethod = "balance"
	// PaymentCashOnDelivery settles outside the ledger until delivery.
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Address is the shipping destination captured on an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
}

// OrderItem snapshots a purchased line. UnitPrice is captured at order
// creation time and never re-read from the live product.
type OrderItem struct {
	ProductID string
	SellerID  string
	UnitPrice int64
	Quantity  int
}

// Order is the immutable purchase record advanced through the status state
// machine. Totals satisfy Total = Subtotal + Shipping - Discount.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	Subtotal        int64
	Shipping        int64
	Discount        int64
	Total           int64
	PromoCode       *string
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DiscountKind enumerates the promotion discount shapes.
type DiscountKind string

const (
	// DiscountPercentage deducts a percentage of the subtotal.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed deducts a fixed amount, clamped at the subtotal.
	DiscountFixed DiscountKind = "fixed"
	// DiscountFreeShipping zeroes the shipping fee and leaves the discount at zero.
	DiscountFreeShipping DiscountKind = "free_shipping"
)

// Discount describes how a promotion changes the price. Value carries the
// percent for percentage discounts and the amount in minor units for fixed ones.
type Discount struct {
	Kind  DiscountKind
	Value int64
}

// PromotionConditions gate promotion eligibility. Zero values mean the
// condition is not set.
type PromotionConditions struct {
	MinPurchase int64
	Categories  []string
}

// Promotion is a named discount rule with eligibility conditions and an
// optional usage cap. UsedCount moves forward exactly once per order that
// applies the code, inside the same transaction as the order write.
type Promotion struct {
	Code       string
	Discount   Discount
	Conditions PromotionConditions
	ExpiresAt  *time.Time
	UsageLimit *int
	UsedCount  int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BalanceEventKind enumerates the signed ledger entry types.
type BalanceEventKind string

const (
	// BalanceDeposit credits funds added by the user.
	BalanceDeposit BalanceEventKind = "deposit"
	// BalanceWithdrawn debits funds taken out by the user.
	BalanceWithdrawn BalanceEventKind = "withdrawn"
	// BalancePayment debits an order settlement.
	BalancePayment BalanceEventKind = "payment"
	// BalanceRefund credits a refunded order total back to the buyer.
	BalanceRefund BalanceEventKind = "refund"
	// BalanceIncome credits seller proceeds from a delivered COD order.
	BalanceIncome BalanceEventKind = "income"
)

// BalanceEvent is an append-only ledger entry. Amount is always non-negative;
// the sign is derived from Kind. Events are never updated or deleted.
type BalanceEvent struct {
	ID        string
	UserID    string
	Amount    int64
	Kind      BalanceEventKind
	Reference string
	CreatedAt time.Time
}

// Signed returns the event amount with the sign implied by its kind.
func (e BalanceEvent) Signed() int64 {
	switch e.Kind {
	case BalanceWithdrawn, BalancePayment:
		return -e.Amount
	default:
		return e.Amount
	}
}

// FoldBalance reduces a ledger slice to the current balance.
func FoldBalance(events []BalanceEvent) int64 {
	var total int64
	for _, event := range events {
		total += event.Signed()
	}
	return total
}

// HealthStatus classifies the outcome of a dependency probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck reports the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks into an overall status.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
