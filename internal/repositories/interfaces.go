package repositories

import (
	"context"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Promotions() PromotionRepository
	Ledger() LedgerRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Implementations carry the open transaction through the context so that every repository call
// made inside fn participates in a single atomic commit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists the product catalog and stock counts.
type ProductRepository interface {
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs resolves the requested product ids. Missing products are absent
	// from the result map rather than reported as errors.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// DecrementStock reduces stock for every listed product. Returns a StockError
	// with StockErrorInsufficient when any product has fewer units than requested.
	// All reads happen before any write so the operation can run inside a
	// Firestore transaction.
	DecrementStock(ctx context.Context, quantities map[string]int, now time.Time) error
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// CartRepository owns the single cart document kept per user.
type CartRepository interface {
	// Get loads the user's cart. An empty cart is returned when none exists yet.
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// RemoveItems deletes the given product lines from the cart, leaving other lines untouched.
	RemoveItems(ctx context.Context, userID string, productIDs []string, now time.Time) error
}

// OrderRepository persists order documents and query helpers for users.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PromotionRepository maintains promotion definitions and usage counters.
type PromotionRepository interface {
	Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	// AdjustUsage changes usedCount by delta, which may be negative when a
	// previously counted application is compensated.
	AdjustUsage(ctx context.Context, code string, delta int, now time.Time) error
}

// LedgerRepository stores the append-only balance event log per user.
type LedgerRepository interface {
	Append(ctx context.Context, event domain.BalanceEvent) error
	// ListByUser returns every ledger event for the user in insertion order.
	ListByUser(ctx context.Context, userID string) ([]domain.BalanceEvent, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	SellerID   string
	Category   string
	Pagination domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination domain.Pagination
}
