package services

import (
	"context"
	"sync"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/repositories"
)

// passthroughTx runs the transactional body directly and counts invocations,
// so tests can assert work happened inside exactly one transactional scope.
type passthroughTx struct {
	runs int
	fail error
}

func (t *passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	if t.fail != nil {
		return t.fail
	}
	return fn(ctx)
}

type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string     { return e.msg }
func (e *stubRepoError) IsNotFound() bool  { return e.notFound }
func (e *stubRepoError) IsConflict() bool  { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool {
	return e.unavailable
}

var _ repositories.RepositoryError = (*stubRepoError)(nil)

type stubProductRepository struct {
	upsertFunc    func(ctx context.Context, product domain.Product) (domain.Product, error)
	findByIDFunc  func(ctx context.Context, id string) (domain.Product, error)
	findByIDsFunc func(ctx context.Context, ids []string) (map[string]domain.Product, error)
	decrementFunc func(ctx context.Context, quantities map[string]int, now time.Time) error
	listFunc      func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, product)
	}
	return product, nil
}

func (s *stubProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, id)
	}
	return domain.Product{}, &stubRepoError{msg: "product not found", notFound: true}
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if s.findByIDsFunc != nil {
		return s.findByIDsFunc(ctx, ids)
	}
	return map[string]domain.Product{}, nil
}

func (s *stubProductRepository) DecrementStock(ctx context.Context, quantities map[string]int, now time.Time) error {
	if s.decrementFunc != nil {
		return s.decrementFunc(ctx, quantities, now)
	}
	return nil
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

type stubCartRepository struct {
	getFunc         func(ctx context.Context, userID string) (domain.Cart, error)
	upsertFunc      func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	removeItemsFunc func(ctx context.Context, userID string, productIDs []string, now time.Time) error
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
}

func (s *stubCartRepository) Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) RemoveItems(ctx context.Context, userID string, productIDs []string, now time.Time) error {
	if s.removeItemsFunc != nil {
		return s.removeItemsFunc(ctx, userID, productIDs, now)
	}
	return nil
}

type stubOrderRepository struct {
	insertFunc   func(ctx context.Context, order domain.Order) (domain.Order, error)
	updateFunc   func(ctx context.Context, order domain.Order) (domain.Order, error)
	findByIDFunc func(ctx context.Context, id string) (domain.Order, error)
	listFunc     func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, id)
	}
	return domain.Order{}, &stubRepoError{msg: "order not found", notFound: true}
}

func (s *stubOrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubPromotionRepository struct {
	upsertFunc      func(ctx context.Context, promo domain.Promotion) (domain.Promotion, error)
	findByCodeFunc  func(ctx context.Context, code string) (domain.Promotion, error)
	adjustUsageFunc func(ctx context.Context, code string, delta int, now time.Time) error
}

func (s *stubPromotionRepository) Upsert(ctx context.Context, promo domain.Promotion) (domain.Promotion, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, promo)
	}
	return promo, nil
}

func (s *stubPromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if s.findByCodeFunc != nil {
		return s.findByCodeFunc(ctx, code)
	}
	return domain.Promotion{}, &stubRepoError{msg: "promotion not found", notFound: true}
}

func (s *stubPromotionRepository) AdjustUsage(ctx context.Context, code string, delta int, now time.Time) error {
	if s.adjustUsageFunc != nil {
		return s.adjustUsageFunc(ctx, code, delta, now)
	}
	return nil
}

type stubLedgerRepository struct {
	appendFunc func(ctx context.Context, event domain.BalanceEvent) error
	listFunc   func(ctx context.Context, userID string) ([]domain.BalanceEvent, error)
}

func (s *stubLedgerRepository) Append(ctx context.Context, event domain.BalanceEvent) error {
	if s.appendFunc != nil {
		return s.appendFunc(ctx, event)
	}
	return nil
}

func (s *stubLedgerRepository) ListByUser(ctx context.Context, userID string) ([]domain.BalanceEvent, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, userID)
	}
	return nil, nil
}

// memoryLedger backs ledger tests that need append/fold behavior end to end.
type memoryLedger struct {
	mu     sync.Mutex
	events []domain.BalanceEvent
}

func (s *memoryLedger) Append(ctx context.Context, event domain.BalanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memoryLedger) ListByUser(ctx context.Context, userID string) ([]domain.BalanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BalanceEvent
	for _, event := range s.events {
		if event.UserID == userID {
			out = append(out, event)
		}
	}
	return out, nil
}

// capturingEventPublisher records published messages for assertion.
type capturingEventPublisher struct {
	mu       sync.Mutex
	messages []OrderEventMessage
	fail     error
}

func (p *capturingEventPublisher) PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.messages = append(p.messages, message)
	return "msg-1", nil
}

func (p *capturingEventPublisher) published() []OrderEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderEventMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
