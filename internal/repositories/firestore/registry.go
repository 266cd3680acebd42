package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider   *pfirestore.Provider
	unitOfWork *pfirestore.UnitOfWork

	products   *ProductRepository
	carts      *CartRepository
	orders     *OrderRepository
	promotions *PromotionRepository
	ledger     *LedgerRepository
	health     repositories.HealthRepository
}

// RegistryOption customises registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	txOpts []pfirestore.TxOption
}

// WithTransactionOptions overrides the transaction options used by the registry's unit of work.
func WithTransactionOptions(opts ...pfirestore.TxOption) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.txOpts = append(cfg.txOpts, opts...)
	}
}

// NewRegistry wires every Firestore repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	cfg := registryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build promotion repository: %w", err)
	}
	ledger, err := NewLedgerRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build ledger repository: %w", err)
	}
	unitOfWork, err := pfirestore.NewUnitOfWork(provider, cfg.txOpts...)
	if err != nil {
		return nil, fmt.Errorf("build unit of work: %w", err)
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return &Registry{
		provider:   provider,
		unitOfWork: unitOfWork,
		products:   products,
		carts:      carts,
		orders:     orders,
		promotions: promotions,
		ledger:     ledger,
		health:     health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a single Firestore transaction shared by all repositories.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.unitOfWork == nil {
		return errors.New("registry not initialised")
	}
	return r.unitOfWork.RunInTx(ctx, fn)
}

func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Ledger() repositories.LedgerRepository        { return r.ledger }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }

var _ repositories.Registry = (*Registry)(nil)
