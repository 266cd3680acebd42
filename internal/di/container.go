package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orderforge/engine/internal/platform/config"
	"github.com/orderforge/engine/internal/platform/requestctx"
	"github.com/orderforge/engine/internal/repositories"
	"github.com/orderforge/engine/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Payments services.PaymentService
	Orders   services.OrderService
	Ledger   services.LedgerService
	Catalog  services.CatalogService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerConfig)

type containerConfig struct {
	events services.OrderEventPublisher
	logger *zap.Logger
}

// WithEventPublisher wires the post-commit event sink used by the order
// pipelines. Without it events are silently skipped.
func WithEventPublisher(events services.OrderEventPublisher) Option {
	return func(cfg *containerConfig) {
		cfg.events = events
	}
}

// WithLogger sets the base logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *containerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// the Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cc)
	}

	svc, err := buildServices(reg, cfg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, cc containerConfig) (Services, error) {
	var svc Services

	logger := serviceLogger(cc.logger)
	validator := services.NewCartValidator(cfg.Checkout.MaxCartItems)

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:     reg.Carts(),
		Products:  reg.Products(),
		Validator: validator,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		Promotions:  reg.Promotions(),
		Tx:          reg,
		Events:      cc.events,
		Validator:   validator,
		ShippingFee: cfg.Checkout.ShippingFee,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:      reg.Orders(),
		Products:    reg.Products(),
		Promotions:  reg.Promotions(),
		Ledger:      reg.Ledger(),
		Tx:          reg,
		Events:      cc.events,
		ShippingFee: cfg.Checkout.ShippingFee,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Ledger: reg.Ledger(),
		Tx:     reg,
		Events: cc.events,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ledgerSvc, err := services.NewLedgerService(services.LedgerServiceDeps{
		Ledger: reg.Ledger(),
		Tx:     reg,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build ledger service: %w", err)
	}
	svc.Ledger = ledgerSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// serviceLogger adapts zap to the structured logging hook the services accept,
// preferring the request-scoped logger when the context carries one.
func serviceLogger(base *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
