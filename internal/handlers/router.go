package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderforge/engine/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	products RouteRegistrar
	cart     RouteRegistrar
	checkout RouteRegistrar
	orders   RouteRegistrar
	balance  RouteRegistrar

	mutationMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the engine's
// route groups. Mutation middlewares (idempotency) wrap the groups that create
// or settle orders and move funds.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/products", cfg.products, "products", nil)
		mount("/cart", cfg.cart, "cart", nil)
		mount("/checkout", cfg.checkout, "checkout", cfg.mutationMiddlewares)
		mount("/orders", cfg.orders, "orders", cfg.mutationMiddlewares)
		mount("/balance", cfg.balance, "balance", cfg.mutationMiddlewares)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithProductRoutes configures the registrar responsible for catalog endpoints.
func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = reg
	}
}

// WithCartRoutes configures the registrar responsible for cart endpoints.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithCheckoutRoutes configures the registrar responsible for checkout endpoints.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = reg
	}
}

// WithOrderRoutes configures the registrar responsible for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithBalanceRoutes configures the registrar responsible for balance endpoints.
func WithBalanceRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.balance = reg
	}
}

// WithMutationMiddlewares configures middlewares applied to the groups that
// write orders or move funds, typically the idempotency layer.
func WithMutationMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.mutationMiddlewares = append(cfg.mutationMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
