package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/orderforge/engine/internal/di"
	"github.com/orderforge/engine/internal/handlers"
	"github.com/orderforge/engine/internal/platform/config"
	"github.com/orderforge/engine/internal/platform/events"
	pfirestore "github.com/orderforge/engine/internal/platform/firestore"
	"github.com/orderforge/engine/internal/platform/idempotency"
	"github.com/orderforge/engine/internal/platform/observability"
	firestoreRepo "github.com/orderforge/engine/internal/repositories/firestore"
	"github.com/orderforge/engine/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var publisher services.OrderEventPublisher
	var dispatcher *events.AsyncDispatcher
	if strings.TrimSpace(cfg.PubSub.Topic) != "" {
		if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
			if err := os.Setenv("PUBSUB_EMULATOR_HOST", host); err != nil {
				logger.Fatal("failed to point pubsub at emulator", zap.Error(err))
			}
		}
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.PubSub.Topic)
		defer topic.Stop()

		sink, err := events.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		dispatcher, err = events.NewAsyncDispatcher(sink,
			events.WithQueueSize(cfg.Events.QueueSize),
			events.WithDispatcherLogger(logger.Named("events")),
		)
		if err != nil {
			logger.Fatal("failed to initialise event dispatcher", zap.Error(err))
		}
		publisher = dispatcher
	} else {
		logger.Info("order event topic not configured; events disabled")
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider,
		firestoreRepo.WithTransactionOptions(
			pfirestore.WithTxAttempts(cfg.Checkout.TxAttempts),
			pfirestore.WithTxTimeout(cfg.Checkout.TxTimeout),
		),
	)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{di.WithLogger(logger)}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(publisher))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	productHandlers := handlers.NewProductHandlers(container.Services.Catalog)
	cartHandlers := handlers.NewCartHandlers(container.Services.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout, container.Services.Payments)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders, container.Services.Payments)
	balanceHandlers := handlers.NewBalanceHandlers(container.Services.Ledger)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithBalanceRoutes(balanceHandlers.Routes),
		handlers.WithMutationMiddlewares(idempotencyMiddleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if dispatcher != nil {
		dispatcher.Close()
	}
}
