package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orderforge/engine/internal/services"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 10 * time.Second
)

// AsyncDispatcher decouples event publishing from the request path. Events are
// enqueued on a bounded channel and published by a background worker; when the
// queue is full the event is dropped and logged rather than blocking the caller.
type AsyncDispatcher struct {
	publisher services.OrderEventPublisher
	logger    *zap.Logger
	timeout   time.Duration

	queue chan services.OrderEventMessage

	closeOnce sync.Once
	done      chan struct{}
}

// DispatcherOption customises AsyncDispatcher behaviour.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	queueSize int
	timeout   time.Duration
	logger    *zap.Logger
}

// WithQueueSize overrides the bounded queue capacity.
func WithQueueSize(size int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// WithPublishTimeout bounds the time spent publishing a single event.
func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithDispatcherLogger injects the logger used for drop and publish failures.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewAsyncDispatcher constructs a dispatcher and starts its worker goroutine.
func NewAsyncDispatcher(publisher services.OrderEventPublisher, opts ...DispatcherOption) (*AsyncDispatcher, error) {
	if publisher == nil {
		return nil, errors.New("events: publisher is required")
	}

	cfg := dispatcherConfig{
		queueSize: defaultQueueSize,
		timeout:   defaultPublishTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	d := &AsyncDispatcher{
		publisher: publisher,
		logger:    cfg.logger,
		timeout:   cfg.timeout,
		queue:     make(chan services.OrderEventMessage, cfg.queueSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// PublishOrderEvent enqueues the event for asynchronous publishing. The returned
// message id is always empty since the publish happens in the background.
func (d *AsyncDispatcher) PublishOrderEvent(_ context.Context, message services.OrderEventMessage) (string, error) {
	select {
	case d.queue <- message:
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("event_type", message.EventType),
			zap.String("order_id", message.OrderID),
		)
	}
	return "", nil
}

// Close stops accepting events and drains the queue before returning.
func (d *AsyncDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)
	for message := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if _, err := d.publisher.PublishOrderEvent(ctx, message); err != nil {
			d.logger.Error("publish order event failed",
				zap.String("event_type", message.EventType),
				zap.String("order_id", message.OrderID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
