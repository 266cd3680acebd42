package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultMaxCartItems         = 50
	defaultShippingFee          = 500
	defaultTxAttempts           = 5
	defaultTxTimeout            = 15 * time.Second
	defaultEventQueueSize       = 256
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Checkout    CheckoutConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig stores event publishing parameters. Publishing is disabled when
// the topic is empty.
type PubSubConfig struct {
	ProjectID    string
	Topic        string
	EmulatorHost string
}

// CheckoutConfig controls order creation behaviour.
type CheckoutConfig struct {
	MaxCartItems int
	ShippingFee  int64
	TxAttempts   int
	TxTimeout    time.Duration
}

// EventsConfig controls the asynchronous event dispatcher.
type EventsConfig struct {
	QueueSize int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			Topic:        stringWithDefault(lookup, "API_PUBSUB_TOPIC", ""),
			EmulatorHost: stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Checkout: CheckoutConfig{
			MaxCartItems: intWithDefault(lookup, "API_CHECKOUT_MAX_CART_ITEMS", defaultMaxCartItems),
			ShippingFee:  int64WithDefault(lookup, "API_CHECKOUT_SHIPPING_FEE", defaultShippingFee),
			TxAttempts:   intWithDefault(lookup, "API_CHECKOUT_TX_ATTEMPTS", defaultTxAttempts),
			TxTimeout:    durationWithDefault(lookup, "API_CHECKOUT_TX_TIMEOUT", defaultTxTimeout),
		},
		Events: EventsConfig{
			QueueSize: intWithDefault(lookup, "API_EVENTS_QUEUE_SIZE", defaultEventQueueSize),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Pub/Sub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Checkout.MaxCartItems <= 0 {
		missing = append(missing, "Checkout.MaxCartItems")
	}
	if cfg.Checkout.ShippingFee < 0 {
		missing = append(missing, "Checkout.ShippingFee")
	}
	if cfg.Events.QueueSize <= 0 {
		missing = append(missing, "Events.QueueSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
