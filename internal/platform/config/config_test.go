package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "orders-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "orders-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Checkout.MaxCartItems != defaultMaxCartItems {
		t.Errorf("unexpected default max cart items: %d", cfg.Checkout.MaxCartItems)
	}
	if cfg.Checkout.ShippingFee != defaultShippingFee {
		t.Errorf("unexpected default shipping fee: %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Events.QueueSize != defaultEventQueueSize {
		t.Errorf("unexpected default event queue size: %d", cfg.Events.QueueSize)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIRESTORE_PROJECT_ID":         "orders-prod",
		"API_FIRESTORE_EMULATOR_HOST":      "localhost:8200",
		"API_PUBSUB_PROJECT_ID":            "orders-events",
		"API_PUBSUB_TOPIC":                 "order-events",
		"API_CHECKOUT_MAX_CART_ITEMS":      "25",
		"API_CHECKOUT_SHIPPING_FEE":        "750",
		"API_CHECKOUT_TX_ATTEMPTS":         "3",
		"API_CHECKOUT_TX_TIMEOUT":          "10s",
		"API_EVENTS_QUEUE_SIZE":            "64",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8200" {
		t.Errorf("unexpected emulator host %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.PubSub.ProjectID != "orders-events" {
		t.Errorf("unexpected pubsub project %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.Topic != "order-events" {
		t.Errorf("unexpected pubsub topic %s", cfg.PubSub.Topic)
	}
	if cfg.Checkout.MaxCartItems != 25 {
		t.Errorf("unexpected max cart items %d", cfg.Checkout.MaxCartItems)
	}
	if cfg.Checkout.ShippingFee != 750 {
		t.Errorf("unexpected shipping fee %d", cfg.Checkout.ShippingFee)
	}
	if cfg.Checkout.TxAttempts != 3 {
		t.Errorf("unexpected tx attempts %d", cfg.Checkout.TxAttempts)
	}
	if cfg.Checkout.TxTimeout != 10*time.Second {
		t.Errorf("unexpected tx timeout %s", cfg.Checkout.TxTimeout)
	}
	if cfg.Events.QueueSize != 64 {
		t.Errorf("unexpected event queue size %d", cfg.Events.QueueSize)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIRESTORE_PROJECT_ID=orders-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "orders-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRejectsInvalidCheckout(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":  "orders-dev",
		"API_CHECKOUT_SHIPPING_FEE": "-1",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := verr.Fields()
	if len(fields) != 1 || fields[0] != "Checkout.ShippingFee" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}
