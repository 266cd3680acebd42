package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/orderforge/engine/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msg := services.OrderEventMessage{
		EventType:  services.EventOrderPlaced,
		OrderID:    "ord_test",
		UserID:     "user-1",
		Status:     "pending",
		Total:      4200,
		OccurredAt: occurredAt,
	}

	if _, err := publisher.PublishOrderEvent(ctx, msg); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != msg.OrderID || payload.EventType != msg.EventType {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != services.EventOrderPlaced {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_test" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
}

type capturingPublisher struct {
	mu       sync.Mutex
	messages []services.OrderEventMessage
}

func (c *capturingPublisher) PublishOrderEvent(_ context.Context, message services.OrderEventMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return "msg-1", nil
}

func (c *capturingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestAsyncDispatcherDeliversQueuedEvents(t *testing.T) {
	publisher := &capturingPublisher{}
	dispatcher, err := NewAsyncDispatcher(publisher, WithQueueSize(8))
	if err != nil {
		t.Fatalf("NewAsyncDispatcher: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := dispatcher.PublishOrderEvent(context.Background(), services.OrderEventMessage{
			EventType: services.EventPaymentSuccess,
			OrderID:   "ord_async",
		}); err != nil {
			t.Fatalf("PublishOrderEvent: %v", err)
		}
	}

	dispatcher.Close()

	if got := publisher.count(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
}

func TestNewAsyncDispatcherRequiresPublisher(t *testing.T) {
	if _, err := NewAsyncDispatcher(nil); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
