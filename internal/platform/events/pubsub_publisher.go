package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/orderforge/engine/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event message on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, message services.OrderEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", message.EventType)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "userId", message.UserID)
	setAttr(attrs, "status", message.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
