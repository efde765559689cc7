package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/tabloop/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published to.
const DefaultChannel = "tabloop:events"

// Publisher implements ports.Sink by publishing each event as JSON to a
// Redis channel.
type Publisher struct {
	client  *backend.Client
	channel string
}

// NewPublisher creates a publisher. An empty channel means DefaultChannel.
func NewPublisher(client *backend.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Emit implements ports.Sink.
func (p *Publisher) Emit(ctx context.Context, name string, payload domain.EventPayload) error {
	data, err := json.Marshal(domain.Event{Name: name, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
