package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultChannel carries events when no channel is configured.
const DefaultChannel = "events"

// Publisher delivers raw payloads to a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher forwards events as JSON to a Redis channel.
type RedisPublisher struct {
	publisher Publisher
	channel   string
}

// NewRedisPublisher constructs a publisher on the given channel.
func NewRedisPublisher(publisher Publisher, channel string) (*RedisPublisher, error) {
	if publisher == nil {
		return nil, errors.New("journal: publisher is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{publisher: publisher, channel: channel}, nil
}

// Record publishes the event.
func (p *RedisPublisher) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}
	return p.publisher.Publish(ctx, p.channel, payload)
}
