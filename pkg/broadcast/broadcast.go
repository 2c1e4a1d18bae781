package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher fans out change events to subscribed display clients.
// Delivery is best effort: publish failures are logged and dropped.
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{})
}

// RedisPublisher broadcasts events over a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher constructs a publisher bound to one channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = "announcements"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Publish serialises the event and pushes it onto the channel.
func (p *RedisPublisher) Publish(ctx context.Context, event string, payload interface{}) {
	if p == nil || p.client == nil {
		return
	}
	body, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		p.logger.Sugar().Warnw("broadcast marshal failed", "event", event, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.logger.Sugar().Warnw("broadcast publish failed", "event", event, "error", err)
	}
}

// NopPublisher discards all events. Used when Redis is not configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) {}
