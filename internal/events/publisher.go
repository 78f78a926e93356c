package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher fans events out to downstream delivery channels.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher publishes JSON events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher creates a publisher for channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the event. Delivery to zero subscribers is not an error.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// LogPublisher only logs events; used when publishing is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event at debug level.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Debug("notification event",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("kind", string(event.Kind)))
	return nil
}
