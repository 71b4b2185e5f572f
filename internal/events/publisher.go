package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

// Publisher delivers one event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// RedisClient is the subset of *redis.Client used for publishing.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes JSON events on a Redis pub/sub channel.
type RedisPublisher struct {
	redis   RedisClient
	channel string
}

// NewRedisPublisher connects to Redis at addr.
func NewRedisPublisher(addr, password string, db int, channel string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisPublisherWithClient(rdb, channel)
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client RedisClient, channel string) *RedisPublisher {
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.redis.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event model.Event) error {
	log.Info().
		Str("event", string(event.Type)).
		Str("event_id", event.ID.String()).
		Str("property_id", event.PropertyID.String()).
		Msg("Domain event")
	return nil
}
