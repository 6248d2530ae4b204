package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisTransport publishes to Redis pub/sub channels named "{prefix}:{routing key}".
type redisTransport struct {
	client *redis.Client
	prefix string
}

// NewRedisDialer returns a Dialer that opens a Redis client and verifies it with PING.
func NewRedisDialer(addr, password string, db int, prefix string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return &redisTransport{client: client, prefix: prefix}, nil
	}
}

func (t *redisTransport) Publish(ctx context.Context, routingKey string, body []byte) error {
	return t.client.Publish(ctx, RedisChannel(t.prefix, routingKey), body).Err()
}

func (t *redisTransport) Close() error {
	return t.client.Close()
}

// RedisChannel returns the pub/sub channel for a routing key.
func RedisChannel(prefix, routingKey string) string {
	if prefix == "" {
		return routingKey
	}
	return prefix + ":" + routingKey
}
