package hub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vienlink/internal/config"
)

// RedisHub publishes over Redis pub/sub so subscribers in other processes
// (API replicas, websocket gateways) receive the same fan-out. Delivery is
// at-most-once: Redis pub/sub keeps no backlog for absent subscribers.
type RedisHub struct {
	client *redis.Client
}

func NewRedisHub(ctx context.Context, cfg config.RedisConfig) (*RedisHub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return &RedisHub{client: client}, nil
}

func (h *RedisHub) Publish(ctx context.Context, scope Scope, payload []byte) error {
	return h.client.Publish(ctx, channelName(scope), payload).Err()
}

// Subscribe returns a Redis subscription for a scope. The caller owns closing
// it.
func (h *RedisHub) Subscribe(ctx context.Context, scope Scope) *redis.PubSub {
	return h.client.Subscribe(ctx, channelName(scope))
}

func (h *RedisHub) Close() error {
	return h.client.Close()
}

func channelName(scope Scope) string {
	return "vienlink:" + string(scope)
}
