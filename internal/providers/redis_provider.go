package providers

import (
	"context"

	"github.com/go-redis/redis/v8"
)

func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// RedisHealth adapts a client to the health check's Ping contract.
type RedisHealth struct {
	Client *redis.Client
}

func (h RedisHealth) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
