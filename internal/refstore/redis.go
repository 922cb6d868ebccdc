package refstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "shipperman:refid:"

// RedisClient is the subset of *redis.Client used by Redis.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis is a Store shared by every gateway replica.
type Redis struct {
	rdb RedisClient
	ttl time.Duration
}

// NewRedis creates a Store on top of rdb.
func NewRedis(rdb RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

// GetOrCreate implements Store. The first writer wins; later callers read its id.
func (r *Redis) GetOrCreate(ctx context.Context, key string, gen func() string) (string, error) {
	k := keyPrefix + key
	id := gen()

	ok, err := r.rdb.SetNX(ctx, k, id, r.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to reserve reference id: %w", err)
	}
	if ok {
		return id, nil
	}

	existing, err := r.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get
		return r.GetOrCreate(ctx, key, gen)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read reference id: %w", err)
	}
	return existing, nil
}
