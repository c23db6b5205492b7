package cache

import (
	"context"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// redisClient implementa Client sobre Redis, para despliegues con más de
// una réplica compartiendo los contadores de rate limit.
type redisClient struct {
	c      *rdb.Client
	prefix string
}

// NewRedis crea el cliente y verifica la conexión con un ping corto.
func NewRedis(cfg Config) (Client, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &redisClient{c: client, prefix: cfg.Redis.Prefix}, nil
}

func (r *redisClient) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *redisClient) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.c.Get(ctx, r.key(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.key(key)
	n, err := r.c.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		_ = r.c.Expire(ctx, k, ttl).Err()
	}
	return n, nil
}

func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

func (r *redisClient) Close() error { return r.c.Close() }
