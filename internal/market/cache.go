package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/coinpulse/internal/models"
)

// RedisCache keeps fetched series in redis with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisCache(client, ttl), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "coinpulse:crypto:", ttl: ttl}
}

func (c *RedisCache) key(coin string) string {
	return c.prefix + strings.ToUpper(coin)
}

func (c *RedisCache) Get(ctx context.Context, coin string) (*models.CryptoData, error) {
	raw, err := c.client.Get(ctx, c.key(coin)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var data models.CryptoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("corrupt cache entry for %s: %w", coin, err)
	}
	return &data, nil
}

func (c *RedisCache) Set(ctx context.Context, data *models.CryptoData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(data.Coin), raw, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
