package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bookstore-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Default TTLs per entity class. The cache is a disposable derived
// view: writers invalidate, they never update in place.
const (
	TTLListing    = 5 * time.Minute
	TTLDetail     = 1 * time.Hour
	TTLWishlist   = 10 * time.Minute
	TTLReference  = 24 * time.Hour
	TTLMasterData = 24 * time.Hour
)

type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, logger: util.GetLogger()}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetJSON loads a cached value into dest. The bool reports a hit; cache
// errors are logged and degrade to a miss, never an error to the caller.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		util.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		util.CacheRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		util.CacheRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	util.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return true
}

// SetJSON stores a value under key with a TTL. Failures are logged only.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a single key.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// DeletePattern removes every key matching the glob pattern using SCAN,
// so invalidation-by-prefix works without blocking the server the way
// KEYS would.
func (c *Client) DeletePattern(ctx context.Context, pattern string) {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Warn("Cache scan failed", zap.String("pattern", pattern), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("Cache delete failed", zap.String("pattern", pattern), zap.Error(err))
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
