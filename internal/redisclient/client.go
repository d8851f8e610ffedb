package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invoice-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const defaultProductTTL = 5 * time.Minute

// Client is a read-through cache for catalog products. PostgreSQL stays the
// source of truth for stock; cached entries are dropped whenever a product
// is written or sold.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
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

	return NewFromRedis(rdb, ttl), nil
}

// NewFromRedis wraps an existing redis client
func NewFromRedis(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// GetProduct returns the cached product. The bool is false on a miss.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read product %d from cache: %w", id, err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached product %d: %w", id, err)
	}
	return &product, true, nil
}

// SetProduct caches a product for the configured TTL
func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product %d: %w", product.ID, err)
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, c.ttl).Err()
}

// InvalidateProducts drops the cache entries of the given products
func (c *Client) InvalidateProducts(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
