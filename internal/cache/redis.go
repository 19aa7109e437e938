package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/safar/kasir-pos/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

func NewProductCache(client *redis.Client, baseTTL time.Duration) *ProductCache {
	if baseTTL <= 0 {
		baseTTL = 5 * time.Minute
	}
	return &ProductCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// ProductCache keeps each owner's product list in Redis so several API
// instances share one warm copy.
type ProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (c *ProductCache) Get(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error) {
	data, err := c.client.Get(ctx, cacheKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal products failed: %w", err)
	}

	return products, nil
}

func (c *ProductCache) Set(ctx context.Context, ownerID uuid.UUID, products []models.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal products failed: %w", err)
	}

	// jitter keeps entries written together from expiring together
	jitter := time.Duration(rand.Int63n(int64(c.baseTTL/5) + 1))
	if err := c.client.Set(ctx, cacheKey(ownerID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *ProductCache) Delete(ctx context.Context, ownerID uuid.UUID) error {
	if err := c.client.Del(ctx, cacheKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("products:%s", ownerID)
}
