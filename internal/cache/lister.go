package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/models"
)

type ProductLister interface {
	ListProductsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error)
}

// CachedLister serves product lists from Redis and falls through to next on
// a miss or any cache failure. Cache errors are logged, never returned.
type CachedLister struct {
	next   ProductLister
	cache  *ProductCache
	logger zerolog.Logger
}

func NewCachedLister(next ProductLister, cache *ProductCache, logger zerolog.Logger) *CachedLister {
	return &CachedLister{
		next:   next,
		cache:  cache,
		logger: logger.With().Str("component", "product_cache").Logger(),
	}
}

func (l *CachedLister) ListProductsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error) {
	products, err := l.cache.Get(ctx, ownerID)
	if err == nil {
		return products, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l.logger.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("product cache read failed")
	}

	products, err = l.next.ListProductsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if err := l.cache.Set(ctx, ownerID, products); err != nil {
		l.logger.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("product cache write failed")
	}
	return products, nil
}

// Invalidate drops the owner's cached list after any product write.
func (l *CachedLister) Invalidate(ctx context.Context, ownerID uuid.UUID) {
	if err := l.cache.Delete(ctx, ownerID); err != nil {
		l.logger.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("product cache invalidate failed")
	}
}
