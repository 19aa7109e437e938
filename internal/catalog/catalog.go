// Package catalog holds the per-owner product snapshot the register works from.
package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/models"
	"golang.org/x/sync/singleflight"
)

type Lister interface {
	ListProductsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error)
}

// SaleLine is the stock effect of one sold cart line.
type SaleLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type Catalog struct {
	lister Lister
	logger zerolog.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	snapshots map[uuid.UUID][]models.Product
}

func New(lister Lister, logger zerolog.Logger) *Catalog {
	return &Catalog{
		lister:    lister,
		logger:    logger.With().Str("component", "catalog").Logger(),
		snapshots: make(map[uuid.UUID][]models.Product),
	}
}

// Load fetches the owner's products and replaces the snapshot. Rows that do
// not belong to the owner are dropped even if the query returned them. On
// failure the previous snapshot stays in place.
func (c *Catalog) Load(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error) {
	v, err, shared := c.group.Do(ownerID.String(), func() (any, error) {
		products, err := c.lister.ListProductsByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		owned := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.UserID == ownerID {
				owned = append(owned, p)
			}
		}
		if dropped := len(products) - len(owned); dropped > 0 {
			c.logger.Warn().Str("owner_id", ownerID.String()).Int("dropped", dropped).Msg("foreign products filtered from catalog")
		}

		c.mu.Lock()
		c.snapshots[ownerID] = owned
		c.mu.Unlock()

		return owned, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("owner_id", ownerID.String()).Msg("catalog load failed")
		return nil, apperr.Remote("load products", err)
	}

	c.logger.Debug().Str("owner_id", ownerID.String()).Bool("shared", shared).Msg("catalog loaded")
	return cloneProducts(v.([]models.Product)), nil
}

// Products returns a copy of the owner's current snapshot.
func (c *Catalog) Products(ownerID uuid.UUID) []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneProducts(c.snapshots[ownerID])
}

func (c *Catalog) Find(ownerID, productID uuid.UUID) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.snapshots[ownerID] {
		if p.ID == productID {
			return p, true
		}
	}
	return models.Product{}, false
}

// ApplySale lowers the cached stock of each sold product, never below zero.
func (c *Catalog) ApplySale(ownerID uuid.UUID, lines []SaleLine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.snapshots[ownerID]
	for _, line := range lines {
		for i := range snapshot {
			if snapshot[i].ID != line.ProductID {
				continue
			}
			snapshot[i].Stock -= line.Quantity
			if snapshot[i].Stock < 0 {
				snapshot[i].Stock = 0
			}
		}
	}
}

func (c *Catalog) Invalidate(ownerID uuid.UUID) {
	c.mu.Lock()
	delete(c.snapshots, ownerID)
	c.mu.Unlock()
}

func cloneProducts(products []models.Product) []models.Product {
	if products == nil {
		return []models.Product{}
	}
	out := make([]models.Product, len(products))
	copy(out, products)
	return out
}
