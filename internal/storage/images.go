package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/kasir-pos/internal/models"
)

// ImageSetter persists the image URL of a product.
type ImageSetter interface {
	SetProductImage(ctx context.Context, ownerID, id uuid.UUID, url *string) (*models.Product, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, img Image) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// Images ties uploaded objects to product rows.
type Images struct {
	objects ObjectStore
	setter  ImageSetter
	maxSize int64
	now     func() time.Time
	logger  zerolog.Logger
}

func NewImages(objects ObjectStore, setter ImageSetter, maxSize int64, logger zerolog.Logger) *Images {
	return &Images{
		objects: objects,
		setter:  setter,
		maxSize: maxSize,
		now:     time.Now,
		logger:  logger.With().Str("component", "images").Logger(),
	}
}

// Replace uploads a new image for product and points the row at it. The old
// object is removed only after the row is updated. If the row cannot be
// updated the new object is removed again.
func (s *Images) Replace(ctx context.Context, product *models.Product, filename string, data []byte) (*models.Product, error) {
	img, err := ValidateImage(filename, data, s.maxSize)
	if err != nil {
		return nil, err
	}

	url, err := s.objects.Upload(ctx, ObjectPath(product.ID, img.Ext, s.now()), img)
	if err != nil {
		return nil, err
	}

	updated, err := s.setter.SetProductImage(ctx, product.UserID, product.ID, &url)
	if err != nil {
		s.removeObject(ctx, url)
		return nil, err
	}

	if product.ImageURL != nil && *product.ImageURL != url {
		s.removeObject(ctx, *product.ImageURL)
	}
	return updated, nil
}

// Remove deletes the stored object and clears the product's image URL.
func (s *Images) Remove(ctx context.Context, product *models.Product) (*models.Product, error) {
	if product.ImageURL != nil {
		if p, ok := PathFromURL(*product.ImageURL); ok {
			if err := s.objects.Delete(ctx, p); err != nil {
				return nil, err
			}
		}
	}
	return s.setter.SetProductImage(ctx, product.UserID, product.ID, nil)
}

// Discard removes the object behind url, logging instead of failing. Used
// when the product itself is deleted.
func (s *Images) Discard(ctx context.Context, url *string) {
	if url != nil {
		s.removeObject(ctx, *url)
	}
}

func (s *Images) removeObject(ctx context.Context, url string) {
	p, ok := PathFromURL(url)
	if !ok {
		return
	}
	if err := s.objects.Delete(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("path", p).Msg("failed to delete image object")
	}
}
