// Package storage keeps product images in a Supabase-compatible object store.
package storage

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/apperr"
)

const folder = "products"

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var (
	ErrEmptyImage       = apperr.Validation("image file is empty")
	ErrUnsupportedImage = apperr.Validation("unsupported image format, use JPG, PNG or WebP")
)

// Image is a validated upload.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

// ValidateImage checks the size limit and sniffs the content type. The
// extension of filename is kept when it agrees with the detected type.
func ValidateImage(filename string, data []byte, maxSize int64) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return Image{}, apperr.Validationf("image too large, max %.0fMB (got %.1fMB)",
			float64(maxSize)/1024/1024, float64(len(data))/1024/1024)
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Image{}, ErrUnsupportedImage
	}

	given := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if given == "jpeg" && ext == "jpg" {
		ext = given
	}

	return Image{Data: data, ContentType: contentType, Ext: ext}, nil
}

// ObjectPath names the object for a product image: products/product_<id>_<millis>.<ext>.
func ObjectPath(productID uuid.UUID, ext string, now time.Time) string {
	return fmt.Sprintf("%s/product_%s_%d.%s", folder, productID, now.UnixMilli(), ext)
}

// PathFromURL recovers the object path from a public URL by its last segment.
func PathFromURL(publicURL string) (string, bool) {
	u, err := url.Parse(publicURL)
	if err != nil || u.Path == "" {
		return "", false
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", false
	}
	return folder + "/" + name, true
}
