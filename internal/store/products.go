package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/kasir-pos/internal/database"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/shopspring/decimal"
)

type ProductInput struct {
	Name   string
	Weight string
	Price  decimal.Decimal
	Stock  int
}

const productColumns = `id, user_id, name, weight, price, stock, image_url, created_at, updated_at, version`

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.UserID,
		&product.Name,
		&product.Weight,
		&product.Price,
		&product.Stock,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func (s *Store) CreateProduct(ctx context.Context, ownerID uuid.UUID, in ProductInput) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (user_id, name, weight, price, stock, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(s.db.QueryRowContext(ctx, query, ownerID, in.Name, in.Weight, in.Price, in.Stock), product)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateProduct
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = $1 AND user_id = $2`

	err := scanProduct(s.db.QueryRowContext(ctx, query, id, ownerID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// ListProductsByOwner returns every product of the owner ordered by name.
func (s *Store) ListProductsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE user_id = $1
		ORDER BY name, id`

	return s.queryProducts(ctx, query, ownerID)
}

// LowStockProducts returns the owner's products with stock at or below threshold.
func (s *Store) LowStockProducts(ctx context.Context, ownerID uuid.UUID, threshold int) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE user_id = $1 AND stock <= $2
		ORDER BY stock, name`

	return s.queryProducts(ctx, query, ownerID, threshold)
}

func (s *Store) CountProducts(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE user_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

func (s *Store) ListProducts(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Product], error) {
	page, pageSize = normalizePage(page, pageSize)

	total, err := s.CountProducts(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	products, err := s.queryProducts(ctx, query, ownerID, pageSize, offset)
	if err != nil {
		return nil, err
	}

	return &OffsetPage[models.Product]{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// UpdateProduct rewrites the editable fields if version still matches the
// stored row.
func (s *Store) UpdateProduct(ctx context.Context, ownerID, id uuid.UUID, in ProductInput, version int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET name = $1, weight = $2, price = $3, stock = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND user_id = $6 AND version = $7
		RETURNING ` + productColumns

	err := scanProduct(s.db.QueryRowContext(ctx, query,
		in.Name, in.Weight, in.Price, in.Stock, id, ownerID, version), product)
	if err == nil {
		return product, nil
	}
	if database.IsUniqueViolation(err) {
		return nil, database.ErrDuplicateProduct
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("update product: %w", err)
	}

	if _, getErr := s.GetProduct(ctx, ownerID, id); getErr != nil {
		return nil, getErr
	}
	return nil, database.ErrOptimisticLockFailed
}

// DeleteProduct removes the product and returns the deleted row so callers
// can clean up its image.
func (s *Store) DeleteProduct(ctx context.Context, ownerID, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `
		DELETE FROM products
		WHERE id = $1 AND user_id = $2
		RETURNING ` + productColumns

	err := scanProduct(s.db.QueryRowContext(ctx, query, id, ownerID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("delete product: %w", err)
	}

	return product, nil
}

// SetProductImage stores or clears (nil url) the image URL of a product.
func (s *Store) SetProductImage(ctx context.Context, ownerID, id uuid.UUID, url *string) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET image_url = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING ` + productColumns

	err := scanProduct(s.db.QueryRowContext(ctx, query, url, id, ownerID), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("set product image: %w", err)
	}

	return product, nil
}

// SetStock overwrites the stock with an absolute value computed by the caller.
func (s *Store) SetStock(ctx context.Context, ownerID, id uuid.UUID, stock int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET stock = $1, updated_at = NOW()
		 WHERE id = $2 AND user_id = $3`,
		stock, id, ownerID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return database.ErrInsufficientStock
		}
		return fmt.Errorf("set stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// DecrementStock subtracts quantity only while enough stock remains.
func (s *Store) DecrementStock(ctx context.Context, ownerID, id uuid.UUID, quantity int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND user_id = $3
		   AND stock >= $1`,
		quantity, id, ownerID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// InsertProducts inserts a batch of products in one transaction; either all
// rows land or none do. Transient failures are retried up to retries times.
func (s *Store) InsertProducts(ctx context.Context, ownerID uuid.UUID, batch []ProductInput, retries int) error {
	opts := database.DefaultTxOptions()
	opts.MaxRetries = retries

	return database.WithRetry(ctx, s.db, opts, func(tx *sql.Tx) error {
		for _, in := range batch {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO products (user_id, name, weight, price, stock, created_at, updated_at, version)
				 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)`,
				ownerID, in.Name, in.Weight, in.Price, in.Stock)
			if err != nil {
				if database.IsUniqueViolation(err) {
					return fmt.Errorf("%s (%s): %w", in.Name, in.Weight, database.ErrDuplicateProduct)
				}
				return fmt.Errorf("insert product %s: %w", in.Name, err)
			}
		}
		return nil
	})
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}
