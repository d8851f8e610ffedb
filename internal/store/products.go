package store

import (
	"context"
	"fmt"

	"invoice-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, description, lot_number, price, stock, entry_date, active, created_at, updated_at"

// GetActiveProduct retrieves an active product by ID
func (q queries) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 AND active = TRUE", id)
	if err != nil {
		return nil, translateError(err)
	}
	return &product, nil
}

// DecrementStock atomically takes amount units from an active product.
// Returns ErrStockConflict when the product is missing, inactive, or holds
// less than amount.
func (q queries) DecrementStock(ctx context.Context, id int64, amount int) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, `
		UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND active = TRUE AND stock >= $1
		RETURNING `+productColumns,
		amount, id)
	if err != nil {
		if err = translateError(err); err == ErrNotFound {
			return nil, ErrStockConflict
		}
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return &product, nil
}

// ListActiveProducts retrieves all active products
func (q queries) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.ext, &products,
		"SELECT "+productColumns+" FROM products WHERE active = TRUE ORDER BY id")
	return products, translateError(err)
}

// CreateProduct inserts a product and fills its generated fields
func (q queries) CreateProduct(ctx context.Context, product *models.Product) error {
	err := sqlx.GetContext(ctx, q.ext, product, `
		INSERT INTO products (description, lot_number, price, stock, entry_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		product.Description, product.LotNumber, product.Price, product.Stock, product.EntryDate)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translateError(err))
	}
	return nil
}

// UpdateProduct replaces the editable fields of an active product
func (q queries) UpdateProduct(ctx context.Context, product *models.Product) error {
	err := sqlx.GetContext(ctx, q.ext, product, `
		UPDATE products
		SET description = $1, lot_number = $2, price = $3, stock = $4, entry_date = $5, updated_at = NOW()
		WHERE id = $6 AND active = TRUE
		RETURNING `+productColumns,
		product.Description, product.LotNumber, product.Price, product.Stock, product.EntryDate, product.ID)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", product.ID, translateError(err))
	}
	return nil
}

// DeactivateProduct soft-deletes a product
func (q queries) DeactivateProduct(ctx context.Context, id int64) error {
	result, err := q.ext.ExecContext(ctx,
		"UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active = TRUE", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product %d: %w", id, translateError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
