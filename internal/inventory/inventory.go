// Package inventory validates and decrements product stock inside a
// storage transaction.
package inventory

import (
	"context"
	"fmt"

	"github.com/fjod/artisan-market/internal/domain"
)

type StockReader interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type StockWriter interface {
	StockReader
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (remaining int, ok bool, err error)
}

// Validate reports whether an already loaded product can cover qty.
func Validate(product *domain.Product, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: product %s quantity %d", domain.ErrInvalidQuantity, product.ID, qty)
	}
	if available := product.PurchasableQuantity(); available < qty {
		return &domain.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   qty,
			Available:   available,
		}
	}
	return nil
}

// Decrement removes qty units of stock. Sufficiency is re-checked by the
// write itself, so stock never drops below zero even if it changed since Validate.
func Decrement(ctx context.Context, w StockWriter, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: product %s quantity %d", domain.ErrInvalidQuantity, productID, qty)
	}

	remaining, ok, err := w.DecrementIfAvailable(ctx, productID, qty)
	if err != nil {
		return 0, fmt.Errorf("decrement stock for product %s: %w", productID, err)
	}
	if ok {
		return remaining, nil
	}

	product, err := w.GetProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("decrement stock for product %s: %w", productID, err)
	}
	return 0, &domain.InsufficientStockError{
		ProductID:   product.ID,
		ProductName: product.Name,
		Requested:   qty,
		Available:   product.PurchasableQuantity(),
	}
}
