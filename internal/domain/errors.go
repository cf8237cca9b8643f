package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart               = errors.New("cart is empty, nothing to order")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrProductNotFound         = errors.New("product not found")
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInvalidPrice            = errors.New("price must be non-negative with at most two decimal places")
	ErrTransactionConflict     = errors.New("transaction conflict, retry the request")
	ErrCartDeletion            = errors.New("failed to delete cart")
	ErrCartNotFound            = errors.New("cart not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("order status transition not allowed")
	ErrOrderStatusConflict     = errors.New("order status changed concurrently")
)

// InsufficientStockError names the product whose stock could not cover the
// requested quantity. errors.Is(err, ErrInsufficientStock) holds for it.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product: %s (requested %d, available %d)",
		name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
