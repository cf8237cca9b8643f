package store

import (
	"context"
	"fmt"

	"github.com/fjod/artisan-market/internal/domain"
)

// memoryTx stages writes over the store. The store's write lock is held by
// WithinTx for the whole lifetime of the transaction.
type memoryTx struct {
	store        *MemoryStore
	products     map[string]*domain.Product
	deletedCarts map[string]bool
	orders       []*domain.Order
	events       []*domain.OutboxEvent
}

func (t *memoryTx) GetCart(_ context.Context, customerID string) (*domain.Cart, error) {
	if t.deletedCarts[customerID] {
		return nil, domain.ErrCartNotFound
	}
	cart, exists := t.store.carts[customerID]
	if !exists {
		return nil, domain.ErrCartNotFound
	}
	return copyCart(cart), nil
}

func (t *memoryTx) DeleteCart(_ context.Context, customerID string) error {
	if _, exists := t.store.carts[customerID]; !exists || t.deletedCarts[customerID] {
		return fmt.Errorf("%w: no cart for customer %s", domain.ErrCartDeletion, customerID)
	}
	t.deletedCarts[customerID] = true
	return nil
}

// product returns the staged copy of a product, staging it on first access.
func (t *memoryTx) product(productID string) (*domain.Product, bool) {
	if p, staged := t.products[productID]; staged {
		return p, true
	}
	current, exists := t.store.products[productID]
	if !exists {
		return nil, false
	}
	p := *current
	t.products[productID] = &p
	return &p, true
}

func (t *memoryTx) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	p, exists := t.product(productID)
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memoryTx) DecrementIfAvailable(_ context.Context, productID string, qty int) (int, bool, error) {
	p, exists := t.product(productID)
	if !exists || p.PurchasableQuantity() < qty {
		return 0, false, nil
	}
	p.AvailableQuantity -= qty
	return p.AvailableQuantity, true, nil
}

func (t *memoryTx) CreateOrder(_ context.Context, order *domain.Order) error {
	if _, exists := t.store.orders[order.ID]; exists {
		return fmt.Errorf("insert order: duplicate id %s", order.ID)
	}
	t.orders = append(t.orders, copyOrder(order))
	return nil
}

func (t *memoryTx) InsertOutboxEvent(_ context.Context, event *domain.OutboxEvent) error {
	e := *event
	t.events = append(t.events, &e)
	return nil
}

func (t *memoryTx) apply() {
	s := t.store
	for id, p := range t.products {
		s.products[id] = p
	}
	for customerID := range t.deletedCarts {
		delete(s.carts, customerID)
	}
	for _, order := range t.orders {
		s.orders[order.ID] = order
	}
	for _, event := range t.events {
		s.outbox = append(s.outbox, &outboxEntry{event: *event})
	}
}
