package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/google/uuid"
)

const (
	// ProcessedEventRetention is how long published outbox events are kept
	ProcessedEventRetention = 10 * time.Minute

	// CleanupInterval is how often the background cleanup runs
	CleanupInterval = 30 * time.Second
)

type outboxEntry struct {
	event       domain.OutboxEvent
	processedAt *time.Time
}

// MemoryStore implements repository.Store in process memory. A transaction
// holds the write lock from start to finish and stages its writes, so
// concurrent placements are serialized and a failed one leaves no trace.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	carts    map[string]*domain.Cart
	orders   map[uuid.UUID]*domain.Order
	outbox   []*outboxEntry

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

var _ repository.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		products:    make(map[string]*domain.Product),
		carts:       make(map[string]*domain.Cart),
		orders:      make(map[uuid.UUID]*domain.Order),
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purgeProcessedEvents(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// purgeProcessedEvents drops published events older than the retention window
func (s *MemoryStore) purgeProcessedEvents(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	for _, entry := range s.outbox {
		if entry.processedAt != nil && now.Sub(*entry.processedAt) > ProcessedEventRetention {
			continue
		}
		kept = append(kept, entry)
	}
	s.outbox = kept
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:        s,
		products:     make(map[string]*domain.Product),
		deletedCarts: make(map[string]bool),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

func (s *MemoryStore) GetCart(_ context.Context, customerID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[customerID]
	if !exists {
		return nil, domain.ErrCartNotFound
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	p := *product
	return &p, nil
}

func (s *MemoryStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) ListOrdersByCustomerID(_ context.Context, customerID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []*domain.Order
	for _, order := range s.orders {
		if order.CustomerID == customerID {
			orders = append(orders, copyOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PurchasedAt.After(orders[j].PurchasedAt)
	})
	return orders, nil
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrOrderStatusConflict
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.OutboxEvent, 0, limit)
	for _, entry := range s.outbox {
		if len(events) == limit {
			break
		}
		if entry.processedAt == nil {
			event := entry.event
			events = append(events, &event)
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.outbox {
		if entry.event.ID == id {
			now := time.Now()
			entry.processedAt = &now
			return nil
		}
	}
	return nil
}

// UpsertProduct sets the product listing, including its stock level
func (s *MemoryStore) UpsertProduct(_ context.Context, product *domain.Product) error {
	if err := product.ValidatePrices(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := *product
	s.products[p.ID] = &p
	return nil
}

func (s *MemoryStore) UpsertCart(_ context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	s.carts[cart.CustomerID] = copyCart(cart)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}
