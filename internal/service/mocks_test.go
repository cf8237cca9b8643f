package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fjod/artisan-market/internal/cache"
	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// MockCache implements cache.CartCache for testing
type MockCache struct {
	mu       sync.Mutex
	carts    map[string]*domain.Cart
	GetErr   error
	SetErr   error
	DelErr   error
	GetCalls int
	Deleted  []string
}

func NewMockCache() *MockCache {
	return &MockCache{carts: make(map[string]*domain.Cart)}
}

func (m *MockCache) Get(_ context.Context, customerID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	cart, ok := m.carts[customerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *MockCache) Set(_ context.Context, customerID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.carts[customerID] = cart
	return nil
}

func (m *MockCache) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, customerID)
	if m.DelErr != nil {
		return m.DelErr
	}
	delete(m.carts, customerID)
	return nil
}

// FaultyStore wraps a real store and injects errors into transactional calls.
type FaultyStore struct {
	repository.Store
	CreateOrderErr error
	OutboxErr      error
	DeleteCartErr  error
	TxErr          error
	UpdateErr      error
}

func (f *FaultyStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	if f.TxErr != nil {
		return f.TxErr
	}
	return f.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, store: f})
	})
}

func (f *FaultyStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	return f.Store.UpdateOrderStatus(ctx, id, from, to)
}

type faultyTx struct {
	repository.Tx
	store *FaultyStore
}

func (t *faultyTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if t.store.CreateOrderErr != nil {
		return t.store.CreateOrderErr
	}
	return t.Tx.CreateOrder(ctx, order)
}

func (t *faultyTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	if t.store.OutboxErr != nil {
		return t.store.OutboxErr
	}
	return t.Tx.InsertOutboxEvent(ctx, event)
}

func (t *faultyTx) DeleteCart(ctx context.Context, customerID string) error {
	if t.store.DeleteCartErr != nil {
		return t.store.DeleteCartErr
	}
	return t.Tx.DeleteCart(ctx, customerID)
}

var errInjected = errors.New("injected failure")
