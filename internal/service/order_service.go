package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/artisan-market/internal/cache"
	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const orderPlacedMessage = "Order placed successfully!"

var tracer = otel.Tracer("github.com/fjod/artisan-market/internal/service")

type OrderService interface {
	PlaceOrder(ctx context.Context, customerID string) (*domain.PlacementResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, customerID string) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error)
}

type OrderServiceImpl struct {
	repo      repository.OrderRepository
	cartCache cache.CartCache
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() uuid.UUID
}

var _ OrderService = (*OrderServiceImpl)(nil)

func NewOrderService(repo repository.OrderRepository, cartCache cache.CartCache, log logrus.FieldLogger) *OrderServiceImpl {
	if cartCache == nil {
		cartCache = cache.NopCache{}
	}
	return &OrderServiceImpl{
		repo:      repo,
		cartCache: cartCache,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.New,
	}
}

func (s *OrderServiceImpl) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return order, nil
}

func (s *OrderServiceImpl) ListOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	orders, err := s.repo.ListOrdersByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders for customer %s: %w", customerID, err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order along its lifecycle. The stored status is
// compared on write, so a concurrent change fails with ErrOrderStatusConflict.
func (s *OrderServiceImpl) UpdateOrderStatus(ctx context.Context, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, next)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order is already %s", domain.ErrInvalidStatusTransition, order.Status)
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, next)
	}

	if err := s.repo.UpdateOrderStatus(ctx, id, order.Status, next); err != nil {
		return nil, fmt.Errorf("update order %s status: %w", id, err)
	}

	logger.FromContext(ctx, s.log).WithFields(logrus.Fields{
		"order_id": id.String(),
		"from":     order.Status.String(),
		"to":       next.String(),
	}).Info("order status changed")

	order.Status = next
	order.UpdatedAt = s.now()
	return order, nil
}

func (s *OrderServiceImpl) invalidateCart(ctx context.Context, customerID string) {
	if err := s.cartCache.Delete(context.WithoutCancel(ctx), customerID); err != nil {
		logger.FromContext(ctx, s.log).
			WithError(err).
			WithField("customer_id", customerID).
			Warn("cart cache invalidation failed")
	}
}
