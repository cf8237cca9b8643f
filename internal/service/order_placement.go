package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/inventory"
	"github.com/fjod/artisan-market/internal/metrics"
	"github.com/fjod/artisan-market/internal/pricing"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PlaceOrder turns the customer's cart into a pending order. Stock checks,
// stock decrements, the order insert and the cart delete share one
// transaction: either all of them happen or none do.
func (s *OrderServiceImpl) PlaceOrder(ctx context.Context, customerID string) (*domain.PlacementResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder",
		trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	log := logger.FromContext(ctx, s.log).WithField("customer_id", customerID)
	start := time.Now()

	var order *domain.Order
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		placed, err := s.placeOrderTx(ctx, tx, customerID)
		if err != nil {
			return err
		}
		order = placed
		return nil
	})
	metrics.PlacementDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OrdersPlaced.WithLabelValues(placementResult(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("order placement failed")
		return nil, fmt.Errorf("place order: %w", err)
	}

	metrics.OrdersPlaced.WithLabelValues("success").Inc()
	metrics.OrderValue.Observe(order.TotalAmount.InexactFloat64())
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	s.invalidateCart(ctx, customerID)

	log.WithFields(logrus.Fields{
		"order_id":   order.ID.String(),
		"total":      order.TotalAmount.StringFixed(2),
		"item_count": order.ItemCount,
	}).Info("order placed")

	return &domain.PlacementResult{
		Success:     true,
		Message:     orderPlacedMessage,
		OrderID:     order.ID,
		TotalAmount: order.TotalAmount,
		ItemCount:   order.ItemCount,
	}, nil
}

func (s *OrderServiceImpl) placeOrderTx(ctx context.Context, tx repository.Tx, customerID string) (*domain.Order, error) {
	cart, err := loadCart(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	products, err := checkStock(ctx, tx, cart)
	if err != nil {
		return nil, err
	}

	breakdown := priceCart(cart, products)

	if err := decrementStock(ctx, tx, cart); err != nil {
		return nil, err
	}

	order := s.buildOrder(cart, products, breakdown)
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	event, err := domain.NewOrderPlacedEvent(order)
	if err != nil {
		return nil, fmt.Errorf("build order event: %w", err)
	}
	if err := tx.InsertOutboxEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("write order event: %w", err)
	}

	if err := tx.DeleteCart(ctx, customerID); err != nil {
		return nil, err
	}
	return order, nil
}

func loadCart(ctx context.Context, tx repository.Tx, customerID string) (*domain.Cart, error) {
	cart, err := tx.GetCart(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	// every line must be positive on its own, not just its product's sum
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d",
				domain.ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
	}
	return cart, nil
}

// checkStock reads every product in the cart inside the transaction and
// verifies the summed quantity per product is available. Products are read in
// ID order so concurrent placements lock rows in the same order; they are
// validated in cart order.
func checkStock(ctx context.Context, tx repository.Tx, cart *domain.Cart) (map[string]*domain.Product, error) {
	ids, totals := cart.QuantitiesByProduct()

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	products := make(map[string]*domain.Product, len(sorted))
	for _, id := range sorted {
		product, err := tx.GetProduct(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check stock for product %s: %w", id, err)
		}
		products[id] = product
	}

	for _, id := range ids {
		if err := inventory.Validate(products[id], totals[id]); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func priceCart(cart *domain.Cart, products map[string]*domain.Product) pricing.Breakdown {
	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, pricing.Line{
			UnitPrice: products[item.ProductID].NewPrice,
			Quantity:  item.Quantity,
		})
	}
	return pricing.Compute(lines)
}

func decrementStock(ctx context.Context, tx repository.Tx, cart *domain.Cart) error {
	ids, totals := cart.QuantitiesByProduct()
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := inventory.Decrement(ctx, tx, id, totals[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderServiceImpl) buildOrder(cart *domain.Cart, products map[string]*domain.Product, b pricing.Breakdown) *domain.Order {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Product:   products[item.ProductID].Snapshot(),
			Quantity:  item.Quantity,
		})
	}

	now := s.now()
	return &domain.Order{
		ID:          s.newID(),
		CustomerID:  cart.CustomerID,
		Items:       items,
		ItemCount:   len(cart.Items),
		Subtotal:    b.Subtotal,
		Tax:         b.Tax,
		Shipping:    b.Shipping,
		TotalAmount: b.Total,
		Status:      domain.OrderStatusPending,
		PurchasedAt: now,
		UpdatedAt:   now,
	}
}

func placementResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrTransactionConflict):
		return "conflict"
	default:
		return "error"
	}
}
