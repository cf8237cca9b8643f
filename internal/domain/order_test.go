package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_IsValid(t *testing.T) {
	assert.True(t, OrderStatusPending.IsValid())
	assert.True(t, OrderStatusCancelled.IsValid())
	assert.False(t, OrderStatus("CONFIRMED").IsValid())
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestInsufficientStockError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("place order: %w", &InsufficientStockError{
		ProductID:   "p-1",
		ProductName: "Clay Vase",
		Requested:   3,
		Available:   2,
	})

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrProductNotFound))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "p-1", stockErr.ProductID)
	assert.Contains(t, err.Error(), "insufficient stock for product: Clay Vase")
}

func TestProduct_PurchasableQuantity(t *testing.T) {
	p := &Product{AvailableQuantity: 4, ApprovalStatus: ApprovalApproved}
	assert.Equal(t, 4, p.PurchasableQuantity())

	p.ApprovalStatus = ApprovalPending
	assert.Equal(t, 0, p.PurchasableQuantity())
}

func TestCart_QuantitiesByProduct(t *testing.T) {
	cart := &Cart{Items: []CartItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	}}

	ids, totals := cart.QuantitiesByProduct()
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, 4, totals["b"])
	assert.Equal(t, 2, totals["a"])

	var nilCart *Cart
	assert.True(t, nilCart.IsEmpty())
	assert.True(t, (&Cart{}).IsEmpty())
}

func TestNewOrderPlacedEvent(t *testing.T) {
	order := &Order{
		ID:         uuid.New(),
		CustomerID: "cust-1",
		Items: []OrderItem{{
			ProductID: "p-1",
			Product:   ProductSnapshot{Name: "Rug", NewPrice: decimal.RequireFromString("10.5")},
			Quantity:  2,
		}},
		ItemCount:   1,
		TotalAmount: decimal.RequireFromString("72.05"),
		Status:      OrderStatusPending,
		PurchasedAt: time.Now().UTC(),
	}

	event, err := NewOrderPlacedEvent(order)
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), event.AggregateID)
	assert.Equal(t, EventTypeOrderPlaced, event.EventType)

	var payload OrderPlacedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "72.05", payload.TotalAmount)
	assert.Equal(t, "10.50", payload.Items[0].UnitPrice)
	assert.Equal(t, "pending", payload.Status)
}
