package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// ProductSnapshot is a copy of the purchased product's descriptive fields and
// prices taken at purchase time. Later catalog edits never reach it.
type ProductSnapshot struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Material    string          `json:"material"`
	ImageURL    string          `json:"image_url"`
	OldPrice    decimal.Decimal `json:"old_price"`
	NewPrice    decimal.Decimal `json:"new_price"`
	Description string          `json:"description"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Product   ProductSnapshot `json:"product"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID          uuid.UUID
	CustomerID  string
	Items       []OrderItem
	ItemCount   int
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Shipping    decimal.Decimal
	TotalAmount decimal.Decimal
	Status      OrderStatus
	PurchasedAt time.Time
	UpdatedAt   time.Time
}

// PlacementResult is returned to the caller after a committed order placement.
type PlacementResult struct {
	Success     bool
	Message     string
	OrderID     uuid.UUID
	TotalAmount decimal.Decimal
	ItemCount   int
}
