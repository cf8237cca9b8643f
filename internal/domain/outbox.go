package domain

import (
	"encoding/json"
	"time"
)

const EventTypeOrderPlaced = "order.placed"

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type OrderPlacedItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderPlacedPayload is the body of an order.placed event.
type OrderPlacedPayload struct {
	OrderID     string            `json:"order_id"`
	CustomerID  string            `json:"customer_id"`
	Items       []OrderPlacedItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount string            `json:"total_amount"`
	Status      string            `json:"status"`
	PurchasedAt time.Time         `json:"purchased_at"`
}

func NewOrderPlacedEvent(order *Order) (*OutboxEvent, error) {
	items := make([]OrderPlacedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderPlacedItem{
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.NewPrice.StringFixed(2),
		})
	}

	payload, err := json.Marshal(OrderPlacedPayload{
		OrderID:     order.ID.String(),
		CustomerID:  order.CustomerID,
		Items:       items,
		ItemCount:   order.ItemCount,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Status:      order.Status.String(),
		PurchasedAt: order.PurchasedAt,
	})
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:          order.ID.String(),
		AggregateID: order.ID.String(),
		EventType:   EventTypeOrderPlaced,
		Payload:     payload,
		CreatedAt:   order.PurchasedAt,
	}, nil
}
