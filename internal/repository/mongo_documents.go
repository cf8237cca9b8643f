package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type productDocument struct {
	ID                string               `bson:"_id"`
	Name              string               `bson:"name"`
	Category          string               `bson:"category"`
	Material          string               `bson:"material"`
	ImageURL          string               `bson:"image_url"`
	Description       string               `bson:"description"`
	OldPrice          primitive.Decimal128 `bson:"old_price"`
	NewPrice          primitive.Decimal128 `bson:"new_price"`
	AvailableQuantity int                  `bson:"available_quantity"`
	ApprovalStatus    string               `bson:"approval_status"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

type cartItemDocument struct {
	ProductID string `bson:"product_id"`
	Quantity  int    `bson:"quantity"`
}

type cartDocument struct {
	CustomerID string             `bson:"customer_id"`
	Items      []cartItemDocument `bson:"items"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

type snapshotDocument struct {
	Name        string               `bson:"name"`
	Category    string               `bson:"category"`
	Material    string               `bson:"material"`
	ImageURL    string               `bson:"image_url"`
	OldPrice    primitive.Decimal128 `bson:"old_price"`
	NewPrice    primitive.Decimal128 `bson:"new_price"`
	Description string               `bson:"description"`
}

type orderItemDocument struct {
	ProductID string           `bson:"product_id"`
	Product   snapshotDocument `bson:"product"`
	Quantity  int              `bson:"quantity"`
}

type orderDocument struct {
	ID          string               `bson:"_id"`
	CustomerID  string               `bson:"customer_id"`
	Items       []orderItemDocument  `bson:"items"`
	ItemCount   int                  `bson:"item_count"`
	Subtotal    primitive.Decimal128 `bson:"subtotal"`
	Tax         primitive.Decimal128 `bson:"tax"`
	Shipping    primitive.Decimal128 `bson:"shipping"`
	TotalAmount primitive.Decimal128 `bson:"total_amount"`
	Status      string               `bson:"status"`
	PurchasedAt time.Time            `bson:"purchased_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

type outboxDocument struct {
	ID          string     `bson:"_id"`
	AggregateID string     `bson:"aggregate_id"`
	EventType   string     `bson:"event_type"`
	Payload     string     `bson:"payload"`
	CreatedAt   time.Time  `bson:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v, err)
	}
	return d, nil
}

func newProductDocument(p *domain.Product) (*productDocument, error) {
	oldPrice, err := toDecimal128(p.OldPrice)
	if err != nil {
		return nil, err
	}
	newPrice, err := toDecimal128(p.NewPrice)
	if err != nil {
		return nil, err
	}
	return &productDocument{
		ID:                p.ID,
		Name:              p.Name,
		Category:          p.Category,
		Material:          p.Material,
		ImageURL:          p.ImageURL,
		Description:       p.Description,
		OldPrice:          oldPrice,
		NewPrice:          newPrice,
		AvailableQuantity: p.AvailableQuantity,
		ApprovalStatus:    string(p.ApprovalStatus),
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

func (d *productDocument) toDomain() (*domain.Product, error) {
	oldPrice, err := fromDecimal128(d.OldPrice)
	if err != nil {
		return nil, err
	}
	newPrice, err := fromDecimal128(d.NewPrice)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:                d.ID,
		Name:              d.Name,
		Category:          d.Category,
		Material:          d.Material,
		ImageURL:          d.ImageURL,
		Description:       d.Description,
		OldPrice:          oldPrice,
		NewPrice:          newPrice,
		AvailableQuantity: d.AvailableQuantity,
		ApprovalStatus:    domain.ApprovalStatus(d.ApprovalStatus),
	}, nil
}

func newCartDocument(c *domain.Cart) *cartDocument {
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return &cartDocument{
		CustomerID: c.CustomerID,
		Items:      items,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (d *cartDocument) toDomain() *domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return &domain.Cart{
		CustomerID: d.CustomerID,
		Items:      items,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func newOrderDocument(o *domain.Order) (*orderDocument, error) {
	doc := &orderDocument{
		ID:          o.ID.String(),
		CustomerID:  o.CustomerID,
		Items:       make([]orderItemDocument, 0, len(o.Items)),
		ItemCount:   o.ItemCount,
		Status:      string(o.Status),
		PurchasedAt: o.PurchasedAt.UTC(),
		UpdatedAt:   o.UpdatedAt.UTC(),
	}

	for _, item := range o.Items {
		oldPrice, err := toDecimal128(item.Product.OldPrice)
		if err != nil {
			return nil, err
		}
		newPrice, err := toDecimal128(item.Product.NewPrice)
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product: snapshotDocument{
				Name:        item.Product.Name,
				Category:    item.Product.Category,
				Material:    item.Product.Material,
				ImageURL:    item.Product.ImageURL,
				OldPrice:    oldPrice,
				NewPrice:    newPrice,
				Description: item.Product.Description,
			},
		})
	}

	amounts := []struct {
		src decimal.Decimal
		dst *primitive.Decimal128
	}{
		{o.Subtotal, &doc.Subtotal},
		{o.Tax, &doc.Tax},
		{o.Shipping, &doc.Shipping},
		{o.TotalAmount, &doc.TotalAmount},
	}
	for _, a := range amounts {
		v, err := toDecimal128(a.src)
		if err != nil {
			return nil, err
		}
		*a.dst = v
	}
	return doc, nil
}

func (d *orderDocument) toDomain() (*domain.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse order id %q: %w", d.ID, err)
	}

	order := &domain.Order{
		ID:          id,
		CustomerID:  d.CustomerID,
		Items:       make([]domain.OrderItem, 0, len(d.Items)),
		ItemCount:   d.ItemCount,
		Status:      domain.OrderStatus(d.Status),
		PurchasedAt: d.PurchasedAt,
		UpdatedAt:   d.UpdatedAt,
	}

	for _, item := range d.Items {
		oldPrice, err := fromDecimal128(item.Product.OldPrice)
		if err != nil {
			return nil, err
		}
		newPrice, err := fromDecimal128(item.Product.NewPrice)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product: domain.ProductSnapshot{
				Name:        item.Product.Name,
				Category:    item.Product.Category,
				Material:    item.Product.Material,
				ImageURL:    item.Product.ImageURL,
				OldPrice:    oldPrice,
				NewPrice:    newPrice,
				Description: item.Product.Description,
			},
		})
	}

	amounts := []struct {
		src primitive.Decimal128
		dst *decimal.Decimal
	}{
		{d.Subtotal, &order.Subtotal},
		{d.Tax, &order.Tax},
		{d.Shipping, &order.Shipping},
		{d.TotalAmount, &order.TotalAmount},
	}
	for _, a := range amounts {
		v, err := fromDecimal128(a.src)
		if err != nil {
			return nil, err
		}
		*a.dst = v
	}
	return order, nil
}

func newOutboxDocument(e *domain.OutboxEvent) *outboxDocument {
	return &outboxDocument{
		ID:          e.ID,
		AggregateID: e.AggregateID,
		EventType:   e.EventType,
		Payload:     string(e.Payload),
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func (d *outboxDocument) toDomain() *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:          d.ID,
		AggregateID: d.AggregateID,
		EventType:   d.EventType,
		Payload:     json.RawMessage(d.Payload),
		CreatedAt:   d.CreatedAt,
	}
}
