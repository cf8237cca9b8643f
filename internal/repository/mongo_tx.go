package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoTx runs every operation with the session context passed to the
// WithinTx callback.
type mongoTx struct {
	repo *MongoRepository
}

func (t *mongoTx) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return findCart(ctx, t.repo.carts, customerID)
}

func (t *mongoTx) DeleteCart(ctx context.Context, customerID string) error {
	result, err := t.repo.carts.DeleteOne(ctx, bson.M{"customer_id": customerID})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCartDeletion, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: no cart for customer %s", domain.ErrCartDeletion, customerID)
	}
	return nil
}

func (t *mongoTx) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return findProduct(ctx, t.repo.products, productID)
}

func (t *mongoTx) DecrementIfAvailable(ctx context.Context, productID string, qty int) (int, bool, error) {
	filter := bson.M{
		"_id":                productID,
		"approval_status":    string(domain.ApprovalApproved),
		"available_quantity": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"available_quantity": -qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDocument
	err := t.repo.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("decrement stock: %w", err)
	}
	return doc.AvailableQuantity, true, nil
}

func (t *mongoTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	if _, err := t.repo.orders.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *mongoTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	if _, err := t.repo.outbox.InsertOne(ctx, newOutboxDocument(event)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
