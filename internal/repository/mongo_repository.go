package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// writeConflictCode is returned by the server when two transactions touch the
// same document.
const writeConflictCode = 112

// MongoRepository keeps each entity in its own collection and runs order
// placement in a multi-document transaction. It needs a replica set.
type MongoRepository struct {
	db       *mongo.Database
	products *mongo.Collection
	carts    *mongo.Collection
	orders   *mongo.Collection
	outbox   *mongo.Collection
}

var _ Store = (*MongoRepository)(nil)

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		db:       db,
		products: db.Collection("products"),
		carts:    db.Collection("carts"),
		orders:   db.Collection("orders"),
		outbox:   db.Collection("outbox_events"),
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	if _, err := m.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "customer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	if _, err := m.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "purchased_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	if _, err := m.outbox.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "processed_at", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}

	return nil
}

// WithinTx starts a snapshot transaction with majority writes. The driver's
// automatic retry is not used, so a lost race is returned to the caller.
func (m *MongoRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	ctx, span := tracer.Start(ctx, "MongoRepository.WithinTx",
		trace.WithAttributes(attribute.String("db.system", "mongodb")))
	defer span.End()

	sess, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	sctx := mongo.NewSessionContext(ctx, sess)
	if err := fn(sctx, &mongoTx{repo: m}); err != nil {
		if abortErr := sess.AbortTransaction(context.Background()); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("abort transaction: %w", abortErr))
		}
		span.RecordError(err)
		return classifyMongo(err)
	}

	if err := sess.CommitTransaction(sctx); err != nil {
		span.RecordError(err)
		return classifyMongo(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (m *MongoRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return findCart(ctx, m.carts, customerID)
}

func (m *MongoRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return findProduct(ctx, m.products, productID)
}

func (m *MongoRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var doc orderDocument
	err := m.orders.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoRepository) ListOrdersByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "purchased_at", Value: -1}})
	cursor, err := m.orders.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		order, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return orders, nil
}

func (m *MongoRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	filter := bson.M{"_id": id.String(), "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}}

	result, err := m.orders.UpdateOne(ctx, filter, update)
	if err != nil {
		return classifyMongo(fmt.Errorf("failed to update order status: %w", err))
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetOrderByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrOrderStatusConflict
	}
	return nil
}

func (m *MongoRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.outbox.Find(ctx, bson.M{"processed_at": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.OutboxEvent
	for cursor.Next(ctx) {
		var doc outboxDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode outbox event: %w", err)
		}
		events = append(events, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return events, nil
}

func (m *MongoRepository) MarkEventAsProcessed(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"processed_at": time.Now().UTC()}}
	if _, err := m.outbox.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	if err := p.ValidatePrices(); err != nil {
		return err
	}

	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := m.products.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	filter := bson.M{"customer_id": cart.CustomerID}
	update := bson.M{"$set": newCartDocument(cart)}
	opts := options.Update().SetUpsert(true)

	if _, err := m.carts.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.db.Client().Disconnect(ctx)
}

func findCart(ctx context.Context, carts *mongo.Collection, customerID string) (*domain.Cart, error) {
	var doc cartDocument
	err := carts.FindOne(ctx, bson.M{"customer_id": customerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain(), nil
}

func findProduct(ctx context.Context, products *mongo.Collection, productID string) (*domain.Product, error) {
	var doc productDocument
	err := products.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return doc.toDomain()
}

func classifyMongo(err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) &&
		(se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode)) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
	}
	return err
}
