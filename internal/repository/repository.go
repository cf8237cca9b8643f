package repository

import (
	"context"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/google/uuid"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Tx is the unit of work handed to WithinTx callbacks. Every read and write
// made through it commits or rolls back together.
type Tx interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, customerID string) error

	// GetProduct reads the product's current state. SQL backends lock the row
	// until the transaction ends.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// DecrementIfAvailable subtracts qty from an approved product's stock only
	// if at least qty is available. ok is false when no row matched.
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (remaining int, ok bool, err error)

	CreateOrder(ctx context.Context, order *domain.Order) error
	InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

type TxFunc func(ctx context.Context, tx Tx) error

type OrderRepository interface {
	// WithinTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise. Backend conflicts surface as domain.ErrTransactionConflict.
	WithinTx(ctx context.Context, fn TxFunc) error

	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error)

	// UpdateOrderStatus moves the order from one status to another and fails
	// with domain.ErrOrderStatusConflict if the stored status is no longer from.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error

	Ping(ctx context.Context) error
	Close() error
}

// OutboxRepository is read by the outbox poller.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

// Seeder writes catalog and cart data owned by other services. Used by local
// fixtures and tests.
type Seeder interface {
	UpsertProduct(ctx context.Context, product *domain.Product) error
	UpsertCart(ctx context.Context, cart *domain.Cart) error
}

type Store interface {
	OrderRepository
	OutboxRepository
	Seeder
}
