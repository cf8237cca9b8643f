package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var tracer = otel.Tracer("github.com/fjod/artisan-market/internal/repository")

// SQLRepository stores carts, products, orders and outbox events in Postgres
// or SQLite. Queries are shared; only row locking and error codes differ.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLRepository)(nil)

func NewPostgresRepository(cred *Credentials) (*SQLRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &SQLRepository{db: db, dialect: DialectPostgres}, nil
}

// NewSQLiteRepository opens the database file at path. SQLite allows a single
// writer, so the pool is limited to one connection and transactions queue on it.
func NewSQLiteRepository(path string) (*SQLRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	return &SQLRepository{db: db, dialect: DialectSQLite}, nil
}

func (r *SQLRepository) Dialect() Dialect {
	return r.dialect
}

func (r *SQLRepository) RunMigrations(migrationsPath string) error {
	var (
		driver database.Driver
		err    error
	)
	switch r.dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{
			MigrationsTable: "orders_schema_migrations",
		})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		string(r.dialect),
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *SQLRepository) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	ctx, span := tracer.Start(ctx, "SQLRepository.WithinTx",
		trace.WithAttributes(attribute.String("db.system", string(r.dialect))))
	defer span.End()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return r.classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			span.RecordError(err)
		}
	}()

	if err = fn(ctx, &sqlTx{tx: tx, dialect: r.dialect}); err != nil {
		return r.classify(err)
	}

	if err = tx.Commit(); err != nil {
		return r.classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (r *SQLRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return getCart(ctx, r.db, customerID)
}

func (r *SQLRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, r.db, productID, "")
}

func (r *SQLRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT id, customer_id, items, item_count, subtotal, tax, shipping, total_amount, status, purchased_at, updated_at
	          FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *SQLRepository) ListOrdersByCustomerID(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT id, customer_id, items, item_count, subtotal, tax, shipping, total_amount, status, purchased_at, updated_at
	          FROM orders WHERE customer_id = $1 ORDER BY purchased_at DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by customer id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (r *SQLRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return r.classify(fmt.Errorf("update order status: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetOrderByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrOrderStatusConflict
	}
	return nil
}

func (r *SQLRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY created_at LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.EventType, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		event.Payload = json.RawMessage(payload)
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *SQLRepository) MarkEventAsProcessed(ctx context.Context, id string) error {
	query := `UPDATE outbox_events SET processed_at = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}

func (r *SQLRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	if err := p.ValidatePrices(); err != nil {
		return err
	}

	query := `INSERT INTO products (id, name, category, material, image_url, description, old_price, new_price, available_quantity, approval_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (id) DO UPDATE SET
	              name = excluded.name,
	              category = excluded.category,
	              material = excluded.material,
	              image_url = excluded.image_url,
	              description = excluded.description,
	              old_price = excluded.old_price,
	              new_price = excluded.new_price,
	              available_quantity = excluded.available_quantity,
	              approval_status = excluded.approval_status`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Category,
		p.Material,
		p.ImageURL,
		p.Description,
		p.OldPrice.String(),
		p.NewPrice.String(),
		p.AvailableQuantity,
		p.ApprovalStatus)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *SQLRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	itemsJSON, err := json.Marshal(cart.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}

	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	query := `INSERT INTO carts (customer_id, items, created_at, updated_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (customer_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, cart.CustomerID, string(itemsJSON), cart.CreatedAt.UTC(), cart.UpdatedAt); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getCart(ctx context.Context, q queryer, customerID string) (*domain.Cart, error) {
	query := `SELECT customer_id, items, created_at, updated_at FROM carts WHERE customer_id = $1`

	var (
		cart      domain.Cart
		itemsJSON []byte
	)
	err := q.QueryRowContext(ctx, query, customerID).Scan(
		&cart.CustomerID,
		&itemsJSON,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &cart.Items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items: %w", err)
	}
	return &cart, nil
}

func getProduct(ctx context.Context, q queryer, productID, lockClause string) (*domain.Product, error) {
	query := `SELECT id, name, category, material, image_url, description, old_price, new_price, available_quantity, approval_status
	          FROM products WHERE id = $1` + lockClause

	var p domain.Product
	err := q.QueryRowContext(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Material,
		&p.ImageURL,
		&p.Description,
		&p.OldPrice,
		&p.NewPrice,
		&p.AvailableQuantity,
		&p.ApprovalStatus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		itemsJSON []byte
	)
	if err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&itemsJSON,
		&order.ItemCount,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.TotalAmount,
		&order.Status,
		&order.PurchasedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}
