package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/artisan-market/internal/domain"
)

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) lockClause() string {
	if t.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	// SQLite transactions begin IMMEDIATE and already hold the write lock.
	return ""
}

func (t *sqlTx) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return getCart(ctx, t.tx, customerID)
}

func (t *sqlTx) DeleteCart(ctx context.Context, customerID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM carts WHERE customer_id = $1`, customerID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCartDeletion, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCartDeletion, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: no cart for customer %s", domain.ErrCartDeletion, customerID)
	}
	return nil
}

func (t *sqlTx) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, productID, t.lockClause())
}

func (t *sqlTx) DecrementIfAvailable(ctx context.Context, productID string, qty int) (int, bool, error) {
	query := `UPDATE products
	          SET available_quantity = available_quantity - $1
	          WHERE id = $2 AND approval_status = 'approved' AND available_quantity >= $1
	          RETURNING available_quantity`

	var remaining int
	err := t.tx.QueryRowContext(ctx, query, qty, productID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, true, nil
}

func (t *sqlTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (id, customer_id, items, item_count, subtotal, tax, shipping, total_amount, status, purchased_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = t.tx.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		string(itemsJSON),
		order.ItemCount,
		order.Subtotal.StringFixed(2),
		order.Tax.StringFixed(2),
		order.Shipping.StringFixed(2),
		order.TotalAmount.StringFixed(2),
		order.Status,
		order.PurchasedAt.UTC(),
		order.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := t.tx.ExecContext(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		string(event.Payload),
		event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
