package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

func newTestProduct(id string, stock int) *domain.Product {
	return &domain.Product{
		ID:                id,
		Name:              "Hand-thrown Bowl " + id,
		Category:          "pottery",
		Material:          "clay",
		ImageURL:          "https://img.example/" + id,
		Description:       "stoneware bowl",
		OldPrice:          decimal.RequireFromString("120.00"),
		NewPrice:          decimal.RequireFromString("99.50"),
		AvailableQuantity: stock,
		ApprovalStatus:    domain.ApprovalApproved,
	}
}

func newTestOrder(customerID string, purchasedAt time.Time) *domain.Order {
	return &domain.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Items: []domain.OrderItem{{
			ProductID: "p-1",
			Product: domain.ProductSnapshot{
				Name:     "Hand-thrown Bowl",
				NewPrice: decimal.RequireFromString("99.50"),
				OldPrice: decimal.RequireFromString("120.00"),
			},
			Quantity: 2,
		}},
		ItemCount:   1,
		Subtotal:    decimal.RequireFromString("199.00"),
		Tax:         decimal.RequireFromString("9.95"),
		Shipping:    decimal.RequireFromString("50.00"),
		TotalAmount: decimal.RequireFromString("258.95"),
		Status:      domain.OrderStatusPending,
		PurchasedAt: purchasedAt,
		UpdatedAt:   purchasedAt,
	}
}

func stockOf(t *testing.T, s Store, productID string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.AvailableQuantity
}

// runStoreSuite checks the behaviour every Store backend must share.
func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("cart not found", func(t *testing.T) {
		_, err := s.GetCart(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
	})

	t.Run("cart round trip", func(t *testing.T) {
		cart := &domain.Cart{
			CustomerID: "cust-cart",
			Items:      []domain.CartItem{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 1}},
		}
		require.NoError(t, s.UpsertCart(ctx, cart))

		got, err := s.GetCart(ctx, "cust-cart")
		require.NoError(t, err)
		assert.Equal(t, cart.Items, got.Items)
	})

	t.Run("product not found", func(t *testing.T) {
		_, err := s.GetProduct(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("prices keep whole cents and reject sub-cent values", func(t *testing.T) {
		p := newTestProduct("priced", 1)
		p.NewPrice = decimal.RequireFromString("99.5")
		require.NoError(t, s.UpsertProduct(ctx, p))

		for _, bad := range []string{"19.999", "0.001", "-1.00"} {
			changed := newTestProduct("priced", 1)
			changed.NewPrice = decimal.RequireFromString(bad)
			assert.ErrorIs(t, s.UpsertProduct(ctx, changed), domain.ErrInvalidPrice, bad)
		}

		got, err := s.GetProduct(ctx, "priced")
		require.NoError(t, err)
		assert.True(t, got.NewPrice.Equal(decimal.RequireFromString("99.50")), got.NewPrice.String())
		assert.True(t, got.OldPrice.Equal(decimal.RequireFromString("120")), got.OldPrice.String())
	})

	t.Run("decrement within stock", func(t *testing.T) {
		require.NoError(t, s.UpsertProduct(ctx, newTestProduct("dec-ok", 5)))

		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			remaining, ok, err := tx.DecrementIfAvailable(ctx, "dec-ok", 5)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 0, remaining)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, stockOf(t, s, "dec-ok"))
	})

	t.Run("decrement beyond stock matches nothing", func(t *testing.T) {
		require.NoError(t, s.UpsertProduct(ctx, newTestProduct("dec-short", 2)))

		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, ok, err := tx.DecrementIfAvailable(ctx, "dec-short", 3)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stockOf(t, s, "dec-short"))
	})

	t.Run("decrement skips unapproved product", func(t *testing.T) {
		p := newTestProduct("dec-pending", 10)
		p.ApprovalStatus = domain.ApprovalPending
		require.NoError(t, s.UpsertProduct(ctx, p))

		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, ok, err := tx.DecrementIfAvailable(ctx, "dec-pending", 1)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, stockOf(t, s, "dec-pending"))
	})

	t.Run("rollback discards every write", func(t *testing.T) {
		require.NoError(t, s.UpsertProduct(ctx, newTestProduct("rb", 4)))
		require.NoError(t, s.UpsertCart(ctx, &domain.Cart{
			CustomerID: "cust-rb",
			Items:      []domain.CartItem{{ProductID: "rb", Quantity: 1}},
		}))
		order := newTestOrder("cust-rb", time.Now().UTC())

		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, ok, err := tx.DecrementIfAvailable(ctx, "rb", 3)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, tx.CreateOrder(ctx, order))
			require.NoError(t, tx.DeleteCart(ctx, "cust-rb"))
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		assert.Equal(t, 4, stockOf(t, s, "rb"))
		_, err = s.GetOrderByID(ctx, order.ID)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		cart, err := s.GetCart(ctx, "cust-rb")
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
	})

	t.Run("delete missing cart fails", func(t *testing.T) {
		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DeleteCart(ctx, "no-cart")
		})
		assert.ErrorIs(t, err, domain.ErrCartDeletion)
	})

	t.Run("orders and outbox", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		older := newTestOrder("cust-orders", base.Add(-time.Hour))
		newer := newTestOrder("cust-orders", base)

		for _, o := range []*domain.Order{older, newer} {
			event, err := domain.NewOrderPlacedEvent(o)
			require.NoError(t, err)
			err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				if err := tx.CreateOrder(ctx, o); err != nil {
					return err
				}
				return tx.InsertOutboxEvent(ctx, event)
			})
			require.NoError(t, err)
		}

		got, err := s.GetOrderByID(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, newer.CustomerID, got.CustomerID)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		assert.True(t, newer.TotalAmount.Equal(got.TotalAmount))
		assert.True(t, newer.Tax.Equal(got.Tax))
		require.Len(t, got.Items, 1)
		assert.Equal(t, "Hand-thrown Bowl", got.Items[0].Product.Name)
		assert.True(t, got.Items[0].Product.NewPrice.Equal(decimal.RequireFromString("99.5")))

		list, err := s.ListOrdersByCustomerID(ctx, "cust-orders")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		events, err := s.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, older.ID.String(), events[0].AggregateID)
		assert.Equal(t, domain.EventTypeOrderPlaced, events[0].EventType)

		require.NoError(t, s.MarkEventAsProcessed(ctx, events[0].ID))
		events, err = s.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, newer.ID.String(), events[0].AggregateID)
		require.NoError(t, s.MarkEventAsProcessed(ctx, events[0].ID))
	})

	t.Run("order status compare and set", func(t *testing.T) {
		order := newTestOrder("cust-status", time.Now().UTC())
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreateOrder(ctx, order)
		}))

		err := s.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing)
		require.NoError(t, err)

		err = s.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
		assert.ErrorIs(t, err, domain.ErrOrderStatusConflict)

		err = s.UpdateOrderStatus(ctx, uuid.New(), domain.OrderStatusPending, domain.OrderStatusProcessing)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		got, err := s.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, got.Status)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

// runConcurrentDecrement races two transactions for 3 units each out of 5.
// Exactly one may win and the loser sees insufficient stock. Backends with
// optimistic transactions (Mongo) may fail the loser with a conflict instead.
func runConcurrentDecrement(t *testing.T, s Store, conflictAllowed bool) {
	ctx := context.Background()
	require.NoError(t, s.UpsertProduct(ctx, newTestProduct("race", 5)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				if _, err := tx.GetProduct(ctx, "race"); err != nil {
					return err
				}
				_, ok, err := tx.DecrementIfAvailable(ctx, "race", 3)
				if err != nil {
					return err
				}
				if !ok {
					return domain.ErrInsufficientStock
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if conflictAllowed && errors.Is(err, domain.ErrTransactionConflict) {
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 2, stockOf(t, s, "race"))
}
