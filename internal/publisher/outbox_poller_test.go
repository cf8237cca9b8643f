package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/metrics"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/fjod/artisan-market/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockWriter struct {
	mu       sync.Mutex
	Messages []kafkaGo.Message
	Err      error
	Calls    int
	Closed   bool
}

func (m *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	m.Closed = true
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupStore(t *testing.T) *store.MemoryStore {
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func insertPlacedEvent(t *testing.T, s *store.MemoryStore, customerID string) *domain.OutboxEvent {
	order := &domain.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Items: []domain.OrderItem{{
			ProductID: "rug-1",
			Product:   domain.ProductSnapshot{Name: "Wool Rug", NewPrice: decimal.NewFromInt(120)},
			Quantity:  1,
		}},
		ItemCount:   1,
		TotalAmount: decimal.RequireFromString("176"),
		Status:      domain.OrderStatusPending,
		PurchasedAt: time.Now().UTC(),
	}
	event, err := domain.NewOrderPlacedEvent(order)
	require.NoError(t, err)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertOutboxEvent(ctx, event)
	})
	require.NoError(t, err)
	return event
}

func pending(t *testing.T, s *store.MemoryStore) int {
	events, err := s.GetUnprocessedEvents(context.Background(), 100)
	require.NoError(t, err)
	return len(events)
}

func TestOutboxPoller_PublishesAndMarksProcessed(t *testing.T) {
	s := setupStore(t)
	first := insertPlacedEvent(t, s, "cust-1")
	second := insertPlacedEvent(t, s, "cust-2")
	writer := &MockWriter{}
	before := testutil.ToFloat64(metrics.OutboxPublished.WithLabelValues("success"))

	poller := NewOutboxPoller(s, writer, time.Second, quietLogger())
	poller.processUnpublishedEvents(context.Background())

	require.Len(t, writer.Messages, 2)
	assert.Equal(t, first.AggregateID, string(writer.Messages[0].Key))
	assert.Equal(t, second.AggregateID, string(writer.Messages[1].Key))
	assert.Equal(t, "event_type", writer.Messages[0].Headers[0].Key)
	assert.Equal(t, domain.EventTypeOrderPlaced, string(writer.Messages[0].Headers[0].Value))

	var payload domain.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(writer.Messages[0].Value, &payload))
	assert.Equal(t, "cust-1", payload.CustomerID)
	assert.Equal(t, "176.00", payload.TotalAmount)

	assert.Equal(t, 0, pending(t, s))
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.OutboxPublished.WithLabelValues("success")))
}

func TestOutboxPoller_FailureLeavesEventPending(t *testing.T) {
	s := setupStore(t)
	insertPlacedEvent(t, s, "cust-1")
	insertPlacedEvent(t, s, "cust-2")
	writer := &MockWriter{Err: errors.New("broker unavailable")}

	poller := NewOutboxPoller(s, writer, time.Second, quietLogger())
	poller.processUnpublishedEvents(context.Background())

	// the batch stops at the first failure
	assert.Equal(t, 1, writer.Calls)
	assert.Equal(t, 2, pending(t, s))

	writer.Err = nil
	poller.processUnpublishedEvents(context.Background())
	assert.Len(t, writer.Messages, 2)
	assert.Equal(t, 0, pending(t, s))
}

func TestOutboxPoller_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	s := setupStore(t)
	insertPlacedEvent(t, s, "cust-1")
	writer := &MockWriter{Err: errors.New("broker unavailable")}

	poller := NewOutboxPoller(s, writer, time.Second, quietLogger())
	for i := 0; i < 5; i++ {
		poller.processUnpublishedEvents(context.Background())
	}

	assert.Equal(t, 3, writer.Calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.CircuitBreakerState.WithLabelValues(serviceName, "kafka-publisher")))
	assert.Equal(t, 1, pending(t, s))
}

func TestOutboxPoller_RunStopsOnCancel(t *testing.T) {
	s := setupStore(t)
	insertPlacedEvent(t, s, "cust-1")
	writer := &MockWriter{}
	poller := NewOutboxPoller(s, writer, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return pending(t, s) == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	require.NoError(t, poller.Close())
	assert.True(t, writer.Closed)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("kafka container test")
	}

	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "orders.placed"
	createTopic(t, brokerAddr, topic)
	time.Sleep(5 * time.Second)

	s := setupStore(t)
	event := insertPlacedEvent(t, s, "cust-42")

	poller := NewOutboxPoller(s, NewKafkaWriter(topic, brokerAddr), time.Second, quietLogger())
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.AggregateID, string(msg.Key))

	var payload domain.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "cust-42", payload.CustomerID)

	assert.Eventually(t, func() bool { return pending(t, s) == 0 }, 10*time.Second, 100*time.Millisecond)
}
