// Package publisher relays committed outbox events to Kafka.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/internal/metrics"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/fjod/artisan-market/pkg/circuitbreaker"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	serviceName = "orders-service"
	batchSize   = 100
)

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	tick    time.Duration
	timeout time.Duration
	repo    repository.OutboxRepository
	writer  MessageWriter
	breaker *circuitbreaker.Breaker
	log     logrus.FieldLogger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(repo repository.OutboxRepository, writer MessageWriter, tick time.Duration, log logrus.FieldLogger) *OutboxPoller {
	breaker := circuitbreaker.New(circuitbreaker.DefaultSettings("kafka-publisher"), log,
		func(name string, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(serviceName, name).Set(circuitbreaker.StateValue(to))
		})
	metrics.CircuitBreakerState.WithLabelValues(serviceName, "kafka-publisher").Set(0)

	return &OutboxPoller{
		tick:    tick,
		timeout: 5 * time.Second,
		repo:    repo,
		writer:  writer,
		breaker: breaker,
		log:     log.WithField("component", "outbox_poller"),
	}
}

// Run publishes pending events every tick until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes one batch in creation order. It stops at
// the first failure so a later event is never published ahead of an earlier
// one for the same order.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		log := p.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.EventType})

		err := p.breaker.Execute(func() error {
			return p.publish(ctx, event)
		})
		if err != nil {
			result := "error"
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				result = "circuit_open"
			}
			metrics.OutboxPublished.WithLabelValues(result).Inc()
			log.WithError(err).Warn("failed to publish outbox event")
			return
		}
		metrics.OutboxPublished.WithLabelValues("success").Inc()

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.WithError(err).Error("failed to mark outbox event as processed")
			return
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order_id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
