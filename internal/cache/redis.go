package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultKeyPrefix = "artisan:cart:"
	defaultTTL       = 15 * time.Minute
	defaultMaxJitter = 5 * time.Minute
)

var tracer = otel.Tracer("github.com/fjod/artisan-market/internal/cache")

type RedisOption func(*RedisCache)

// WithTTL sets the base lifetime of a cart view and the upper bound of the
// random extension added to it. maxJitter <= 0 disables the extension.
func WithTTL(base, maxJitter time.Duration) RedisOption {
	return func(r *RedisCache) {
		r.baseTTL = base
		r.maxJitter = maxJitter
	}
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisCache) { r.prefix = prefix }
}

// RedisCache stores cart views as JSON under prefix+customerID. Entries
// written together get different expiries so they do not all miss at once.
type RedisCache struct {
	client    redis.UniversalClient
	prefix    string
	baseTTL   time.Duration
	maxJitter time.Duration
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	r := &RedisCache{
		client:    client,
		prefix:    defaultKeyPrefix,
		baseTTL:   defaultTTL,
		maxJitter: defaultMaxJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisCache) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, span := r.startSpan(ctx, "RedisCache.Get", customerID)
	defer span.End()

	data, err := r.client.Get(ctx, r.key(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("get cart view for %s: %w", customerID, err))
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fail(span, fmt.Errorf("decode cart view for %s: %w", customerID, err))
	}
	span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("cart.lines", len(cart.Items)))
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, customerID string, cart *domain.Cart) error {
	ctx, span := r.startSpan(ctx, "RedisCache.Set", customerID)
	defer span.End()

	payload, err := json.Marshal(cart)
	if err != nil {
		return fail(span, fmt.Errorf("encode cart view for %s: %w", customerID, err))
	}

	ttl := r.ttl()
	span.SetAttributes(attribute.Int64("cache.ttl_seconds", int64(ttl/time.Second)))
	if err := r.client.Set(ctx, r.key(customerID), payload, ttl).Err(); err != nil {
		return fail(span, fmt.Errorf("store cart view for %s: %w", customerID, err))
	}
	return nil
}

// Delete drops the cached view. A missing key is not an error.
func (r *RedisCache) Delete(ctx context.Context, customerID string) error {
	ctx, span := r.startSpan(ctx, "RedisCache.Delete", customerID)
	defer span.End()

	if err := r.client.Del(ctx, r.key(customerID)).Err(); err != nil {
		return fail(span, fmt.Errorf("drop cart view for %s: %w", customerID, err))
	}
	return nil
}

func (r *RedisCache) key(customerID string) string {
	return r.prefix + customerID
}

func (r *RedisCache) ttl() time.Duration {
	if r.maxJitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + rand.N(r.maxJitter)
}

func (r *RedisCache) startSpan(ctx context.Context, name, customerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("customer.id", customerID),
		))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
