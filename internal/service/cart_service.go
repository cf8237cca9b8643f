package service

import (
	"context"
	"errors"

	"github.com/fjod/artisan-market/internal/cache"
	"github.com/fjod/artisan-market/internal/domain"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type CartReader interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
}

// CartService serves the read-only cart view shown before checkout.
type CartService struct {
	repo  CartReader
	cache cache.CartCache
	log   logrus.FieldLogger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo CartReader, cartCache cache.CartCache, log logrus.FieldLogger) *CartService {
	if cartCache == nil {
		cartCache = cache.NopCache{}
	}
	return &CartService{
		repo:  repo,
		cache: cartCache,
		log:   log,
	}
}

// GetCart returns the customer's cart, or an empty cart if none exists.
func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	log := logger.FromContext(ctx, s.log).WithField("customer_id", customerID)

	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.WithError(err).Warn("cache get error")
		}

		cart, err = s.repo.GetCart(ctx, customerID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return &domain.Cart{CustomerID: customerID, Items: []domain.CartItem{}}, nil
		}
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(context.WithoutCancel(ctx), customerID, cart); err != nil {
			log.WithError(err).Warn("cache set error")
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}
