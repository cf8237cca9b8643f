package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/artisan-market/internal/metrics"
	"github.com/fjod/artisan-market/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "orders-service"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Orders         service.OrderService
	Carts          service.CartReader
	Store          Pinger
	RequestTimeout time.Duration
	Log            logrus.FieldLogger
}

func NewRouter(deps RouterDeps) http.Handler {
	ordersHandler := NewOrdersHandler(deps.Orders, deps.RequestTimeout, deps.Log)
	cartHandler := NewCartHandler(deps.Carts, deps.RequestTimeout, deps.Log)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(metrics.PrometheusMiddleware(serviceName))

	r.Get("/health", healthHandler(deps.Store))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordersHandler.PlaceOrder)
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{order_id}", ordersHandler.GetOrder)
			r.Put("/{order_id}/status", ordersHandler.UpdateStatus)
		})
		r.Get("/cart", cartHandler.GetCart)
	})

	return otelhttp.NewHandler(r, serviceName)
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
