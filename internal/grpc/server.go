// Package grpc exposes the standard gRPC health service, driven by periodic
// pings of the order store.
package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported alongside the overall ("") health status.
const ServiceName = "artisan.orders.v1.OrdersService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProber keeps the health server in step with the store.
type HealthProber struct {
	health   *health.Server
	store    Pinger
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger
	last     healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthProber(hs *health.Server, store Pinger, interval time.Duration, log logrus.FieldLogger) *HealthProber {
	return &HealthProber{
		health:   hs,
		store:    store,
		interval: interval,
		timeout:  2 * time.Second,
		log:      log.WithField("component", "health_prober"),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// Run probes once immediately and then every interval until ctx is done.
// On exit every service is reported NOT_SERVING.
func (p *HealthProber) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ticker.C:
			p.probe(ctx)
		case <-ctx.Done():
			p.health.Shutdown()
			return
		}
	}
}

func (p *HealthProber) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := p.store.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if p.last != status {
			p.log.WithError(err).Warn("store ping failed")
		}
	}

	if status != p.last {
		p.log.WithField("status", status.String()).Info("health status changed")
		p.last = status
	}
	p.health.SetServingStatus("", status)
	p.health.SetServingStatus(ServiceName, status)
}

// NewServer builds a gRPC server with tracing, reflection and the health
// service registered.
func NewServer(hs *health.Server) *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, hs)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)
	return srv
}
