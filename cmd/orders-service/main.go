package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/artisan-market/internal/cache"
	"github.com/fjod/artisan-market/internal/config"
	ordersgrpc "github.com/fjod/artisan-market/internal/grpc"
	ordershttp "github.com/fjod/artisan-market/internal/http"
	"github.com/fjod/artisan-market/internal/publisher"
	"github.com/fjod/artisan-market/internal/repository"
	"github.com/fjod/artisan-market/internal/service"
	"github.com/fjod/artisan-market/internal/store"
	"github.com/fjod/artisan-market/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
)

func main() {
	bootLog := logger.New("info")
	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.LogLevel)
	log.WithField("driver", cfg.DBDriver).Info("orders-service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer repo.Close()

	cartCache := openCache(ctx, cfg, log)

	orderService := service.NewOrderService(repo, cartCache, log)
	cartService := service.NewCartService(repo, cartCache, log)

	router := ordershttp.NewRouter(ordershttp.RouterDeps{
		Orders:         orderService,
		Carts:          cartService,
		Store:          repo,
		RequestTimeout: cfg.RequestTimeout,
		Log:            log,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := ordersgrpc.NewServer(healthServer)
	prober := ordersgrpc.NewHealthProber(healthServer, repo, cfg.HealthProbeInterval, log)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Infof("gRPC health server listening on :%s", cfg.GRPCPort)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		prober.Run(gctx)
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo,
			publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...),
			cfg.OutboxPollInterval, log)
		g.Go(func() error {
			defer poller.Close()
			poller.Run(gctx)
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events will not be published")
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down orders service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("orders service stopped with error")
		os.Exit(1)
	}
	log.Info("orders service stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		repo, err := repository.NewPostgresRepository(&repository.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: cfg.MigrationsDir(),
		})
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(cfg.MigrationsDir()); err != nil {
			repo.Close()
			return nil, err
		}
		log.Info("database migrations completed")
		return repo, nil

	case config.DriverSQLite:
		repo, err := repository.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(cfg.MigrationsDir()); err != nil {
			repo.Close()
			return nil, err
		}
		log.Info("database migrations completed")
		return repo, nil

	case config.DriverMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}

// openCache returns a Redis-backed cart cache, or a no-op cache when Redis is
// not configured or not reachable at startup.
func openCache(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) cache.CartCache {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, cart cache disabled")
		return cache.NopCache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, cart cache disabled")
		client.Close()
		return cache.NopCache{}
	}
	return cache.NewRedisCache(client, cache.WithTTL(cfg.CartCacheTTL, cfg.CartCacheTTL/3))
}
