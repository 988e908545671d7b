package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/aquakit/internal/cache"
	"github.com/fjod/aquakit/internal/catalog"
	"github.com/fjod/aquakit/internal/checkout"
	"github.com/fjod/aquakit/internal/config"
	"github.com/fjod/aquakit/internal/health"
	storefronthttp "github.com/fjod/aquakit/internal/http"
	"github.com/fjod/aquakit/internal/identity"
	"github.com/fjod/aquakit/internal/observability"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/fjod/aquakit/internal/payment"
	"github.com/fjod/aquakit/internal/poller"
	"github.com/fjod/aquakit/internal/postgres"
	"github.com/fjod/aquakit/internal/publisher"
	"github.com/fjod/aquakit/internal/repository"
	"github.com/fjod/aquakit/internal/results"
	"github.com/fjod/aquakit/internal/service"
	"github.com/fjod/aquakit/pkg/circuitbreaker"
	"github.com/fjod/aquakit/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
		Insecure:     true,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// Carts
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return err
	}
	defer mongoDB.Client().Disconnect(context.Background())

	cartRepo := repository.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		return err
	}
	log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))

	// Catalog
	catalogRepo, err := catalog.NewRepository(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
		return err
	}

	// Orders and lab results
	db, err := postgres.Open(&postgres.Credentials{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.RunMigrations(db, cfg.Postgres.MigrationsPath); err != nil {
		return err
	}
	orderRepo := orders.NewRepository(db)

	reports, err := results.NewS3Reports(ctx, results.S3Config{
		Bucket:   cfg.Reports.Bucket,
		Region:   cfg.Reports.Region,
		Endpoint: cfg.Reports.Endpoint,
		TTL:      cfg.Reports.PresignTTL,
	})
	if err != nil {
		return err
	}

	breakerCfg := circuitbreaker.DefaultConfig("payment")
	breakerCfg.ConsecutiveFailures = cfg.Payment.ConsecutiveFailures
	breakerCfg.OpenTimeout = cfg.Payment.OpenTimeout
	gateway := payment.NewProtectedGateway(
		payment.NewSimulatedGateway(cfg.Payment.SuccessRate),
		cfg.Payment.Timeout,
		breakerCfg,
		log,
	)

	cartSvc := service.NewCartService(cartRepo, cache.NewRedisCache(redisClient), catalogRepo, log)
	checkoutSvc := checkout.NewService(cartSvc, orderRepo, gateway, log)
	resultSvc := results.NewService(results.NewRepository(db), reports, log)

	// Background workers
	outbox := publisher.NewOutboxPoller(orderRepo, publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...), log)
	cartCleanup := poller.NewPoller(cartSvc, poller.NewKafkaReader(cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...), log)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		outbox.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		cartCleanup.Run(ctx)
	}()

	router := storefronthttp.NewRouter(
		storefronthttp.RouterConfig{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			RateLimit:      cfg.HTTP.RateLimit,
			RateBurst:      cfg.HTTP.RateBurst,
		},
		storefronthttp.Handlers{
			Catalog:  storefronthttp.NewCatalogHandler(catalogRepo, log),
			Cart:     storefronthttp.NewCartHandler(cartSvc, log),
			Checkout: storefronthttp.NewCheckoutHandler(checkoutSvc, log),
			Orders:   storefronthttp.NewOrdersHandler(orderRepo, log),
			Results:  storefronthttp.NewResultsHandler(resultSvc, log),
		},
		identity.NewValidator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		log,
	)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthSrv := health.New(log)
	lis, err := net.Listen("tcp", cfg.HTTP.HealthAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.HealthAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := healthSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		log.Info("storefront listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go healthSrv.WatchBreaker(ctx, "payment", gateway.State, 5*time.Second)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down storefront...")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	healthSrv.Stop()

	workers.Wait()
	if err := outbox.Close(); err != nil {
		log.Warn("failed to close outbox writer", zap.Error(err))
	}
	cartCleanup.Close()

	log.Info("storefront stopped")
	return serveErr
}
