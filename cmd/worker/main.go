package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/repo"
	"github.com/shopflow/shopflow-backend/internal/users"
	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/db"
	"github.com/shopflow/shopflow-backend/pkg/instance"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/metrics"
	"github.com/shopflow/shopflow-backend/pkg/pubsub"
	"github.com/shopflow/shopflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Instance:    instance.ID("worker"),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "worker terminated", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCache := db.NewCache(db.PostgresOpener(cfg.DB, logg), cfg.DB, logg)
	defer func() { err = multierr.Append(err, dbCache.Close()) }()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleSubscriber, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, psClient.Close()) }()

	identityMetrics := metrics.NewIdentityMetrics(prometheus.DefaultRegisterer)
	userRepo := users.NewRepository(
		repo.NewBase(dbCache, cfg.DB.OperationTimeout),
		cfg.Identity.DefaultAvatarURL,
		identityMetrics,
	)

	engineParams := identity.EngineParams{
		Users:      userRepo,
		Normalizer: identity.NewNormalizer(cfg.Identity.PlaceholderEmailDomain),
		Metrics:    identityMetrics,
		Logger:     logg,
	}
	params := ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbCache,
		PubSub: psClient,
	}
	if redisClient != nil {
		guard, guardErr := identity.NewRedisDeliveryGuard(redisClient, cfg.Eventing.DeliveryIdempotencyTTL)
		if guardErr != nil {
			return guardErr
		}
		engineParams.Guard = guard
		params.Redis = redisClient
	}

	engine, err := identity.NewEngine(engineParams)
	if err != nil {
		return err
	}
	params.Consumer, err = identity.NewConsumer(engine, psClient.IdentitySubscription(), logg)
	if err != nil {
		return err
	}

	service, err := NewService(params)
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "subscription", cfg.PubSub.IdentitySubscription), "starting worker")
	return service.Run(ctx)
}
