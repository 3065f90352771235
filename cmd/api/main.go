package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/shopflow/shopflow-backend/api/routes"
	"github.com/shopflow/shopflow-backend/internal/cart"
	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/repo"
	"github.com/shopflow/shopflow-backend/internal/roles"
	"github.com/shopflow/shopflow-backend/internal/users"
	"github.com/shopflow/shopflow-backend/pkg/auth"
	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/db"
	"github.com/shopflow/shopflow-backend/pkg/env"
	"github.com/shopflow/shopflow-backend/pkg/instance"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/metrics"
	"github.com/shopflow/shopflow-backend/pkg/migrate"
	"github.com/shopflow/shopflow-backend/pkg/provider"
	"github.com/shopflow/shopflow-backend/pkg/pubsub"
	"github.com/shopflow/shopflow-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.ID("api"),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connections are opened lazily; a cold database does not block startup.
	dbCache := db.NewCache(db.PostgresOpener(cfg.DB, logg), cfg.DB, logg)
	defer func() { err = multierr.Append(err, dbCache.Close()) }()

	if cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate {
		client, acquireErr := dbCache.Acquire(ctx)
		if acquireErr != nil {
			return acquireErr
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	} else {
		logg.Warn(ctx, "redis not configured; delivery dedupe and api throttling disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	identityMetrics := metrics.NewIdentityMetrics(registry)

	normalizer := identity.NewNormalizer(cfg.Identity.PlaceholderEmailDomain)
	userRepo := users.NewRepository(
		repo.NewBase(dbCache, cfg.DB.OperationTimeout),
		cfg.Identity.DefaultAvatarURL,
		identityMetrics,
	)

	engineParams := identity.EngineParams{
		Users:      userRepo,
		Normalizer: normalizer,
		Metrics:    identityMetrics,
		Logger:     logg,
	}
	if redisClient != nil {
		guard, guardErr := identity.NewRedisDeliveryGuard(redisClient, cfg.Eventing.DeliveryIdempotencyTTL)
		if guardErr != nil {
			return guardErr
		}
		engineParams.Guard = guard
	}
	engine, err := identity.NewEngine(engineParams)
	if err != nil {
		return err
	}

	var handler identity.Handler = engine
	if cfg.Identity.RelayWebhooks {
		psClient, psErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RolePublisher, logg)
		if psErr != nil {
			return psErr
		}
		defer func() { err = multierr.Append(err, psClient.Close()) }()

		publisher := psClient.IdentityPublisher()
		if publisher == nil {
			return errors.New("identity topic not configured")
		}
		defer publisher.Stop()

		relay, relayErr := identity.NewRelay(publisher, engine, logg)
		if relayErr != nil {
			return relayErr
		}
		handler = relay
	}

	var verifier *provider.WebhookVerifier
	if cfg.Identity.WebhookSecret != "" {
		verifier, err = provider.NewWebhookVerifier(cfg.Identity.WebhookSecret)
		if err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "identity webhook secret not configured; signatures are not verified")
	}

	roleParams := roles.ServiceParams{
		Users:      userRepo,
		Normalizer: normalizer,
		Metrics:    identityMetrics,
		Logger:     logg,
	}
	cartParams := cart.ServiceParams{
		Users:      userRepo,
		Normalizer: normalizer,
		Metrics:    identityMetrics,
		Logger:     logg,
	}
	var sessions auth.SessionVerifier
	if cfg.Identity.ProviderEnabled() {
		providerOpts := []provider.Option{
			provider.WithBaseURL(cfg.Identity.APIURL),
			provider.WithTimeout(cfg.Identity.RequestTimeout),
		}
		providerClient, clientErr := provider.NewClient(cfg.Identity.SecretKey, providerOpts...)
		if clientErr != nil {
			return clientErr
		}
		roleParams.Pusher = providerClient
		roleParams.Lookup = providerClient
		cartParams.Lookup = providerClient

		keys, keysErr := provider.NewKeySet(cfg.Identity.SecretKey, providerOpts...)
		if keysErr != nil {
			return keysErr
		}
		if sessions, err = auth.NewProviderVerifier(keys, cfg.Session); err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "identity provider api not configured; role push and live metadata disabled")
		if sessions, err = auth.NewSecretVerifier(cfg.Session); err != nil {
			return fmt.Errorf("session verification needs %s or %s: %w", config.EnvIdentitySecretKey, config.EnvSessionSecret, err)
		}
	}

	userService, err := users.NewService(userRepo, logg)
	if err != nil {
		return err
	}
	roleService, err := roles.NewService(roleParams)
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(cartParams)
	if err != nil {
		return err
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"relay": cfg.Identity.RelayWebhooks,
	})
	logg.Info(ctx, "starting api server")

	var cache routes.CacheStore
	if redisClient != nil {
		cache = redisClient
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbCache, cache, registry, routes.Services{
			Identity:   handler,
			Verifier:   verifier,
			Sessions:   sessions,
			Users:      userService,
			Roles:      roleService,
			Normalizer: normalizer,
			Cart:       cartService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
