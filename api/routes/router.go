package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopflow/shopflow-backend/api/controllers"
	webhookcontrollers "github.com/shopflow/shopflow-backend/api/controllers/webhooks"
	"github.com/shopflow/shopflow-backend/api/middleware"
	"github.com/shopflow/shopflow-backend/internal/cart"
	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/roles"
	"github.com/shopflow/shopflow-backend/pkg/auth"
	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/db"
	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/enums"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/provider"
)

// CacheStore is the redis surface the router needs: readiness and
// storefront API throttling counters.
type CacheStore interface {
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

type userService interface {
	Lookup(ctx context.Context, externalID string) (*models.User, error)
}

type roleService interface {
	ClaimsFor(ctx context.Context, claims *auth.SessionClaims) roles.ProviderClaims
	Resolve(ctx context.Context, claims roles.ProviderClaims, user *models.User) (enums.UserRole, error)
	Change(ctx context.Context, externalID, raw string, fallback identity.NormalizedIdentity) (enums.UserRole, error)
}

// Services groups the domain collaborators exposed over HTTP.
type Services struct {
	Identity   identity.Handler
	Verifier   *provider.WebhookVerifier
	Sessions   auth.SessionVerifier
	Users      userService
	Roles      roleService
	Normalizer identity.Normalizer
	Cart       cart.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache CacheStore,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := []controllers.ReadinessCheck{{Name: "database", Pinger: dbP}}
	redisCheck := controllers.ReadinessCheck{Name: "redis"}
	if cache != nil {
		redisCheck.Pinger = cache
	}
	readiness = append(readiness, redisCheck)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	apiPolicy := middleware.NewRateLimitPolicy("storefront_api", cfg.App.APIRateWindow, cfg.App.APIRateLimit)
	apiLimiter := func(next http.Handler) http.Handler { return next }
	if cache != nil {
		apiLimiter = middleware.RateLimit(apiPolicy, cache, logg)
	}
	var verifier interface {
		Verify(http.Header, []byte) error
	}
	if svc.Verifier != nil {
		verifier = svc.Verifier
	}

	// Identity intake is never throttled: a non-2xx answer makes the provider
	// redeliver, and its deliveries share a handful of egress IPs.
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/identity", webhookcontrollers.IdentityWebhook(svc.Identity, verifier, logg))
		r.Get("/identity", webhookcontrollers.IdentityWebhookLive())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter)
		r.Use(middleware.Auth(svc.Sessions, logg))

		r.Route("/user", func(r chi.Router) {
			r.Get("/me", controllers.UserMe(svc.Users, svc.Roles, logg))
			r.Post("/role", controllers.UserChangeRole(svc.Roles, svc.Normalizer, logg))
		})

		r.Get("/cart", controllers.CartFetch(svc.Cart, logg))
		r.Post("/cart", controllers.CartReplace(svc.Cart, logg))
	})

	return r
}
