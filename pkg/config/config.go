package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Identity     IdentityConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPFLOW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SHOPFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPFLOW_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma-separated list of storefront origins.
	CORSOrigins []string `envconfig:"SHOPFLOW_CORS_ORIGINS"`
	// APIRateLimit caps storefront API requests per client IP and window.
	APIRateLimit  int           `envconfig:"SHOPFLOW_API_RATE_LIMIT" default:"120"`
	APIRateWindow time.Duration `envconfig:"SHOPFLOW_API_RATE_WINDOW" default:"1m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig sizes the pool for many short-lived concurrent invocations rather
// than a few long-lived ones, hence the small defaults.
type DBConfig struct {
	DSN string `envconfig:"SHOPFLOW_DB_DSN"`

	LegacyHost     string `envconfig:"SHOPFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPFLOW_DB_USER"`
	LegacyPassword string `envconfig:"SHOPFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns     int           `envconfig:"SHOPFLOW_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns     int           `envconfig:"SHOPFLOW_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime  time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime  time.Duration `envconfig:"SHOPFLOW_DB_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnectTimeout   time.Duration `envconfig:"SHOPFLOW_DB_CONNECT_TIMEOUT" default:"10s"`
	OperationTimeout time.Duration `envconfig:"SHOPFLOW_DB_OPERATION_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPFLOW_REDIS_URL"`
	Address      string        `envconfig:"SHOPFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPFLOW_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"SHOPFLOW_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPFLOW_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"SHOPFLOW_REDIS_WRITE_TIMEOUT" default:"3s"`
	KeyPrefix    string        `envconfig:"SHOPFLOW_REDIS_KEY_PREFIX" default:"sf"`
}

// Enabled reports whether a redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// SessionConfig verifies session tokens minted by the identity provider.
// Tokens are checked against the provider JWKS when the identity secret key
// is set; Secret covers HS256 templates and local tooling.
type SessionConfig struct {
	Secret string        `envconfig:"SHOPFLOW_SESSION_SECRET"`
	Issuer string        `envconfig:"SHOPFLOW_SESSION_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"SHOPFLOW_SESSION_LEEWAY" default:"30s"`
}

type IdentityConfig struct {
	APIURL                 string        `envconfig:"SHOPFLOW_IDENTITY_API_URL" default:"https://api.clerk.com"`
	SecretKey              string        `envconfig:"SHOPFLOW_IDENTITY_SECRET_KEY"`
	WebhookSecret          string        `envconfig:"SHOPFLOW_IDENTITY_WEBHOOK_SECRET"`
	PlaceholderEmailDomain string        `envconfig:"SHOPFLOW_IDENTITY_PLACEHOLDER_EMAIL_DOMAIN" default:"clerk.local"`
	DefaultAvatarURL       string        `envconfig:"SHOPFLOW_IDENTITY_DEFAULT_AVATAR_URL" default:"/default-avatar.png"`
	RequestTimeout         time.Duration `envconfig:"SHOPFLOW_IDENTITY_REQUEST_TIMEOUT" default:"5s"`
	RelayWebhooks          bool          `envconfig:"SHOPFLOW_IDENTITY_RELAY_WEBHOOKS" default:"false"`
}

// ProviderEnabled reports whether calls to the provider backend API are possible.
func (i IdentityConfig) ProviderEnabled() bool {
	return strings.TrimSpace(i.SecretKey) != "" && strings.TrimSpace(i.APIURL) != ""
}

type EventingConfig struct {
	DeliveryIdempotencyTTL time.Duration `envconfig:"SHOPFLOW_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPFLOW_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOPFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOPFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOPFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	IdentityTopic        string `envconfig:"SHOPFLOW_PUBSUB_IDENTITY_TOPIC" default:"identity-events"`
	IdentitySubscription string `envconfig:"SHOPFLOW_PUBSUB_IDENTITY_SUBSCRIPTION"`
	MaxOutstanding       int    `envconfig:"SHOPFLOW_PUBSUB_MAX_OUTSTANDING" default:"10"`
	// Endpoint overrides the service endpoint, e.g. a local emulator.
	Endpoint string `envconfig:"SHOPFLOW_PUBSUB_ENDPOINT"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
