package config

const (
	EnvPrefix = "SHOPFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv  = "SHOPFLOW_APP_ENV"
	EnvAppPort = "SHOPFLOW_APP_PORT"
	EnvCORS    = "SHOPFLOW_CORS_ORIGINS"

	EnvDBDSN  = "SHOPFLOW_DB_DSN"
	EnvDBHost = "SHOPFLOW_DB_HOST"
	EnvDBUser = "SHOPFLOW_DB_USER"
	EnvDBName = "SHOPFLOW_DB_NAME"

	EnvRedisURL = "SHOPFLOW_REDIS_URL"

	EnvSessionSecret = "SHOPFLOW_SESSION_SECRET"
	EnvSessionIssuer = "SHOPFLOW_SESSION_ISSUER"

	EnvIdentitySecretKey     = "SHOPFLOW_IDENTITY_SECRET_KEY"
	EnvIdentityWebhookSecret = "SHOPFLOW_IDENTITY_WEBHOOK_SECRET"

	EnvGCPProjectID        = "SHOPFLOW_GCP_PROJECT_ID"
	EnvPubSubIdentitySub   = "SHOPFLOW_PUBSUB_IDENTITY_SUBSCRIPTION"
	EnvPubSubIdentityTopic = "SHOPFLOW_PUBSUB_IDENTITY_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
