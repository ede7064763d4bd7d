package config

const (
	EnvPrefix = "LAZYDROP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "LAZYDROP_APP_ENV"
	EnvPort     = "LAZYDROP_APP_PORT"
	EnvLogLevel = "LAZYDROP_LOG_LEVEL"

	EnvDBDSN    = "LAZYDROP_DB_DSN"
	EnvDBDriver = "LAZYDROP_DB_DRIVER"
	EnvDBHost   = "LAZYDROP_DB_HOST"
	EnvDBUser   = "LAZYDROP_DB_USER"
	EnvDBName   = "LAZYDROP_DB_NAME"

	EnvRedisURL = "LAZYDROP_REDIS_URL"

	EnvJWTSecret  = "LAZYDROP_JWT_SECRET"
	EnvJWTIssuer  = "LAZYDROP_JWT_ISSUER"
	EnvJWTExpMins = "LAZYDROP_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey        = "LAZYDROP_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "LAZYDROP_STRIPE_WEBHOOK_SECRET"
	EnvStripePlusPriceID   = "LAZYDROP_STRIPE_PLUS_PRICE_ID"
	EnvStripeProPriceID    = "LAZYDROP_STRIPE_PRO_PRICE_ID"

	EnvWebhookMaxAttempts = "LAZYDROP_WEBHOOK_MAX_ATTEMPTS"
	EnvWebhookBatchSize   = "LAZYDROP_WEBHOOK_BATCH_SIZE"
	EnvWebhookLease       = "LAZYDROP_WEBHOOK_LEASE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
