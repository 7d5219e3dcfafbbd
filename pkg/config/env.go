package config

const EnvPrefix = "FIELDBOOK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "FIELDBOOK_APP_ENV"
	EnvPort     = "FIELDBOOK_APP_PORT"
	EnvLogLevel = "FIELDBOOK_LOG_LEVEL"

	EnvDBDSN     = "FIELDBOOK_DB_DSN"
	EnvDBDriver  = "FIELDBOOK_DB_DRIVER"
	EnvDBHost    = "FIELDBOOK_DB_HOST"
	EnvDBPort    = "FIELDBOOK_DB_PORT"
	EnvDBUser    = "FIELDBOOK_DB_USER"
	EnvDBPass    = "FIELDBOOK_DB_PASSWORD"
	EnvDBName    = "FIELDBOOK_DB_NAME"
	EnvDBSSLMode = "FIELDBOOK_DB_SSLMODE"

	EnvRedisURL = "FIELDBOOK_REDIS_URL"

	EnvJWTSecret  = "FIELDBOOK_JWT_SECRET"
	EnvJWTIssuer  = "FIELDBOOK_JWT_ISSUER"
	EnvJWTExpMins = "FIELDBOOK_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID           = "FIELDBOOK_GCP_PROJECT_ID"
	EnvPubSubMarketplaceTopic = "FIELDBOOK_PUBSUB_MARKETPLACE_TOPIC"

	EnvStripeAPIKey = "FIELDBOOK_STRIPE_API_KEY"
	EnvStripeSecret = "FIELDBOOK_STRIPE_SECRET"

	EnvPayDunyaMasterKey  = "FIELDBOOK_PAYDUNYA_MASTER_KEY"
	EnvPayDunyaPrivateKey = "FIELDBOOK_PAYDUNYA_PRIVATE_KEY"
	EnvPayDunyaToken      = "FIELDBOOK_PAYDUNYA_TOKEN"

	EnvWaveAPIKey        = "FIELDBOOK_WAVE_API_KEY"
	EnvWaveWebhookSecret = "FIELDBOOK_WAVE_WEBHOOK_SECRET"

	EnvMarketplaceDefaultProvider = "FIELDBOOK_MARKETPLACE_DEFAULT_PROVIDER"
	EnvPayoutBackoffBase          = "FIELDBOOK_PAYOUT_BACKOFF_BASE"
	EnvPayoutMaxAttempts          = "FIELDBOOK_PAYOUT_MAX_ATTEMPTS"
)

// legacyDBEnvVars must all be present when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
