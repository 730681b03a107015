package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "CHURNGUARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "CHURNGUARD_APP_ENV"
	EnvPort         = "CHURNGUARD_APP_PORT"
	EnvLogLevel     = "CHURNGUARD_LOG_LEVEL"
	EnvLogFormat    = "CHURNGUARD_LOG_FORMAT"
	EnvCORSOrigins  = "CHURNGUARD_CORS_ALLOWED_ORIGINS"
	EnvDBDSN        = "CHURNGUARD_DB_DSN"
	EnvDBHost       = "CHURNGUARD_DB_HOST"
	EnvDBUser       = "CHURNGUARD_DB_USER"
	EnvDBName       = "CHURNGUARD_DB_NAME"
	EnvRedisURL     = "CHURNGUARD_REDIS_URL"
	EnvJWTSecret    = "CHURNGUARD_JWT_SECRET"
	EnvJWTIssuer    = "CHURNGUARD_JWT_ISSUER"
	EnvJWTAudience  = "CHURNGUARD_JWT_AUDIENCE"
	EnvStripeAPIKey = "CHURNGUARD_STRIPE_API_KEY"
	EnvStripeSecret = "CHURNGUARD_STRIPE_SECRET"
	EnvStripeEnv    = "CHURNGUARD_STRIPE_ENV"
	EnvPlanKeys     = "CHURNGUARD_PLAN_LOOKUP_KEYS"
	EnvAutoMigrate  = "CHURNGUARD_AUTO_MIGRATE"
	EnvImportBatch  = "CHURNGUARD_IMPORT_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
