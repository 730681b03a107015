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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Plans        PlansConfig
	Webhooks     WebhookConfig
	Imports      ImportConfig
	Cron         CronConfig
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
	Env          string   `envconfig:"CHURNGUARD_APP_ENV" required:"true"`
	Port         string   `envconfig:"CHURNGUARD_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"CHURNGUARD_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"CHURNGUARD_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"CHURNGUARD_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"CHURNGUARD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHURNGUARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"CHURNGUARD_DB_DSN"`

	LegacyHost     string `envconfig:"CHURNGUARD_DB_HOST"`
	LegacyPort     int    `envconfig:"CHURNGUARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHURNGUARD_DB_USER"`
	LegacyPassword string `envconfig:"CHURNGUARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHURNGUARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHURNGUARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHURNGUARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHURNGUARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHURNGUARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHURNGUARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CHURNGUARD_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHURNGUARD_REDIS_URL"`
	Address      string        `envconfig:"CHURNGUARD_REDIS_ADDR"`
	Password     string        `envconfig:"CHURNGUARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHURNGUARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHURNGUARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHURNGUARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHURNGUARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHURNGUARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHURNGUARD_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"CHURNGUARD_REDIS_KEY_PREFIX" default:"cg"`
}

// JWTConfig describes how tokens minted by the auth provider are verified.
type JWTConfig struct {
	Secret   string `envconfig:"CHURNGUARD_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"CHURNGUARD_JWT_ISSUER"`
	Audience string `envconfig:"CHURNGUARD_JWT_AUDIENCE" default:"authenticated"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHURNGUARD_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CHURNGUARD_STRIPE_API_KEY"`
	Secret string `envconfig:"CHURNGUARD_STRIPE_SECRET"`
	Env    string `envconfig:"CHURNGUARD_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PlansConfig maps provider price lookup keys to internal plan names.
type PlansConfig struct {
	LookupKeys map[string]string `envconfig:"CHURNGUARD_PLAN_LOOKUP_KEYS"`
}

type WebhookConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"CHURNGUARD_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	InFlightTTL     time.Duration `envconfig:"CHURNGUARD_WEBHOOK_INFLIGHT_TTL" default:"2m"`
	MaxApplyRetries uint64        `envconfig:"CHURNGUARD_WEBHOOK_MAX_APPLY_RETRIES" default:"3"`
	RetentionDays   int           `envconfig:"CHURNGUARD_WEBHOOK_RETENTION_DAYS" default:"90"`
}

type ImportConfig struct {
	BatchSize  int           `envconfig:"CHURNGUARD_IMPORT_BATCH_SIZE" default:"100"`
	Timeout    time.Duration `envconfig:"CHURNGUARD_IMPORT_TIMEOUT" default:"15m"`
	StaleAfter time.Duration `envconfig:"CHURNGUARD_IMPORT_STALE_AFTER" default:"1h"`
	MaxUpload  int64         `envconfig:"CHURNGUARD_IMPORT_MAX_UPLOAD_BYTES" default:"10485760"`
	// RateLimit caps import starts per user per RateWindow.
	RateLimit  int64         `envconfig:"CHURNGUARD_IMPORT_RATE_LIMIT" default:"5"`
	RateWindow time.Duration `envconfig:"CHURNGUARD_IMPORT_RATE_WINDOW" default:"1h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CHURNGUARD_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"CHURNGUARD_CRON_LOCK_TTL" default:"10m"`
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
