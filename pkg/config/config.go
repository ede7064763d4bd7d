package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	Stripe         StripeConfig
	Webhooks       WebhooksConfig
	Subscriptions  SubscriptionsConfig
	Metrics        MetricsConfig
	AdminRateLimit AdminRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Webhooks.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJWT reads only the JWT section, for tools that never touch the database.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LAZYDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"LAZYDROP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LAZYDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LAZYDROP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LAZYDROP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LAZYDROP_DB_DSN"`
	Driver string `envconfig:"LAZYDROP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LAZYDROP_DB_HOST"`
	LegacyPort     int    `envconfig:"LAZYDROP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LAZYDROP_DB_USER"`
	LegacyPassword string `envconfig:"LAZYDROP_DB_PASSWORD"`
	LegacyName     string `envconfig:"LAZYDROP_DB_NAME"`
	LegacySSLMode  string `envconfig:"LAZYDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LAZYDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LAZYDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LAZYDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LAZYDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LAZYDROP_REDIS_URL"`
	Address      string        `envconfig:"LAZYDROP_REDIS_ADDR"`
	Password     string        `envconfig:"LAZYDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"LAZYDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LAZYDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LAZYDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LAZYDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LAZYDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LAZYDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig guards the operator-only admin surface.
type JWTConfig struct {
	Secret            string `envconfig:"LAZYDROP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LAZYDROP_JWT_ISSUER" default:"lazydrop-billing"`
	ExpirationMinutes int    `envconfig:"LAZYDROP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LAZYDROP_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"LAZYDROP_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"LAZYDROP_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"LAZYDROP_STRIPE_ENV" default:"test"`
	PlusPriceID   string        `envconfig:"LAZYDROP_STRIPE_PLUS_PRICE_ID"`
	ProPriceID    string        `envconfig:"LAZYDROP_STRIPE_PRO_PRICE_ID"`
	Tolerance     time.Duration `envconfig:"LAZYDROP_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	// IgnoreAPIVersionMismatch accepts events rendered with an API version other than the SDK pin.
	IgnoreAPIVersionMismatch bool `envconfig:"LAZYDROP_STRIPE_IGNORE_API_VERSION_MISMATCH" default:"false"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// WebhooksConfig tunes the ledger sweepers and the retry policy.
type WebhooksConfig struct {
	MaxAttempts      int           `envconfig:"LAZYDROP_WEBHOOK_MAX_ATTEMPTS" default:"10"`
	BatchSize        int           `envconfig:"LAZYDROP_WEBHOOK_BATCH_SIZE" default:"25"`
	Lease            time.Duration `envconfig:"LAZYDROP_WEBHOOK_LEASE" default:"5m"`
	BackoffBase      time.Duration `envconfig:"LAZYDROP_WEBHOOK_BACKOFF_BASE" default:"1m"`
	BackoffCap       time.Duration `envconfig:"LAZYDROP_WEBHOOK_BACKOFF_CAP" default:"60m"`
	ReceivedInterval time.Duration `envconfig:"LAZYDROP_WEBHOOK_RECEIVED_INTERVAL" default:"10s"`
	RetryInterval    time.Duration `envconfig:"LAZYDROP_WEBHOOK_RETRY_INTERVAL" default:"60s"`
	StuckInterval    time.Duration `envconfig:"LAZYDROP_WEBHOOK_STUCK_INTERVAL" default:"60s"`
}

func (w WebhooksConfig) validate() error {
	if w.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvWebhookMaxAttempts)
	}
	if w.BatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvWebhookBatchSize)
	}
	if w.Lease <= 0 {
		return fmt.Errorf("%s must be positive", EnvWebhookLease)
	}
	return nil
}

type SubscriptionsConfig struct {
	DowngradeInterval time.Duration `envconfig:"LAZYDROP_SUBSCRIPTIONS_DOWNGRADE_INTERVAL" default:"10m"`
	DowngradeBatch    int           `envconfig:"LAZYDROP_SUBSCRIPTIONS_DOWNGRADE_BATCH" default:"200"`
	DowngradeLockTTL  time.Duration `envconfig:"LAZYDROP_SUBSCRIPTIONS_DOWNGRADE_LOCK_TTL" default:"9m"`
}

type MetricsConfig struct {
	Addr string `envconfig:"LAZYDROP_METRICS_ADDR" default:":9090"`
}

type AdminRateLimitConfig struct {
	Window time.Duration `envconfig:"LAZYDROP_ADMIN_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"LAZYDROP_ADMIN_RATE_LIMIT" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
