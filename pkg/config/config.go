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
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	PayDunya     PayDunyaConfig
	Wave         WaveConfig
	Marketplace  MarketplaceConfig
	Payouts      PayoutsConfig
	RateLimit    RateLimitConfig
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
	Env          string   `envconfig:"FIELDBOOK_APP_ENV" required:"true"`
	Port         string   `envconfig:"FIELDBOOK_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FIELDBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FIELDBOOK_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FIELDBOOK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FIELDBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FIELDBOOK_DB_DSN"`
	Driver string `envconfig:"FIELDBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FIELDBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"FIELDBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FIELDBOOK_DB_USER"`
	LegacyPassword string `envconfig:"FIELDBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FIELDBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FIELDBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FIELDBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FIELDBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FIELDBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FIELDBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FIELDBOOK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FIELDBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"FIELDBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FIELDBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FIELDBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FIELDBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FIELDBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FIELDBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FIELDBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FIELDBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FIELDBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FIELDBOOK_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FIELDBOOK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"FIELDBOOK_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FIELDBOOK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	MarketplaceTopic string `envconfig:"FIELDBOOK_PUBSUB_MARKETPLACE_TOPIC" default:"fb-marketplace-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FIELDBOOK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FIELDBOOK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FIELDBOOK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FIELDBOOK_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey string `envconfig:"FIELDBOOK_STRIPE_API_KEY"`
	Secret string `envconfig:"FIELDBOOK_STRIPE_SECRET"`
	Env    string `envconfig:"FIELDBOOK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether enough Stripe credentials were supplied to wire the client.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type PayDunyaConfig struct {
	MasterKey  string `envconfig:"FIELDBOOK_PAYDUNYA_MASTER_KEY"`
	PrivateKey string `envconfig:"FIELDBOOK_PAYDUNYA_PRIVATE_KEY"`
	PublicKey  string `envconfig:"FIELDBOOK_PAYDUNYA_PUBLIC_KEY"`
	Token      string `envconfig:"FIELDBOOK_PAYDUNYA_TOKEN"`
	Mode       string `envconfig:"FIELDBOOK_PAYDUNYA_MODE" default:"test"`
	BaseURL    string `envconfig:"FIELDBOOK_PAYDUNYA_BASE_URL"`
	StoreName  string `envconfig:"FIELDBOOK_PAYDUNYA_STORE_NAME" default:"FieldBook"`
}

func (p PayDunyaConfig) Enabled() bool {
	return strings.TrimSpace(p.MasterKey) != "" && strings.TrimSpace(p.PrivateKey) != "" && strings.TrimSpace(p.Token) != ""
}

type WaveConfig struct {
	APIKey        string `envconfig:"FIELDBOOK_WAVE_API_KEY"`
	WebhookSecret string `envconfig:"FIELDBOOK_WAVE_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"FIELDBOOK_WAVE_BASE_URL" default:"https://api.wave.com"`
}

func (w WaveConfig) Enabled() bool {
	return strings.TrimSpace(w.APIKey) != "" && strings.TrimSpace(w.WebhookSecret) != ""
}

type MarketplaceConfig struct {
	DefaultProvider string        `envconfig:"FIELDBOOK_MARKETPLACE_DEFAULT_PROVIDER" default:"paydunya"`
	CallbackURL     string        `envconfig:"FIELDBOOK_MARKETPLACE_CALLBACK_URL"`
	ReturnURL       string        `envconfig:"FIELDBOOK_MARKETPLACE_RETURN_URL"`
	CancelURL       string        `envconfig:"FIELDBOOK_MARKETPLACE_CANCEL_URL"`
	ProviderTimeout time.Duration `envconfig:"FIELDBOOK_MARKETPLACE_PROVIDER_TIMEOUT" default:"15s"`
	Currency        string        `envconfig:"FIELDBOOK_MARKETPLACE_CURRENCY" default:"XOF"`
}

type PayoutsConfig struct {
	ChannelTimeout        time.Duration `envconfig:"FIELDBOOK_PAYOUT_CHANNEL_TIMEOUT" default:"20s"`
	ClaimLease            time.Duration `envconfig:"FIELDBOOK_PAYOUT_CLAIM_LEASE" default:"2m"`
	BackoffBase           time.Duration `envconfig:"FIELDBOOK_PAYOUT_BACKOFF_BASE" default:"30s"`
	BackoffCap            time.Duration `envconfig:"FIELDBOOK_PAYOUT_BACKOFF_CAP" default:"1h"`
	MaxAttempts           int           `envconfig:"FIELDBOOK_PAYOUT_MAX_ATTEMPTS" default:"5"`
	SweepInterval         time.Duration `envconfig:"FIELDBOOK_PAYOUT_SWEEP_INTERVAL" default:"30s"`
	SweepBatch            int           `envconfig:"FIELDBOOK_PAYOUT_SWEEP_BATCH" default:"100"`
	OrangeMoneyWithdrawal string        `envconfig:"FIELDBOOK_PAYOUT_ORANGE_MONEY_MODE" default:"orange-money-senegal"`
}

// RateLimitConfig throttles checkout creation per client IP and per caller.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"FIELDBOOK_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"FIELDBOOK_RATE_LIMIT_IP" default:"60"`
	UserLimit int           `envconfig:"FIELDBOOK_RATE_LIMIT_USER" default:"10"`
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
