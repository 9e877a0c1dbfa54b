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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Orders       OrdersConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMOLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMOLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMOLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMOLINK_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"FARMOLINK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMOLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMOLINK_DB_DSN"`
	Driver string `envconfig:"FARMOLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMOLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMOLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMOLINK_DB_USER"`
	LegacyPassword string `envconfig:"FARMOLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMOLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMOLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMOLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMOLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMOLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMOLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Transient failures (lost connection, serialization, deadlock) are retried with backoff.
	RetryMaxAttempts int           `envconfig:"FARMOLINK_DB_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"FARMOLINK_DB_RETRY_BASE_DELAY" default:"100ms"`

	// Statements slower than this are logged at warn; zero disables the check.
	SlowQueryThreshold time.Duration `envconfig:"FARMOLINK_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMOLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMOLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FARMOLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMOLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMOLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMOLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMOLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMOLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMOLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMOLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMOLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMOLINK_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RateLimitConfig bounds mutating API calls per actor.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"FARMOLINK_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"FARMOLINK_RATE_LIMIT_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMOLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMOLINK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FARMOLINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"FARMOLINK_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMOLINK_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FARMOLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMOLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName     string `envconfig:"FARMOLINK_GCS_BUCKET_NAME" required:"true"`
	UploadMaxBytes int64  `envconfig:"FARMOLINK_GCS_UPLOAD_MAX_BYTES" default:"8388608"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"FARMOLINK_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription string `envconfig:"FARMOLINK_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMOLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMOLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMOLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// OrdersConfig holds the order-creation knobs: the duplicate-submission window
// and the commission rate applied when a pharmacy has none configured.
type OrdersConfig struct {
	DuplicateWindow       time.Duration `envconfig:"FARMOLINK_ORDERS_DUPLICATE_WINDOW" default:"45s"`
	DefaultCommissionRate string        `envconfig:"FARMOLINK_ORDERS_DEFAULT_COMMISSION_RATE" default:"10"`
}

func (o OrdersConfig) validate() error {
	if o.DuplicateWindow < 0 {
		return fmt.Errorf("%s must not be negative", EnvOrdersDuplicateWindow)
	}
	return nil
}

type SettlementConfig struct {
	// RequireReport restricts admin confirmation to months the pharmacy already reported.
	RequireReport bool `envconfig:"FARMOLINK_SETTLEMENT_REQUIRE_REPORT" default:"false"`
}

// MetricsConfig controls the scrape endpoint of the background workers. The
// API serves /metrics on its own router. An empty address disables it.
type MetricsConfig struct {
	Addr string `envconfig:"FARMOLINK_METRICS_ADDR" default:":9090"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"FARMOLINK_CRON_INTERVAL" default:"1h"`
	LockTTL                   time.Duration `envconfig:"FARMOLINK_CRON_LOCK_TTL" default:"10m"`
	NotificationRetentionDays int           `envconfig:"FARMOLINK_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetentionDays       int           `envconfig:"FARMOLINK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DeadLetterRetentionDays   int           `envconfig:"FARMOLINK_CRON_DLQ_RETENTION_DAYS" default:"90"`
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
