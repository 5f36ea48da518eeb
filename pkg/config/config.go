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
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Inventory    InventoryConfig
	Sweeper      SweeperConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Tracing      TracingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Inventory.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

// HTTPConfig shapes the API process's edge behaviour.
type HTTPConfig struct {
	CORSOrigins         []string      `envconfig:"STOREFRONT_HTTP_CORS_ORIGINS"`
	ReserveRateLimit    int           `envconfig:"STOREFRONT_HTTP_RESERVE_RATE_LIMIT" default:"120"`
	ReserveRateWindow   time.Duration `envconfig:"STOREFRONT_HTTP_RESERVE_RATE_WINDOW" default:"1m"`
	ShutdownGracePeriod time.Duration `envconfig:"STOREFRONT_HTTP_SHUTDOWN_GRACE" default:"15s"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"STOREFRONT_DB_LOCK_TIMEOUT" default:"3s"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
	// CheckSessions makes the auth middleware confirm the token's jti in Redis.
	CheckSessions bool `envconfig:"STOREFRONT_JWT_CHECK_SESSIONS" default:"true"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// InventoryConfig holds the reservation and allocation tunables.
type InventoryConfig struct {
	CartTTLMinutes    int           `envconfig:"STOREFRONT_INVENTORY_CART_TTL_MINUTES" default:"30"`
	MaxCartTTLMinutes int           `envconfig:"STOREFRONT_INVENTORY_MAX_CART_TTL_MINUTES" default:"120"`
	OrderTTLMinutes   int           `envconfig:"STOREFRONT_INVENTORY_ORDER_TTL_MINUTES" default:"15"`
	MaxBatchSize      int           `envconfig:"STOREFRONT_INVENTORY_MAX_BATCH_SIZE" default:"100"`
	LockRetries       int           `envconfig:"STOREFRONT_INVENTORY_LOCK_RETRIES" default:"3"`
	LockRetryBase     time.Duration `envconfig:"STOREFRONT_INVENTORY_LOCK_RETRY_BASE" default:"25ms"`
}

// CartTTL returns the default cart hold lifetime.
func (i InventoryConfig) CartTTL() time.Duration {
	return time.Duration(i.CartTTLMinutes) * time.Minute
}

// OrderTTL returns the default order hold lifetime.
func (i InventoryConfig) OrderTTL() time.Duration {
	return time.Duration(i.OrderTTLMinutes) * time.Minute
}

func (i InventoryConfig) validate() error {
	if i.CartTTLMinutes <= 0 || i.OrderTTLMinutes <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvInventoryCartTTL, EnvInventoryOrderTTL)
	}
	if i.MaxCartTTLMinutes < i.CartTTLMinutes {
		return fmt.Errorf("%s must be >= %s", EnvInventoryMaxCartTTL, EnvInventoryCartTTL)
	}
	if i.MaxBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvInventoryMaxBatch)
	}
	if i.LockRetries < 0 {
		return fmt.Errorf("%s cannot be negative", EnvInventoryLockRetries)
	}
	return nil
}

// SweeperConfig configures the cron worker that expires stale holds.
type SweeperConfig struct {
	Interval  time.Duration `envconfig:"STOREFRONT_SWEEPER_INTERVAL" default:"1m"`
	BatchSize int           `envconfig:"STOREFRONT_SWEEPER_BATCH_SIZE" default:"500"`
	LockTTL   time.Duration `envconfig:"STOREFRONT_SWEEPER_LOCK_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"STOREFRONT_PUBSUB_INVENTORY_TOPIC" default:"storefront-inventory-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type TracingConfig struct {
	Endpoint    string  `envconfig:"STOREFRONT_OTEL_EXPORTER_ENDPOINT"`
	Insecure    bool    `envconfig:"STOREFRONT_OTEL_EXPORTER_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"STOREFRONT_OTEL_SAMPLE_RATIO" default:"1"`
}

// Enabled reports whether an OTLP exporter endpoint was configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
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
