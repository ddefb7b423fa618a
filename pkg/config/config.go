package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Config is everything a server process reads from SWEETSHOP_* variables.
type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Inventory     InventoryConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
}

// Load parses the environment, fills in derived values and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	check := func(ok bool, msg string) {
		if !ok {
			err = multierr.Append(err, errors.New(msg))
		}
	}
	check(c.JWT.TTL() > 0, EnvJWTExpMins+" must be positive")
	check(c.Inventory.LowStockThreshold >= 0, EnvLowStockThreshold+" cannot be negative")
	check(c.Outbox.MaxAttempts > 0, "SWEETSHOP_OUTBOX_MAX_ATTEMPTS must be positive")
	check(c.Outbox.BatchSize > 0, "SWEETSHOP_OUTBOX_PUBLISH_BATCH_SIZE must be positive")
	check(c.Outbox.RetentionDays > 0, "SWEETSHOP_OUTBOX_RETENTION_DAYS must be positive")
	if c.App.IsProd() {
		check(len(c.JWT.Secret) >= 32, EnvJWTSecret+" must be at least 32 bytes in prod")
		check(!c.DB.IsSQLite(), "the sqlite driver is not allowed in prod")
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"SWEETSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"SWEETSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SWEETSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SWEETSHOP_LOG_WARN_STACK" default:"false"`

	ReadTimeout  time.Duration `envconfig:"SWEETSHOP_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SWEETSHOP_HTTP_WRITE_TIMEOUT" default:"30s"`

	CORSOrigins []string `envconfig:"SWEETSHOP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool { return strings.EqualFold(a.Env, AppEnvDev) }

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// ServiceConfig names the process kind in logs and metrics.
type ServiceConfig struct {
	Kind string `envconfig:"SWEETSHOP_SERVICE_KIND" default:"api"`
}

// DBConfig takes either a full DSN or, for postgres only, the individual connection parts.
type DBConfig struct {
	DSN    string `envconfig:"SWEETSHOP_DB_DSN"`
	Driver string `envconfig:"SWEETSHOP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SWEETSHOP_DB_HOST"`
	Port     int    `envconfig:"SWEETSHOP_DB_PORT" default:"5432"`
	User     string `envconfig:"SWEETSHOP_DB_USER"`
	Password string `envconfig:"SWEETSHOP_DB_PASSWORD"`
	Name     string `envconfig:"SWEETSHOP_DB_NAME"`
	SSLMode  string `envconfig:"SWEETSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SWEETSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SWEETSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SWEETSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SWEETSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"SWEETSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SWEETSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"SWEETSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SWEETSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SWEETSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SWEETSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SWEETSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SWEETSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SWEETSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SWEETSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SWEETSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SWEETSHOP_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL is the access token lifetime, zero when unset.
func (j JWTConfig) TTL() time.Duration {
	return time.Duration(max(j.ExpirationMinutes, 0)) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SWEETSHOP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SWEETSHOP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SWEETSHOP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SWEETSHOP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SWEETSHOP_ARGON_KEY_LEN" default:"32"`
}

// AuthRateLimitConfig bounds login and registration attempts per client IP and per email.
type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"SWEETSHOP_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SWEETSHOP_AUTO_MIGRATE" default:"false"`
}

type InventoryConfig struct {
	LowStockThreshold int           `envconfig:"SWEETSHOP_LOW_STOCK_THRESHOLD" default:"10"`
	LowStockInterval  time.Duration `envconfig:"SWEETSHOP_LOW_STOCK_INTERVAL" default:"1h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SWEETSHOP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	InventoryTopic        string `envconfig:"SWEETSHOP_PUBSUB_INVENTORY_TOPIC" default:"sweetshop-inventory-events"`
	OrdersTopic           string `envconfig:"SWEETSHOP_PUBSUB_ORDERS_TOPIC" default:"sweetshop-order-events"`
	InventorySubscription string `envconfig:"SWEETSHOP_PUBSUB_INVENTORY_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SWEETSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SWEETSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SWEETSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SWEETSHOP_OUTBOX_RETENTION_DAYS" default:"30"`

	ProcessedEventTTL time.Duration `envconfig:"SWEETSHOP_CONSUMER_PROCESSED_TTL" default:"168h"`
}
