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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Identity     IdentityConfig
	CORS         CORSConfig
	Realtime     RealtimeConfig
	RateLimit    RateLimitConfig
	Idempotency  IdempotencyConfig
	Tasks        TasksConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Identity.Mode {
	case IdentityModeJWT:
		if c.JWT.Secret == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvJWTSecret, EnvIdentityMode, IdentityModeJWT)
		}
	case IdentityModeHeader:
		if c.App.IsProd() {
			return fmt.Errorf("%s=%s is not allowed in production", EnvIdentityMode, IdentityModeHeader)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvIdentityMode, c.Identity.Mode)
	}
	switch c.Idempotency.Backend {
	case IdempotencyBackendMemory:
	case IdempotencyBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s", EnvIdempotencyBackend, IdempotencyBackendRedis, EnvRedisURL)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvIdempotencyBackend, c.Idempotency.Backend)
	}
	if c.PubSub.Enabled() && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required when %s is set", EnvGCPProjectID, EnvPubSubRealtimeTopic)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"HUDDLE_APP_ENV" required:"true"`
	Port         string `envconfig:"HUDDLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HUDDLE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"HUDDLE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"HUDDLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"HUDDLE_DB_DSN"`
	Driver string `envconfig:"HUDDLE_DB_DRIVER" default:"sqlite"`

	Host     string `envconfig:"HUDDLE_DB_HOST"`
	Port     int    `envconfig:"HUDDLE_DB_PORT" default:"5432"`
	User     string `envconfig:"HUDDLE_DB_USER"`
	Password string `envconfig:"HUDDLE_DB_PASSWORD"`
	Name     string `envconfig:"HUDDLE_DB_NAME"`
	SSLMode  string `envconfig:"HUDDLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HUDDLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HUDDLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HUDDLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HUDDLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"HUDDLE_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"HUDDLE_REDIS_URL"`
	Address      string        `envconfig:"HUDDLE_REDIS_ADDR"`
	Password     string        `envconfig:"HUDDLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HUDDLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HUDDLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HUDDLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HUDDLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HUDDLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HUDDLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"HUDDLE_JWT_SECRET"`
	Issuer            string `envconfig:"HUDDLE_JWT_ISSUER" default:"huddle"`
	ExpirationMinutes int    `envconfig:"HUDDLE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type IdentityConfig struct {
	Mode          string `envconfig:"HUDDLE_IDENTITY_MODE" default:"jwt"`
	TrustedHeader string `envconfig:"HUDDLE_IDENTITY_HEADER" default:"X-User-Id"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"HUDDLE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type RealtimeConfig struct {
	MaxEvents      int           `envconfig:"HUDDLE_REALTIME_MAX_EVENTS" default:"1000"`
	PresenceTTL    time.Duration `envconfig:"HUDDLE_REALTIME_PRESENCE_TTL" default:"35s"`
	OutboxCapacity int           `envconfig:"HUDDLE_REALTIME_OUTBOX_CAPACITY" default:"100"`
	DraftLockTTL   time.Duration `envconfig:"HUDDLE_REALTIME_DRAFT_LOCK_TTL" default:"30s"`
	DraftIdleTTL   time.Duration `envconfig:"HUDDLE_REALTIME_DRAFT_IDLE_TTL" default:"168h"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"HUDDLE_RATE_LIMIT_WINDOW" default:"10s"`
	Max    int           `envconfig:"HUDDLE_RATE_LIMIT_MAX" default:"50"`
}

// Enabled reports whether the per-user request throttle is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Window > 0 && r.Max > 0
}

type IdempotencyConfig struct {
	TTL     time.Duration `envconfig:"HUDDLE_IDEMPOTENCY_TTL" default:"10m"`
	Backend string        `envconfig:"HUDDLE_IDEMPOTENCY_BACKEND" default:"memory"`
}

type TasksConfig struct {
	WIPLimitInProgress int `envconfig:"HUDDLE_TASKS_WIP_LIMIT_IN_PROGRESS" default:"5"`
	WIPLimitReview     int `envconfig:"HUDDLE_TASKS_WIP_LIMIT_REVIEW" default:"3"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"HUDDLE_CRON_INTERVAL" default:"1m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HUDDLE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HUDDLE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HUDDLE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RealtimeTopic string `envconfig:"HUDDLE_PUBSUB_REALTIME_TOPIC"`
}

// Enabled reports whether events should be fanned out through Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.RealtimeTopic) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HUDDLE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range postgresPartsEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
