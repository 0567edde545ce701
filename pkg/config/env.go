package config

const EnvPrefix = "HUDDLE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	defaultSQLiteDSN = "file:huddle?mode=memory&cache=shared"
)

const (
	IdentityModeJWT    = "jwt"
	IdentityModeHeader = "header"

	IdempotencyBackendMemory = "memory"
	IdempotencyBackendRedis  = "redis"
)

const (
	EnvAppEnv   = "HUDDLE_APP_ENV"
	EnvPort     = "HUDDLE_APP_PORT"
	EnvDBDSN    = "HUDDLE_DB_DSN"
	EnvDBHost   = "HUDDLE_DB_HOST"
	EnvDBUser   = "HUDDLE_DB_USER"
	EnvDBName   = "HUDDLE_DB_NAME"
	EnvDBDriver = "HUDDLE_DB_DRIVER"
	EnvRedisURL = "HUDDLE_REDIS_URL"

	EnvJWTSecret    = "HUDDLE_JWT_SECRET"
	EnvIdentityMode = "HUDDLE_IDENTITY_MODE"

	EnvIdempotencyBackend = "HUDDLE_IDEMPOTENCY_BACKEND"
	EnvRealtimeMaxEvents  = "HUDDLE_REALTIME_MAX_EVENTS"
	EnvPresenceTTL        = "HUDDLE_REALTIME_PRESENCE_TTL"
	EnvCORSOrigins        = "HUDDLE_CORS_ALLOWED_ORIGINS"

	EnvGCPProjectID        = "HUDDLE_GCP_PROJECT_ID"
	EnvPubSubRealtimeTopic = "HUDDLE_PUBSUB_REALTIME_TOPIC"
)

var postgresPartsEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
