package config

const EnvPrefix = "SWEETSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "SWEETSHOP_APP_ENV"
	EnvPort     = "SWEETSHOP_APP_PORT"
	EnvLogLevel = "SWEETSHOP_LOG_LEVEL"

	EnvDBDSN    = "SWEETSHOP_DB_DSN"
	EnvDBDriver = "SWEETSHOP_DB_DRIVER"
	EnvDBHost   = "SWEETSHOP_DB_HOST"
	EnvDBPort   = "SWEETSHOP_DB_PORT"
	EnvDBUser   = "SWEETSHOP_DB_USER"
	EnvDBPass   = "SWEETSHOP_DB_PASSWORD"
	EnvDBName   = "SWEETSHOP_DB_NAME"

	EnvRedisURL = "SWEETSHOP_REDIS_URL"

	EnvJWTSecret  = "SWEETSHOP_JWT_SECRET"
	EnvJWTIssuer  = "SWEETSHOP_JWT_ISSUER"
	EnvJWTExpMins = "SWEETSHOP_JWT_EXPIRATION_MINUTES"

	EnvLowStockThreshold = "SWEETSHOP_LOW_STOCK_THRESHOLD"
	EnvPubSubInventory   = "SWEETSHOP_PUBSUB_INVENTORY_TOPIC"
)
