package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvInventoryCartTTL     = "STOREFRONT_INVENTORY_CART_TTL_MINUTES"
	EnvInventoryMaxCartTTL  = "STOREFRONT_INVENTORY_MAX_CART_TTL_MINUTES"
	EnvInventoryOrderTTL    = "STOREFRONT_INVENTORY_ORDER_TTL_MINUTES"
	EnvInventoryMaxBatch    = "STOREFRONT_INVENTORY_MAX_BATCH_SIZE"
	EnvInventoryLockRetries = "STOREFRONT_INVENTORY_LOCK_RETRIES"

	EnvSweeperInterval = "STOREFRONT_SWEEPER_INTERVAL"
	EnvPubSubInventory = "STOREFRONT_PUBSUB_INVENTORY_TOPIC"
	EnvGCPProjectID    = "STOREFRONT_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
