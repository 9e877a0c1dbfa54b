package config

const (
	EnvPrefix = "FARMOLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FARMOLINK_APP_ENV"
	EnvPort     = "FARMOLINK_APP_PORT"
	EnvLogLevel = "FARMOLINK_LOG_LEVEL"

	EnvDBDSN  = "FARMOLINK_DB_DSN"
	EnvDBHost = "FARMOLINK_DB_HOST"
	EnvDBUser = "FARMOLINK_DB_USER"
	EnvDBName = "FARMOLINK_DB_NAME"

	EnvRedisURL = "FARMOLINK_REDIS_URL"

	EnvJWTSecret  = "FARMOLINK_JWT_SECRET"
	EnvJWTIssuer  = "FARMOLINK_JWT_ISSUER"
	EnvJWTExpMins = "FARMOLINK_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "FARMOLINK_GCP_PROJECT_ID"
	EnvGCSBucket    = "FARMOLINK_GCS_BUCKET_NAME"

	EnvPubSubDomainTopic = "FARMOLINK_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub   = "FARMOLINK_PUBSUB_DOMAIN_SUBSCRIPTION"

	EnvOrdersDuplicateWindow = "FARMOLINK_ORDERS_DUPLICATE_WINDOW"
	EnvOrdersCommissionRate  = "FARMOLINK_ORDERS_DEFAULT_COMMISSION_RATE"
	EnvSettlementRequire     = "FARMOLINK_SETTLEMENT_REQUIRE_REPORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
