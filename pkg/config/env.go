package config

const (
	EnvPrefix = "PICKFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "PICKFLOW_APP_ENV"
	EnvPort         = "PICKFLOW_APP_PORT"
	EnvDBDSN        = "PICKFLOW_DB_DSN"
	EnvDBHost       = "PICKFLOW_DB_HOST"
	EnvDBUser       = "PICKFLOW_DB_USER"
	EnvDBName       = "PICKFLOW_DB_NAME"
	EnvDBPassword   = "PICKFLOW_DB_PASSWORD"
	EnvRedisURL     = "PICKFLOW_REDIS_URL"
	EnvJWTSecret    = "PICKFLOW_JWT_SECRET"
	EnvJWTIssuer    = "PICKFLOW_JWT_ISSUER"
	EnvTokenSecret  = "PICKFLOW_TOKEN_ENCRYPTION_SECRET"
	EnvSyncTimezone = "PICKFLOW_SYNC_REPORTING_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
