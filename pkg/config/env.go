package config

// EnvPrefix scopes every environment variable the service reads.
const EnvPrefix = "HAULBOARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "HAULBOARD_DB_DSN"
	EnvDBHost = "HAULBOARD_DB_HOST"
	EnvDBUser = "HAULBOARD_DB_USER"
	EnvDBName = "HAULBOARD_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
