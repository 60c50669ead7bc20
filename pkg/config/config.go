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
	Bank         BankConfig
	Sweep        SweepConfig
	RateLimit    RateLimitConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HAULBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"HAULBOARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HAULBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HAULBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HAULBOARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HAULBOARD_DB_DSN"`
	Driver string `envconfig:"HAULBOARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HAULBOARD_DB_HOST"`
	LegacyPort     int    `envconfig:"HAULBOARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HAULBOARD_DB_USER"`
	LegacyPassword string `envconfig:"HAULBOARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"HAULBOARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"HAULBOARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HAULBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HAULBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HAULBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HAULBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HAULBOARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HAULBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"HAULBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"HAULBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HAULBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HAULBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HAULBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HAULBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HAULBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BankConfig controls the shared bank ledger account.
type BankConfig struct {
	OpeningBalance int64 `envconfig:"HAULBOARD_BANK_OPENING_BALANCE" default:"1000000"`
}

// SweepConfig controls the contract expiry sweep worker.
type SweepConfig struct {
	Interval time.Duration `envconfig:"HAULBOARD_SWEEP_INTERVAL" default:"10m"`
	LockTTL  time.Duration `envconfig:"HAULBOARD_SWEEP_LOCK_TTL" default:"30m"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"HAULBOARD_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int64         `envconfig:"HAULBOARD_RATE_LIMIT_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HAULBOARD_AUTO_MIGRATE" default:"false"`
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
