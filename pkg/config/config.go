package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Crypto       CryptoConfig
	QBO          QBOConfig
	Xero         XeroConfig
	Sync         SyncConfig
	Webhooks     WebhooksConfig
	OAuth        OAuthConfig
	CORS         CORSConfig
	Cron         CronConfig
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
	if _, err := cfg.Sync.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"PICKFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PICKFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PICKFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PICKFLOW_DB_DSN"`
	Driver string `envconfig:"PICKFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PICKFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"PICKFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PICKFLOW_DB_USER"`
	LegacyPassword string `envconfig:"PICKFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"PICKFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"PICKFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PICKFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PICKFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PICKFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PICKFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"PICKFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PICKFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PICKFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PICKFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CryptoConfig holds the secret used to derive the credential encryption key.
type CryptoConfig struct {
	TokenSecret string `envconfig:"PICKFLOW_TOKEN_ENCRYPTION_SECRET" required:"true"`
	TokenSalt   string `envconfig:"PICKFLOW_TOKEN_ENCRYPTION_SALT" default:"pickflow-token-store"`
}

type QBOConfig struct {
	ClientID      string        `envconfig:"PICKFLOW_QBO_CLIENT_ID"`
	ClientSecret  string        `envconfig:"PICKFLOW_QBO_CLIENT_SECRET"`
	RedirectURL   string        `envconfig:"PICKFLOW_QBO_REDIRECT_URL"`
	Env           string        `envconfig:"PICKFLOW_QBO_ENV" default:"sandbox"`
	BaseURL       string        `envconfig:"PICKFLOW_QBO_BASE_URL"`
	AuthURL       string        `envconfig:"PICKFLOW_QBO_AUTH_URL" default:"https://appcenter.intuit.com/connect/oauth2"`
	TokenURL      string        `envconfig:"PICKFLOW_QBO_TOKEN_URL" default:"https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"`
	MinorVersion  string        `envconfig:"PICKFLOW_QBO_MINOR_VERSION" default:"75"`
	PageSize      int           `envconfig:"PICKFLOW_QBO_PAGE_SIZE" default:"100"`
	VerifierToken string        `envconfig:"PICKFLOW_QBO_WEBHOOK_VERIFIER_TOKEN"`
	Timeout       time.Duration `envconfig:"PICKFLOW_QBO_TIMEOUT" default:"30s"`
}

// Environment returns the normalized QBO environment (sandbox/production).
func (q QBOConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(q.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type XeroConfig struct {
	ClientID     string        `envconfig:"PICKFLOW_XERO_CLIENT_ID"`
	ClientSecret string        `envconfig:"PICKFLOW_XERO_CLIENT_SECRET"`
	RedirectURL  string        `envconfig:"PICKFLOW_XERO_REDIRECT_URL"`
	BaseURL      string        `envconfig:"PICKFLOW_XERO_BASE_URL" default:"https://api.xero.com"`
	AuthURL      string        `envconfig:"PICKFLOW_XERO_AUTH_URL" default:"https://login.xero.com/identity/connect/authorize"`
	TokenURL     string        `envconfig:"PICKFLOW_XERO_TOKEN_URL" default:"https://identity.xero.com/connect/token"`
	Scopes       []string      `envconfig:"PICKFLOW_XERO_SCOPES" default:"offline_access,accounting.transactions,accounting.contacts,accounting.settings"`
	Timeout      time.Duration `envconfig:"PICKFLOW_XERO_TIMEOUT" default:"30s"`
}

type SyncConfig struct {
	CustomerBatchSize int           `envconfig:"PICKFLOW_SYNC_CUSTOMER_BATCH_SIZE" default:"10"`
	ReportingTimezone string        `envconfig:"PICKFLOW_SYNC_REPORTING_TIMEZONE" default:"Australia/Sydney"`
	RefreshTimeout    time.Duration `envconfig:"PICKFLOW_SYNC_TOKEN_REFRESH_TIMEOUT" default:"20s"`
	RefreshBuffer     time.Duration `envconfig:"PICKFLOW_SYNC_TOKEN_REFRESH_BUFFER" default:"5m"`
}

// Location resolves the reporting timezone used to normalise remote timestamps.
func (s SyncConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.ReportingTimezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading reporting timezone %q: %w", name, err)
	}
	return loc, nil
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"PICKFLOW_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	EventTimeout   time.Duration `envconfig:"PICKFLOW_WEBHOOK_EVENT_TIMEOUT" default:"30s"`
}

type OAuthConfig struct {
	StateTTL       time.Duration `envconfig:"PICKFLOW_OAUTH_STATE_TTL" default:"10m"`
	PostConnectURL string        `envconfig:"PICKFLOW_OAUTH_POST_CONNECT_URL" default:"/"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PICKFLOW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"PICKFLOW_CRON_INTERVAL" default:"15m"`
	CatalogInterval time.Duration `envconfig:"PICKFLOW_CRON_CATALOG_INTERVAL" default:"6h"`
	LockTTL         time.Duration `envconfig:"PICKFLOW_CRON_LOCK_TTL" default:"1h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PICKFLOW_AUTO_MIGRATE" default:"false"`
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
