package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces all environment variables consumed by the service.
	EnvPrefix = "MODSTR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MODSTR_DB_DSN"
	EnvDBHost = "MODSTR_DB_HOST"
	EnvDBUser = "MODSTR_DB_USER"
	EnvDBName = "MODSTR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gemini       GeminiConfig
	Pipeline     PipelineConfig
	Usage        UsageConfig
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
	Env          string   `envconfig:"MODSTR_APP_ENV" required:"true"`
	Port         string   `envconfig:"MODSTR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MODSTR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MODSTR_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MODSTR_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MODSTR_DB_DSN"`
	Driver string `envconfig:"MODSTR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MODSTR_DB_HOST"`
	LegacyPort     int    `envconfig:"MODSTR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MODSTR_DB_USER"`
	LegacyPassword string `envconfig:"MODSTR_DB_PASSWORD"`
	LegacyName     string `envconfig:"MODSTR_DB_NAME"`
	LegacySSLMode  string `envconfig:"MODSTR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MODSTR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MODSTR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MODSTR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MODSTR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MODSTR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MODSTR_REDIS_ADDR"`
	Password     string        `envconfig:"MODSTR_REDIS_PASSWORD"`
	DB           int           `envconfig:"MODSTR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MODSTR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MODSTR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MODSTR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MODSTR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MODSTR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MODSTR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MODSTR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MODSTR_JWT_EXPIRATION_MINUTES" default:"1440"`
}

type GeminiConfig struct {
	APIKey  string        `envconfig:"MODSTR_GEMINI_API_KEY" required:"true"`
	Model   string        `envconfig:"MODSTR_GEMINI_MODEL" default:"gemini-2.0-flash"`
	BaseURL string        `envconfig:"MODSTR_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout time.Duration `envconfig:"MODSTR_GEMINI_TIMEOUT" default:"120s"`
}

type PipelineConfig struct {
	PollInterval        time.Duration `envconfig:"MODSTR_PIPELINE_POLL_INTERVAL" default:"500ms"`
	RateLimitBackoff    time.Duration `envconfig:"MODSTR_PIPELINE_RATE_LIMIT_BACKOFF" default:"20s"`
	ClassifyTokenBudget int           `envconfig:"MODSTR_PIPELINE_CLASSIFY_TOKEN_BUDGET" default:"64"`
	ExtractTokenBudget  int           `envconfig:"MODSTR_PIPELINE_EXTRACT_TOKEN_BUDGET" default:"8192"`
	UploadFailureChance float64       `envconfig:"MODSTR_PIPELINE_UPLOAD_FAILURE_CHANCE" default:"0.02"`
}

type UsageConfig struct {
	ResetCheckInterval time.Duration `envconfig:"MODSTR_USAGE_RESET_CHECK_INTERVAL" default:"60s"`
	DefaultPlanID      string        `envconfig:"MODSTR_USAGE_DEFAULT_PLAN_ID" default:"free"`
}

type RateLimitConfig struct {
	RequestsPerWindow int           `envconfig:"MODSTR_RATE_LIMIT_REQUESTS" default:"120"`
	Window            time.Duration `envconfig:"MODSTR_RATE_LIMIT_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MODSTR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MODSTR_AUTO_MIGRATE" default:"false"`
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
