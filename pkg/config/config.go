package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Stripe        StripeConfig
	Subscription  SubscriptionConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"TASKHIVE_APP_ENV" required:"true"`
	Port           string   `envconfig:"TASKHIVE_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"TASKHIVE_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"TASKHIVE_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"TASKHIVE_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// FrontendBaseURL returns the first allowed origin, used to build default
// checkout redirect and portal return URLs.
func (a AppConfig) FrontendBaseURL() string {
	if len(a.AllowedOrigins) == 0 {
		return ""
	}
	return strings.TrimRight(a.AllowedOrigins[0], "/")
}

type DBConfig struct {
	DSN string `envconfig:"TASKHIVE_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"TASKHIVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TASKHIVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TASKHIVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TASKHIVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TASKHIVE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"TASKHIVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TASKHIVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TASKHIVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TASKHIVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TASKHIVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TASKHIVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TASKHIVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TASKHIVE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TASKHIVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TASKHIVE_JWT_EXPIRATION_MINUTES" default:"30"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TASKHIVE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TASKHIVE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TASKHIVE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TASKHIVE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TASKHIVE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"TASKHIVE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"TASKHIVE_STRIPE_API_KEY" required:"true"`
	WebhookSecret  string        `envconfig:"TASKHIVE_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env            string        `envconfig:"TASKHIVE_STRIPE_ENV" default:"test"`
	PremiumPriceID string        `envconfig:"TASKHIVE_STRIPE_PREMIUM_PRICE_ID" required:"true"`
	CallTimeout    time.Duration `envconfig:"TASKHIVE_STRIPE_CALL_TIMEOUT" default:"10s"`
}

type SubscriptionConfig struct {
	FreeTierTodoLimit int           `envconfig:"TASKHIVE_FREE_TIER_TODO_LIMIT" default:"5"`
	WebhookGuardTTL   time.Duration `envconfig:"TASKHIVE_WEBHOOK_GUARD_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TASKHIVE_AUTO_MIGRATE" default:"false"`
}
