package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Shopify   ShopifyConfig
	Cart      CartConfig
	Promotion PromotionConfig
	RateLimit RateLimitConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Shopify.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Promotion.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"43200"`
}

// TokenTTL returns the device token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// ShopifyConfig points at the cloud functions wrapping the Storefront/Admin APIs.
type ShopifyConfig struct {
	FunctionsURL string        `envconfig:"STOREFRONT_SHOPIFY_FUNCTIONS_URL" required:"true"`
	APIKey       string        `envconfig:"STOREFRONT_SHOPIFY_API_KEY"`
	HTTPTimeout  time.Duration `envconfig:"STOREFRONT_SHOPIFY_HTTP_TIMEOUT" default:"10s"`
}

func (s ShopifyConfig) validate() error {
	u, err := url.Parse(strings.TrimSpace(s.FunctionsURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvShopifyFunctionsURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvShopifyFunctionsURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", EnvShopifyFunctionsURL)
	}
	return nil
}

type CartConfig struct {
	CallTimeout   time.Duration `envconfig:"STOREFRONT_CART_CALL_TIMEOUT" default:"8s"`
	PushDebounce  time.Duration `envconfig:"STOREFRONT_CART_PUSH_DEBOUNCE" default:"150ms"`
	EngineIdleTTL time.Duration `envconfig:"STOREFRONT_CART_ENGINE_IDLE_TTL" default:"30m"`
	CartIDTTL     time.Duration `envconfig:"STOREFRONT_CART_ID_TTL" default:"720h"`
}

type PromotionConfig struct {
	Timezone         string        `envconfig:"STOREFRONT_PROMOTION_TIMEZONE" default:"UTC"`
	EvaluateInterval time.Duration `envconfig:"STOREFRONT_PROMOTION_EVALUATE_INTERVAL" default:"30s"`
	RefreshInterval  time.Duration `envconfig:"STOREFRONT_PROMOTION_REFRESH_INTERVAL" default:"15m"`

	location *time.Location
}

// Location returns the zone used to expand date-only promotion bounds.
func (p PromotionConfig) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

func (p *PromotionConfig) normalize() error {
	loc, err := time.LoadLocation(strings.TrimSpace(p.Timezone))
	if err != nil {
		return fmt.Errorf("loading %s: %w", EnvPromotionTimezone, err)
	}
	p.location = loc
	if p.EvaluateInterval <= 0 || p.EvaluateInterval > maxPromotionEvaluateInterval {
		p.EvaluateInterval = maxPromotionEvaluateInterval
	}
	if p.RefreshInterval < 0 {
		p.RefreshInterval = 0
	}
	return nil
}

type RateLimitConfig struct {
	SessionWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_SESSION_WINDOW" default:"1m"`
	SessionLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_SESSION_LIMIT" default:"30"`
}

type CronConfig struct {
	SweepEnabled bool `envconfig:"STOREFRONT_CRON_SWEEP_ENABLED" default:"true"`
}
