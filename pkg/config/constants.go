package config

import "time"

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"
	EnvCORS     = "STOREFRONT_CORS_ALLOWED_ORIGINS"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvShopifyFunctionsURL = "STOREFRONT_SHOPIFY_FUNCTIONS_URL"
	EnvShopifyAPIKey       = "STOREFRONT_SHOPIFY_API_KEY"

	EnvCartCallTimeout  = "STOREFRONT_CART_CALL_TIMEOUT"
	EnvCartPushDebounce = "STOREFRONT_CART_PUSH_DEBOUNCE"

	EnvPromotionTimezone         = "STOREFRONT_PROMOTION_TIMEZONE"
	EnvPromotionEvaluateInterval = "STOREFRONT_PROMOTION_EVALUATE_INTERVAL"
)

// maxPromotionEvaluateInterval bounds how stale the promotional window may get.
const maxPromotionEvaluateInterval = 60 * time.Second
