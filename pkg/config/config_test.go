package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "prod" || !cfg.App.IsProd() {
		t.Fatalf("expected App.Env to be prod, got %q", cfg.App.Env)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected Redis URL: %q", cfg.Redis.URL)
	}
	if cfg.Shopify.FunctionsURL != "https://functions.example.com/api" {
		t.Fatalf("unexpected functions url %q", cfg.Shopify.FunctionsURL)
	}
	if got := cfg.Cart.CallTimeout; got != 8*time.Second {
		t.Fatalf("expected default call timeout 8s, got %v", got)
	}
	if got := cfg.Cart.PushDebounce; got != 150*time.Millisecond {
		t.Fatalf("expected default debounce 150ms, got %v", got)
	}
	if got := cfg.JWT.TokenTTL(); got != 30*24*time.Hour {
		t.Fatalf("expected 30 day token ttl, got %v", got)
	}
	if cfg.Promotion.Location() != time.UTC {
		t.Fatalf("expected UTC promotion location")
	}
}

func TestLoad_ClampsEvaluateInterval(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPromotionEvaluateInterval, "5m")
	t.Setenv(EnvPromotionTimezone, "America/New_York")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Promotion.EvaluateInterval != time.Minute {
		t.Fatalf("expected interval clamped to 1m, got %v", cfg.Promotion.EvaluateInterval)
	}
	if cfg.Promotion.Location().String() != "America/New_York" {
		t.Fatalf("unexpected location %s", cfg.Promotion.Location())
	}
}

func TestLoad_RejectsBadFunctionsURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvShopifyFunctionsURL, "functions.example.com")

	if _, err := Load(); err == nil {
		t.Fatal("expected schemeless functions url to be rejected")
	}
}

func TestLoad_ParsesCORSOrigins(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCORS, "https://shop.example.com,https://m.shop.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if len(cfg.App.CORSAllowedOrigins) != 2 || cfg.App.CORSAllowedOrigins[1] != "https://m.shop.example.com" {
		t.Fatalf("unexpected origins %v", cfg.App.CORSAllowedOrigins)
	}
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPromotionTimezone, "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown timezone to be rejected")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "prod")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvJWTSecret, "secret")
	t.Setenv(EnvJWTIssuer, "storefront")
	t.Setenv(EnvShopifyFunctionsURL, "https://functions.example.com/api")
}
