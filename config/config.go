// Package config loads service settings from the environment (and .env when present).
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Analytics data sources.
const (
	SourceMaterialized = "materialized"
	SourceLive         = "live"
)

type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	GatewayToken   string
	ServiceToken   string
	AllowedOrigins string

	RedisURL       string
	ReportCacheTTL time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	AnalyticsSource         string
	AnalyticsSnapshot       bool
	AnalyticsSectionTimeout time.Duration
	ViewRefreshInterval     time.Duration

	RollbarToken  string
	PostHogAPIKey string

	R2 R2Config

	ProfileSyncURL      string
	ProfileSyncInterval time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether attachment uploads can be served.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "5200")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("REPORT_CACHE_TTL", 5*time.Minute)
	v.SetDefault("RATE_LIMIT_MAX", 120)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("ANALYTICS_SOURCE", SourceMaterialized)
	v.SetDefault("ANALYTICS_SNAPSHOT", false)
	v.SetDefault("ANALYTICS_SECTION_TIMEOUT", 15*time.Second)
	v.SetDefault("VIEW_REFRESH_INTERVAL", 15*time.Minute)
	v.SetDefault("PROFILE_SYNC_INTERVAL", 5*time.Minute)
	// unset keys with no default must still be visible to AutomaticEnv lookups
	for _, key := range []string{
		"DATABASE_URL", "GATEWAY_TOKEN", "SERVICE_TOKEN", "REDIS_URL", "ROLLBAR_TOKEN",
		"POSTHOG_API_KEY", "CLOUDFLARE_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_ACCESS_KEY_SECRET",
		"R2_BUCKET_NAME", "CDN_BASE_URL", "PROFILE_SYNC_URL",
	} {
		v.SetDefault(key, "")
	}
	v.AutomaticEnv()
	return v
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  [CONFIG] could not read .env: %v", err)
	}
	return fromViper(newViper())
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:                     v.GetString("ENV"),
		Port:                    v.GetString("PORT"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		GatewayToken:            v.GetString("GATEWAY_TOKEN"),
		ServiceToken:            v.GetString("SERVICE_TOKEN"),
		AllowedOrigins:          normalizeOrigins(v.GetString("ALLOWED_ORIGINS")),
		RedisURL:                v.GetString("REDIS_URL"),
		ReportCacheTTL:          v.GetDuration("REPORT_CACHE_TTL"),
		RateLimitMax:            v.GetInt("RATE_LIMIT_MAX"),
		RateLimitWindow:         v.GetDuration("RATE_LIMIT_WINDOW"),
		AnalyticsSource:         strings.ToLower(v.GetString("ANALYTICS_SOURCE")),
		AnalyticsSnapshot:       v.GetBool("ANALYTICS_SNAPSHOT"),
		AnalyticsSectionTimeout: v.GetDuration("ANALYTICS_SECTION_TIMEOUT"),
		ViewRefreshInterval:     v.GetDuration("VIEW_REFRESH_INTERVAL"),
		RollbarToken:            v.GetString("ROLLBAR_TOKEN"),
		PostHogAPIKey:           v.GetString("POSTHOG_API_KEY"),
		R2: R2Config{
			AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("R2_BUCKET_NAME"),
			CDNBaseURL:      v.GetString("CDN_BASE_URL"),
		},
		ProfileSyncURL:      v.GetString("PROFILE_SYNC_URL"),
		ProfileSyncInterval: v.GetDuration("PROFILE_SYNC_INTERVAL"),
	}
	if cfg.R2.CDNBaseURL == "" && cfg.R2.AccountID != "" {
		cfg.R2.CDNBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2.AccountID)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.GatewayToken == "" {
		return fmt.Errorf("GATEWAY_TOKEN environment variable not set")
	}
	if c.AnalyticsSource != SourceMaterialized && c.AnalyticsSource != SourceLive {
		return fmt.Errorf("ANALYTICS_SOURCE must be %q or %q, got %q", SourceMaterialized, SourceLive, c.AnalyticsSource)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 || c.AnalyticsSectionTimeout <= 0 || c.ViewRefreshInterval <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	return nil
}

// normalizeOrigins trims spaces around each comma-separated origin.
func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}
