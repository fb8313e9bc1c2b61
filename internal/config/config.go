// Package config loads and validates runtime configuration at startup.
//
// Values come from environment variables, optionally layered over a YAML
// file whose keys are the lower-case variable names (database_url, ...).
// Fail-fast: invalid values abort startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"jobmate/match-service/internal/scoring"
)

// Config holds all runtime configuration for the match service.
type Config struct {
	Port        string
	GRPCPort    string
	DatabaseURL string
	RedisURL    string
	DBMaxConns  int32

	Adzuna AdzunaConfig
	Live   LiveConfig

	FreshnessWindowDays int
	MinMatchScore       float64 // 0–1
	MaxExternalJobs     int
	Weights             scoring.Weights
	StoreLimit          int

	QueryCacheTTL      time.Duration
	ScoreMemoTTL       time.Duration
	ScoreMemoMax       int
	CacheWriterWorkers int
	CacheWriterQueue   int

	WarmIntervalHours  int // How often the cron job fires
	CacheRetentionDays int

	LogLevel string
	LogJSON  bool
}

// AdzunaConfig holds the live provider credentials and paging.
type AdzunaConfig struct {
	AppID      string
	AppKey     string
	Country    string // e.g. "fr", "gb", "us"
	BaseURL    string
	PageSize   int
	MaxPages   int
	RatePerSec float64
}

// LiveConfig bounds the live discovery call.
type LiveConfig struct {
	Timeout      time.Duration
	DefaultTrust int
}

var defaults = map[string]any{
	"discovery_port":         "8081",
	"grpc_port":              "9081",
	"db_max_conns":           10,
	"adzuna_country":         "fr",
	"adzuna_base_url":        "https://api.adzuna.com/v1/api/jobs",
	"live_page_size":         50,
	"live_max_pages":         3,
	"live_timeout":           "12s",
	"live_rate_per_sec":      4.0,
	"live_default_trust":     80,
	"freshness_window_days":  15,
	"min_match_score":        0.40,
	"max_external_jobs":      20,
	"weight_semantic":        0.45,
	"weight_recency":         0.25,
	"weight_liveness":        0.20,
	"weight_personalization": 0.10,
	"store_limit":            500,
	"query_cache_ttl":        "6h",
	"score_memo_ttl":         "10m",
	"score_memo_max":         10000,
	"cache_writer_workers":   2,
	"cache_writer_queue":     64,
	"warm_interval_hours":    6,
	"cache_retention_days":   30,
	"log_level":              "info",
	"log_json":               false,
}

// Load reads the environment, and file when non-empty, into a validated
// Config. DATABASE_URL and REDIS_URL are not checked here; commands that
// need them call RequireStores.
func Load(file string) (*Config, error) {
	return LoadFrom(viper.New(), file)
}

// LoadFrom is Load on a caller-provided viper instance.
func LoadFrom(v *viper.Viper, file string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default.
	for _, k := range []string{"database_url", "redis_url", "adzuna_app_id", "adzuna_app_key"} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:        v.GetString("discovery_port"),
		GRPCPort:    v.GetString("grpc_port"),
		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),
		DBMaxConns:  v.GetInt32("db_max_conns"),
		Adzuna: AdzunaConfig{
			AppID:      v.GetString("adzuna_app_id"),
			AppKey:     v.GetString("adzuna_app_key"),
			Country:    v.GetString("adzuna_country"),
			BaseURL:    v.GetString("adzuna_base_url"),
			PageSize:   v.GetInt("live_page_size"),
			MaxPages:   v.GetInt("live_max_pages"),
			RatePerSec: v.GetFloat64("live_rate_per_sec"),
		},
		Live: LiveConfig{
			Timeout:      v.GetDuration("live_timeout"),
			DefaultTrust: v.GetInt("live_default_trust"),
		},
		FreshnessWindowDays: v.GetInt("freshness_window_days"),
		MinMatchScore:       v.GetFloat64("min_match_score"),
		MaxExternalJobs:     v.GetInt("max_external_jobs"),
		Weights: scoring.Weights{
			Semantic:        v.GetFloat64("weight_semantic"),
			Recency:         v.GetFloat64("weight_recency"),
			Liveness:        v.GetFloat64("weight_liveness"),
			Personalization: v.GetFloat64("weight_personalization"),
		},
		StoreLimit:         v.GetInt("store_limit"),
		QueryCacheTTL:      v.GetDuration("query_cache_ttl"),
		ScoreMemoTTL:       v.GetDuration("score_memo_ttl"),
		ScoreMemoMax:       v.GetInt("score_memo_max"),
		CacheWriterWorkers: v.GetInt("cache_writer_workers"),
		CacheWriterQueue:   v.GetInt("cache_writer_queue"),
		WarmIntervalHours:  v.GetInt("warm_interval_hours"),
		CacheRetentionDays: v.GetInt("cache_retention_days"),
		LogLevel:           v.GetString("log_level"),
		LogJSON:            v.GetBool("log_json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer, got %d", name, v))
		}
	}
	positive("DB_MAX_CONNS", int(c.DBMaxConns))
	positive("LIVE_PAGE_SIZE", c.Adzuna.PageSize)
	positive("LIVE_MAX_PAGES", c.Adzuna.MaxPages)
	positive("FRESHNESS_WINDOW_DAYS", c.FreshnessWindowDays)
	positive("MAX_EXTERNAL_JOBS", c.MaxExternalJobs)
	positive("STORE_LIMIT", c.StoreLimit)
	positive("CACHE_WRITER_WORKERS", c.CacheWriterWorkers)
	positive("CACHE_WRITER_QUEUE", c.CacheWriterQueue)
	positive("WARM_INTERVAL_HOURS", c.WarmIntervalHours)
	positive("CACHE_RETENTION_DAYS", c.CacheRetentionDays)

	if c.Live.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("LIVE_TIMEOUT must be positive, got %s", c.Live.Timeout))
	}
	if c.Live.DefaultTrust < 0 || c.Live.DefaultTrust > 100 {
		errs = append(errs, fmt.Errorf("LIVE_DEFAULT_TRUST must be between 0 and 100, got %d", c.Live.DefaultTrust))
	}
	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		errs = append(errs, fmt.Errorf("MIN_MATCH_SCORE must be between 0 and 1, got %v", c.MinMatchScore))
	}
	if c.CacheRetentionDays > 0 && c.CacheRetentionDays < c.FreshnessWindowDays {
		errs = append(errs, fmt.Errorf("CACHE_RETENTION_DAYS (%d) must not be shorter than FRESHNESS_WINDOW_DAYS (%d)",
			c.CacheRetentionDays, c.FreshnessWindowDays))
	}
	if err := c.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireStores fails when the PostgreSQL or Redis URL is missing.
func (c *Config) RequireStores() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	return nil
}
