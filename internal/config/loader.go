package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PCARANK_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PCARANK_CONFIG is set
//  3. env (prefix PCARANK_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PCARANK_QUEUE_SIZE -> queue_size (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	storeBackends = map[string]bool{"memory": true, "sqlite": true, "mysql": true, "postgres": true}
	cacheBackends = map[string]bool{"memory": true, "sqlite": true, "mysql": true, "postgres": true, "none": true}
	logLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	logFormats    = map[string]bool{"text": true, "json": true}
)

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		add("addr must not be empty")
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		add("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if !logFormats[strings.ToLower(c.LogFormat)] {
		add("log_format %q is not one of text, json", c.LogFormat)
	}
	if strings.TrimSpace(c.HomeCountry) == "" {
		add("home_country must not be empty")
	}
	if c.DefaultLimit <= 0 {
		add("default_limit must be positive, got %d", c.DefaultLimit)
	}
	if c.MaxLimit < c.DefaultLimit {
		add("max_limit %d is below default_limit %d", c.MaxLimit, c.DefaultLimit)
	}
	if c.QueueSize <= 0 {
		add("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.RecomputeParallelism <= 0 {
		add("recompute_parallelism must be positive, got %d", c.RecomputeParallelism)
	}
	if !storeBackends[c.StoreBackend] {
		add("store_backend %q is not one of memory, sqlite, mysql, postgres", c.StoreBackend)
	} else if c.StoreBackend != "memory" && c.StoreDSN == "" {
		add("store_dsn is required for store_backend %q", c.StoreBackend)
	}
	if !cacheBackends[c.CacheBackend] {
		add("cache_backend %q is not one of memory, sqlite, mysql, postgres, none", c.CacheBackend)
	} else if c.CacheBackend != "memory" && c.CacheBackend != "none" && c.CacheDSN == "" {
		add("cache_dsn is required for cache_backend %q", c.CacheBackend)
	}
	if c.CutoverInterval < 0 {
		add("cutover_interval must not be negative")
	}
	if c.RankingTTL < 0 || c.RegistryTTL < 0 || c.CompetitionsTTL < 0 {
		add("cache ttls must not be negative")
	}

	return result.ErrorOrNil()
}
