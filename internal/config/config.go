// Package config defines service configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file named by
// PCARANK_CONFIG, then PCARANK_* environment variables.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// HTTPTimeout bounds reads and writes of one API request.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// HomeCountry is the country every ranking is restricted to.
	HomeCountry string `koanf:"home_country"`
	// DefaultLimit is used when a ranking request names no limit.
	DefaultLimit int `koanf:"default_limit"`
	// MaxLimit caps the limit of a ranking request.
	MaxLimit int `koanf:"max_limit"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`
	// RecomputeParallelism bounds concurrent event units inside one task.
	RecomputeParallelism int `koanf:"recompute_parallelism"`
	// PendingSize bounds the set used to coalesce identical pending tasks.
	PendingSize int `koanf:"pending_size"`

	// StoreBackend is one of memory, sqlite, mysql, postgres.
	StoreBackend string `koanf:"store_backend"`
	StoreDSN     string `koanf:"store_dsn"`
	// AutoMigrate applies the embedded schema migrations on start.
	AutoMigrate bool `koanf:"auto_migrate"`

	// CacheBackend is one of memory, sqlite, mysql, postgres, none.
	CacheBackend string `koanf:"cache_backend"`
	CacheDSN     string `koanf:"cache_dsn"`
	// RankingTTL expires cached rankings. Zero keeps them until replaced.
	RankingTTL time.Duration `koanf:"ranking_ttl"`
	// RegistryTTL bounds how long a cached active dataset is trusted after
	// another process, such as rankctl, swapped it. Zero never expires.
	RegistryTTL time.Duration `koanf:"registry_ttl"`

	CompetitionsURL string        `koanf:"competitions_url"`
	CompetitionsTTL time.Duration `koanf:"competitions_ttl"`

	// ExportURL is the results export archive fetched by a cutover.
	ExportURL string `koanf:"export_url"`
	// DataDir receives the extracted export.
	DataDir string `koanf:"data_dir"`
	// LiteDir holds the small export imported in test mode.
	LiteDir string `koanf:"lite_dir"`
	// CutoverInterval schedules cutovers. Zero disables the schedule.
	CutoverInterval time.Duration `koanf:"cutover_interval"`
	// RecomputeAfterCutover schedules a full recompute after each swap.
	RecomputeAfterCutover bool `koanf:"recompute_after_cutover"`
	// InvalidateAfterCutover drops cached rankings after each swap.
	InvalidateAfterCutover bool `koanf:"invalidate_after_cutover"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		HTTPTimeout:          30 * time.Second,
		HomeCountry:          "Philippines",
		DefaultLimit:         10,
		MaxLimit:             1000,
		QueueSize:            1024,
		WorkerCount:          runtime.NumCPU(),
		RecomputeParallelism: 4,
		PendingSize:          4096,
		StoreBackend:         "sqlite",
		StoreDSN:             "file:data/pcarank.db?_pragma=busy_timeout(5000)",
		AutoMigrate:          true,
		CacheBackend:         "memory",
		RegistryTTL:          30 * time.Second,
		CompetitionsURL:      "https://www.worldcubeassociation.org/api/v0/search/competitions?q=philippines",
		CompetitionsTTL:      600 * time.Second,
		ExportURL:            "https://www.worldcubeassociation.org/export/results/WCA_export.tsv.zip",
		DataDir:              "data/extracted",
		LiteDir:              "data/lite",
	}
}
