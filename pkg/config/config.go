// Package config provides the configuration system for oceansync.
// A single Config snapshot is built once at startup by layering defaults,
// an optional YAML settings file, and environment overrides (environment
// wins over file, file wins over defaults). The snapshot is validated
// before any network activity and treated as immutable for the rest of
// the run.
package config

import (
	"sort"
	"time"

	"github.com/seastate/oceansync/pkg/syncerrors"
)

// Config is the validated snapshot of run parameters.
type Config struct {
	// Output controls chunk file placement and sizing
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Sync controls orchestration: concurrency, retries, run deadline
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Logging controls the run log artifacts
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Sources holds one block per provider
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
}

// OutputConfig controls where and how chunk files are written.
type OutputConfig struct {
	// Root is the directory under which per-source output directories live
	Root string `yaml:"root" mapstructure:"root"`
	// ChunkSize is the maximum number of rows per chunk file
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
	// CleanupTempFiles removes residual temporary files after a source completes
	CleanupTempFiles bool `yaml:"cleanup_temp_files" mapstructure:"cleanup_temp_files"`
}

// SyncConfig controls the synchronizer.
type SyncConfig struct {
	// Workers bounds how many source tasks run concurrently (0 = all enabled)
	Workers int `yaml:"workers" mapstructure:"workers"`
	// MaxAttempts is the maximum fetch attempts per source, first try included
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RetryDelay is the initial backoff delay between attempts
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" mapstructure:"max_retry_delay"`
	// RunTimeout is the global run deadline (0 = no deadline)
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
}

// LoggingConfig controls log level and which run artifacts are produced.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// TextLog enables the human-readable execution log
	TextLog bool `yaml:"text_log" mapstructure:"text_log"`
	// EventTable enables the structured tabular event log
	EventTable bool `yaml:"event_table" mapstructure:"event_table"`
	// JSONSummary enables the JSON run summary
	JSONSummary bool `yaml:"json_summary" mapstructure:"json_summary"`
}

// RegionConfig is an optional lat/lon bounding box applied during
// normalization.
type RegionConfig struct {
	LatMin float64 `yaml:"lat_min" mapstructure:"lat_min"`
	LatMax float64 `yaml:"lat_max" mapstructure:"lat_max"`
	LonMin float64 `yaml:"lon_min" mapstructure:"lon_min"`
	LonMax float64 `yaml:"lon_max" mapstructure:"lon_max"`
}

// Contains reports whether the point lies inside the box.
func (r *RegionConfig) Contains(lat, lon float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax && lon >= r.LonMin && lon <= r.LonMax
}

// SourceConfig is one provider's block.
type SourceConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// BaseURL overrides the provider's default endpoint
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// DaysBack sets the time window as now minus this many days
	DaysBack int `yaml:"days_back" mapstructure:"days_back"`
	// ProfileLimit caps fetched profiles for profile-oriented providers
	ProfileLimit int `yaml:"profile_limit" mapstructure:"profile_limit"`
	// StationLimit caps queried stations for station-oriented providers
	StationLimit int `yaml:"station_limit" mapstructure:"station_limit"`
	// Region restricts records to a lat/lon box (nil = no restriction)
	Region *RegionConfig `yaml:"region" mapstructure:"region"`
	// RequestTimeout bounds each network call
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// RateLimitPerSec caps requests per second against the provider (0 = off)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// Credentials holds provider credentials (tokens, API keys)
	Credentials map[string]string `yaml:"credentials" mapstructure:"credentials"`
}

// SourcesConfig holds one block per supported provider.
type SourcesConfig struct {
	Erddap     SourceConfig `yaml:"erddap" mapstructure:"erddap"`
	Copernicus SourceConfig `yaml:"copernicus" mapstructure:"copernicus"`
	NDBC       SourceConfig `yaml:"ndbc" mapstructure:"ndbc"`
	Argovis    SourceConfig `yaml:"argovis" mapstructure:"argovis"`
}

// ByName returns the named source block.
func (s *SourcesConfig) ByName(name string) (SourceConfig, bool) {
	switch name {
	case "erddap":
		return s.Erddap, true
	case "copernicus":
		return s.Copernicus, true
	case "ndbc":
		return s.NDBC, true
	case "argovis":
		return s.Argovis, true
	default:
		return SourceConfig{}, false
	}
}

// Names returns all known source names in stable order.
func (s *SourcesConfig) Names() []string {
	names := []string{"erddap", "copernicus", "ndbc", "argovis"}
	sort.Strings(names)
	return names
}

// Enabled returns the names of enabled sources in stable order.
func (s *SourcesConfig) Enabled() []string {
	var enabled []string
	for _, name := range s.Names() {
		if sc, _ := s.ByName(name); sc.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// Default returns a Config populated with production defaults. Specific
// deployments override these via oceansync.yaml and OCEANSYNC_* environment
// variables.
func Default() *Config {
	src := SourceConfig{
		Enabled:        true,
		DaysBack:       7,
		ProfileLimit:   500,
		StationLimit:   50,
		RequestTimeout: 30 * time.Second,
	}
	return &Config{
		Output: OutputConfig{
			Root:             "data",
			ChunkSize:        1000,
			CleanupTempFiles: true,
		},
		Sync: SyncConfig{
			Workers:       0, // all enabled sources in parallel
			MaxAttempts:   3,
			RetryDelay:    time.Second,
			MaxRetryDelay: 60 * time.Second,
			RunTimeout:    30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:       "info",
			TextLog:     true,
			EventTable:  true,
			JSONSummary: true,
		},
		Sources: SourcesConfig{
			Erddap:     src,
			Copernicus: src,
			NDBC:       src,
			Argovis:    src,
		},
	}
}

// Validate checks the configuration for correctness. Any violation returns
// a config-typed error, which aborts the run before any source is attempted.
func (c *Config) Validate() error {
	if c.Output.Root == "" {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "output.root is required")
	}
	if c.Output.ChunkSize <= 0 {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "output.chunk_size must be positive")
	}
	if c.Sync.Workers < 0 {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "sync.workers cannot be negative")
	}
	if c.Sync.MaxAttempts < 1 {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "sync.max_attempts must be at least 1")
	}
	if c.Sync.RetryDelay <= 0 {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "sync.retry_delay must be positive")
	}
	if c.Sync.RunTimeout < 0 {
		return syncerrors.New(syncerrors.ErrorTypeConfig, "sync.run_timeout cannot be negative")
	}
	for _, name := range c.Sources.Names() {
		sc, _ := c.Sources.ByName(name)
		if !sc.Enabled {
			continue
		}
		if err := validateSource(name, sc); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(name string, sc SourceConfig) error {
	if sc.RequestTimeout <= 0 {
		return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.request_timeout must be positive", name)
	}
	if sc.DaysBack <= 0 {
		return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.days_back must be positive", name)
	}
	if sc.ProfileLimit < 0 {
		return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.profile_limit cannot be negative", name)
	}
	if sc.StationLimit < 0 {
		return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.station_limit cannot be negative", name)
	}
	if sc.RateLimitPerSec < 0 {
		return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.rate_limit_per_sec cannot be negative", name)
	}
	if r := sc.Region; r != nil {
		if r.LatMin < -90 || r.LatMax > 90 || r.LatMin > r.LatMax {
			return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.region latitude bounds invalid", name)
		}
		if r.LonMin < -180 || r.LonMax > 180 || r.LonMin > r.LonMax {
			return syncerrors.Newf(syncerrors.ErrorTypeConfig, "sources.%s.region longitude bounds invalid", name)
		}
	}
	return nil
}
