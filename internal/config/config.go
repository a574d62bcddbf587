package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileNames are the config file names checked in baseDir, in order.
var FileNames = []string{"config.yaml", "config.yml", "config.json"}

// Chunk sizes accepted by backfill.chunk_size.
const (
	ChunkDay   = "day"
	ChunkWeek  = "week"
	ChunkMonth = "month"
)

// Config holds application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// LogFile is where logs are written. Empty means <base>/gather.log, "-" means stderr.
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	// FeedDir holds <source>.jsonl exports read by the feed collector.
	// Empty means <base>/feeds.
	FeedDir string `json:"feed_dir,omitempty" yaml:"feed_dir,omitempty"`

	Backfill BackfillConfig `json:"backfill" yaml:"backfill"`
	Dedup    DedupConfig    `json:"dedup" yaml:"dedup"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Web      WebConfig      `json:"web" yaml:"web"`

	// Sources holds per-source settings keyed by source name.
	// Sources missing from the map use the defaults for their kind.
	Sources map[string]SourceConfig `json:"sources,omitempty" yaml:"sources,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`
}

// BackfillConfig controls chunking, retries and throttling of backfill runs.
type BackfillConfig struct {
	// DefaultStartDate (YYYY-MM-DD) is used when a source has no progress and no from_date
	DefaultStartDate string `json:"default_start_date,omitempty" yaml:"default_start_date,omitempty"`

	// ChunkSize is one of day, week, month
	ChunkSize string `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`

	// MaxRetries is the total number of collect attempts per chunk
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	RetryDelay     Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	ChunkDelay     Duration `json:"chunk_delay,omitempty" yaml:"chunk_delay,omitempty"`
	CollectorDelay Duration `json:"collector_delay,omitempty" yaml:"collector_delay,omitempty"`

	// MaxParallel bounds how many sources are collected at once
	MaxParallel int `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`

	// ProgressFile and AuditFile default to files under the base directory
	ProgressFile string `json:"progress_file,omitempty" yaml:"progress_file,omitempty"`
	AuditFile    string `json:"audit_file,omitempty" yaml:"audit_file,omitempty"`
}

// DedupConfig controls fuzzy matching and normalization.
type DedupConfig struct {
	// Threshold is the minimum similarity in [0,1] for a fuzzy merge
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// DescriptionMaxChars bounds normalized descriptions, in runes
	DescriptionMaxChars int `json:"description_max_chars,omitempty" yaml:"description_max_chars,omitempty"`
}

// ScheduleConfig controls the cron-driven incremental collection.
type ScheduleConfig struct {
	// Collect is a standard 5-field cron expression. Empty disables scheduling.
	Collect string `json:"collect,omitempty" yaml:"collect,omitempty"`

	// LookbackDays is how far back a scheduled or manual collect run looks
	LookbackDays int `json:"lookback_days,omitempty" yaml:"lookback_days,omitempty"`
}

// WebConfig controls the read-only dashboard.
type WebConfig struct {
	Bind string `json:"bind,omitempty" yaml:"bind,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// SourceConfig holds settings for one upstream source.
type SourceConfig struct {
	// Enabled must be set to true for the source to be collected
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// BatchSize is the page size used against paginated upstream APIs
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`

	// FromDate (YYYY-MM-DD) overrides backfill.default_start_date for this source
	FromDate string `json:"from_date,omitempty" yaml:"from_date,omitempty"`

	// Weight is added to the effective priority of todos from this source
	Weight *int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// TokenEnv names the environment variable holding the API token
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`

	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Query is a source-specific search expression (e.g. a Slack search query)
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	// FeedPath overrides <feed_dir>/<source>.jsonl
	FeedPath string `json:"feed_path,omitempty" yaml:"feed_path,omitempty"`

	// ExcludeChannels lists chat channels whose messages are ignored
	ExcludeChannels []string `json:"exclude_channels,omitempty" yaml:"exclude_channels,omitempty"`

	RatePerSecond float64 `json:"rate_per_second,omitempty" yaml:"rate_per_second,omitempty"`
	Burst         int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// IsEnabled reports the enabled flag. Sources are disabled unless configured.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled != nil && *s.Enabled
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Backfill: BackfillConfig{
			DefaultStartDate: "2025-01-01",
			ChunkSize:        ChunkWeek,
			MaxRetries:       3,
			RetryDelay:       Duration(5 * time.Second),
			ChunkDelay:       Duration(time.Second),
			CollectorDelay:   Duration(2 * time.Second),
			MaxParallel:      4,
		},
		Dedup: DedupConfig{
			Threshold:           0.85,
			DescriptionMaxChars: 500,
		},
		Schedule: ScheduleConfig{
			LookbackDays: 1,
		},
		Web: WebConfig{
			Bind: "127.0.0.1",
			Port: 8787,
		},
		Sources: map[string]SourceConfig{
			"incident-io":   {Weight: intPtr(-1)},
			"dev-analytics": {Weight: intPtr(1)},
		},
	}
}

// Source returns the settings for a source, or a zero SourceConfig.
func (c *Config) Source(name string) SourceConfig {
	if c == nil || c.Sources == nil {
		return SourceConfig{}
	}
	return c.Sources[name]
}

// SourceEnabled reports whether a source is enabled. Pure lookup, no I/O.
func (c *Config) SourceEnabled(name string) bool {
	return c.Source(name).IsEnabled()
}

// SourceWeight returns the configured priority weight of a source (0 when unset).
func (c *Config) SourceWeight(name string) int {
	if w := c.Source(name).Weight; w != nil {
		return *w
	}
	return 0
}

// ResolvePaths fills file locations left empty with paths under baseDir.
func (c *Config) ResolvePaths(baseDir string) {
	if c.LogFile == "" {
		c.LogFile = filepath.Join(baseDir, "gather.log")
	}
	if c.FeedDir == "" {
		c.FeedDir = filepath.Join(baseDir, "feeds")
	}
	if c.Backfill.ProgressFile == "" {
		c.Backfill.ProgressFile = filepath.Join(baseDir, "backfill-progress.json")
	}
	if c.Backfill.AuditFile == "" {
		c.Backfill.AuditFile = filepath.Join(baseDir, "audit.jsonl")
	}
}

// FindFile returns the first config file present in baseDir, or "" if none exists.
func FindFile(baseDir string) string {
	for _, name := range FileNames {
		p := filepath.Join(baseDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load loads configuration from the first config file found in baseDir and
// merges it over the defaults. Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.gather.
func Load(baseDir string) (*Config, error) {
	cfg, err := LoadFile(FindFile(baseDir))
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(baseDir)
	return cfg, nil
}

// LoadFile loads configuration from a specific file path, merged over defaults.
// An empty or missing path yields the defaults.
func LoadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// sources are merged per key and per field.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)
	result.LogFile = pick(overlay.LogFile, base.LogFile)
	result.FeedDir = pick(overlay.FeedDir, base.FeedDir)

	result.Backfill = BackfillConfig{
		DefaultStartDate: pick(overlay.Backfill.DefaultStartDate, base.Backfill.DefaultStartDate),
		ChunkSize:        pick(overlay.Backfill.ChunkSize, base.Backfill.ChunkSize),
		MaxRetries:       pick(overlay.Backfill.MaxRetries, base.Backfill.MaxRetries),
		RetryDelay:       pick(overlay.Backfill.RetryDelay, base.Backfill.RetryDelay),
		ChunkDelay:       pick(overlay.Backfill.ChunkDelay, base.Backfill.ChunkDelay),
		CollectorDelay:   pick(overlay.Backfill.CollectorDelay, base.Backfill.CollectorDelay),
		MaxParallel:      pick(overlay.Backfill.MaxParallel, base.Backfill.MaxParallel),
		ProgressFile:     pick(overlay.Backfill.ProgressFile, base.Backfill.ProgressFile),
		AuditFile:        pick(overlay.Backfill.AuditFile, base.Backfill.AuditFile),
	}

	result.Dedup = DedupConfig{
		Threshold:           pick(overlay.Dedup.Threshold, base.Dedup.Threshold),
		DescriptionMaxChars: pick(overlay.Dedup.DescriptionMaxChars, base.Dedup.DescriptionMaxChars),
	}

	result.Schedule = ScheduleConfig{
		Collect:      pick(overlay.Schedule.Collect, base.Schedule.Collect),
		LookbackDays: pick(overlay.Schedule.LookbackDays, base.Schedule.LookbackDays),
	}

	result.Web = WebConfig{
		Bind: pick(overlay.Web.Bind, base.Web.Bind),
		Port: pick(overlay.Web.Port, base.Web.Port),
	}

	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	if len(base.Sources)+len(overlay.Sources) > 0 {
		result.Sources = make(map[string]SourceConfig, len(base.Sources)+len(overlay.Sources))
		for name, sc := range base.Sources {
			result.Sources[name] = sc
		}
		for name, sc := range overlay.Sources {
			result.Sources[name] = mergeSource(result.Sources[name], sc)
		}
	}

	return result
}

func mergeSource(base, overlay SourceConfig) SourceConfig {
	out := SourceConfig{
		Enabled:         base.Enabled,
		BatchSize:       pick(overlay.BatchSize, base.BatchSize),
		FromDate:        pick(overlay.FromDate, base.FromDate),
		Weight:          base.Weight,
		TokenEnv:        pick(overlay.TokenEnv, base.TokenEnv),
		BaseURL:         pick(overlay.BaseURL, base.BaseURL),
		Query:           pick(overlay.Query, base.Query),
		FeedPath:        pick(overlay.FeedPath, base.FeedPath),
		ExcludeChannels: mergeStringSlice(base.ExcludeChannels, overlay.ExcludeChannels),
		RatePerSecond:   pick(overlay.RatePerSecond, base.RatePerSecond),
		Burst:           pick(overlay.Burst, base.Burst),
	}
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.Weight != nil {
		out.Weight = overlay.Weight
	}
	return out
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func intPtr(v int) *int { return &v }
