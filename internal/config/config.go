// Package config loads and persists user settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"favesave/internal/runstore"
)

const (
	EnvPrefix = "FAVESAVE"

	DefaultConcurrency    = 1
	DefaultStallThreshold = 60 * time.Second
	DefaultHarvestTick    = time.Second
	DefaultWatchInterval  = 5 * time.Second
	DefaultWatchTimeout   = 30 * time.Second
	DefaultWatchMaxHang   = 120 * time.Second
	DefaultFetchBackend   = "auto"
	DefaultFetchFormat    = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

type Config struct {
	Dataset     string           `mapstructure:"dataset"`
	DownloadDir string           `mapstructure:"download_dir"`
	Categories  CategoryConfig   `mapstructure:"categories"`
	DateFilter  DateFilterConfig `mapstructure:"date_filter"`
	Run         RunConfig        `mapstructure:"run"`
	Watchdog    WatchdogConfig   `mapstructure:"watchdog"`
	Fetch       FetchConfig      `mapstructure:"fetch"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Log         LogConfig        `mapstructure:"log"`
}

type CategoryConfig struct {
	Faves  bool `mapstructure:"faves"`
	Likes  bool `mapstructure:"likes"`
	Shares bool `mapstructure:"shares"`
}

type DateFilterConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Earliest string `mapstructure:"earliest"`
}

type RunConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	RetryFailures  bool          `mapstructure:"retry_failures"`
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	HarvestTick    time.Duration `mapstructure:"harvest_tick"`
}

type WatchdogConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxHang  time.Duration `mapstructure:"max_hang"`
}

type FetchConfig struct {
	Backend     string        `mapstructure:"backend"`
	Binary      string        `mapstructure:"binary"`
	Format      string        `mapstructure:"format"`
	LimitMBps   float64       `mapstructure:"limit_mb_s"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultPath is ~/.favesave/settings.yaml, or a relative fallback when the
// home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(".favesave", "settings.yaml")
	}
	return filepath.Join(home, ".favesave", "settings.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset", "")
	v.SetDefault("download_dir", "")

	v.SetDefault("categories.faves", true)
	v.SetDefault("categories.likes", true)
	v.SetDefault("categories.shares", true)

	v.SetDefault("date_filter.enabled", false)
	v.SetDefault("date_filter.earliest", "")

	v.SetDefault("run.concurrency", DefaultConcurrency)
	v.SetDefault("run.retry_failures", false)
	v.SetDefault("run.stall_threshold", DefaultStallThreshold)
	v.SetDefault("run.harvest_tick", DefaultHarvestTick)

	v.SetDefault("watchdog.interval", DefaultWatchInterval)
	v.SetDefault("watchdog.timeout", DefaultWatchTimeout)
	v.SetDefault("watchdog.max_hang", DefaultWatchMaxHang)

	v.SetDefault("fetch.backend", DefaultFetchBackend)
	v.SetDefault("fetch.binary", "")
	v.SetDefault("fetch.format", DefaultFetchFormat)
	v.SetDefault("fetch.limit_mb_s", 0.0)
	v.SetDefault("fetch.http_timeout", time.Duration(0))

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path over the defaults and applies FAVESAVE_* overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	Normalize(&cfg)
	return &cfg, nil
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if err := runstore.Mkdir(filepath.Dir(path)); err != nil {
		return err
	}
	norm := *cfg
	Normalize(&norm)

	v := viper.New()
	v.SetConfigType("yaml")
	for key, val := range flatten(norm) {
		v.Set(key, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

func flatten(c Config) map[string]any {
	return map[string]any{
		"dataset":              c.Dataset,
		"download_dir":         c.DownloadDir,
		"categories.faves":     c.Categories.Faves,
		"categories.likes":     c.Categories.Likes,
		"categories.shares":    c.Categories.Shares,
		"date_filter.enabled":  c.DateFilter.Enabled,
		"date_filter.earliest": c.DateFilter.Earliest,
		"run.concurrency":      c.Run.Concurrency,
		"run.retry_failures":   c.Run.RetryFailures,
		"run.stall_threshold":  c.Run.StallThreshold.String(),
		"run.harvest_tick":     c.Run.HarvestTick.String(),
		"watchdog.interval":    c.Watchdog.Interval.String(),
		"watchdog.timeout":     c.Watchdog.Timeout.String(),
		"watchdog.max_hang":    c.Watchdog.MaxHang.String(),
		"fetch.backend":        c.Fetch.Backend,
		"fetch.binary":         c.Fetch.Binary,
		"fetch.format":         c.Fetch.Format,
		"fetch.limit_mb_s":     c.Fetch.LimitMBps,
		"fetch.http_timeout":   c.Fetch.HTTPTimeout.String(),
		"metrics.addr":         c.Metrics.Addr,
		"log.level":            c.Log.Level,
		"log.format":           c.Log.Format,
	}
}

// Normalize clamps out-of-range values back to usable ones.
func Normalize(c *Config) {
	c.Dataset = strings.TrimSpace(c.Dataset)
	c.DownloadDir = strings.TrimSpace(c.DownloadDir)
	c.DateFilter.Earliest = strings.TrimSpace(c.DateFilter.Earliest)

	c.Run.Concurrency = max(1, min(c.Run.Concurrency, 10))
	c.Run.StallThreshold = positiveOr(c.Run.StallThreshold, DefaultStallThreshold)
	c.Run.HarvestTick = positiveOr(c.Run.HarvestTick, DefaultHarvestTick)

	c.Watchdog.Interval = positiveOr(c.Watchdog.Interval, DefaultWatchInterval)
	c.Watchdog.Timeout = positiveOr(c.Watchdog.Timeout, DefaultWatchTimeout)
	c.Watchdog.MaxHang = positiveOr(c.Watchdog.MaxHang, 4*c.Watchdog.Timeout)
	if c.Watchdog.MaxHang < c.Watchdog.Timeout {
		c.Watchdog.MaxHang = c.Watchdog.Timeout
	}

	c.Fetch.Backend = strings.ToLower(strings.TrimSpace(c.Fetch.Backend))
	if c.Fetch.Backend == "" {
		c.Fetch.Backend = DefaultFetchBackend
	}
	if strings.TrimSpace(c.Fetch.Format) == "" {
		c.Fetch.Format = DefaultFetchFormat
	}
	if c.Fetch.LimitMBps < 0 {
		c.Fetch.LimitMBps = 0
	}
	if c.Fetch.HTTPTimeout < 0 {
		c.Fetch.HTTPTimeout = 0
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "json" {
		c.Log.Format = DefaultLogFormat
	}
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Earliest returns the active cutoff date, if any.
func (c *Config) Earliest() string {
	if !c.DateFilter.Enabled {
		return ""
	}
	return c.DateFilter.Earliest
}
