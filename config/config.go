// Package config loads presswatch settings from presswatch.yaml, the
// environment and built-in defaults.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/fetch"
)

// Config is the top-level application configuration.
type Config struct {
	Cutoff      string `yaml:"cutoff" mapstructure:"cutoff"`
	MaxPages    int    `yaml:"max_pages" mapstructure:"max_pages"`
	KeepUndated bool   `yaml:"keep_undated" mapstructure:"keep_undated"`

	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Status  StatusConfig  `yaml:"status" mapstructure:"status"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// HTTPConfig configures direct page fetches.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retries   int           `yaml:"retries" mapstructure:"retries"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
	PageDelay time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
}

// RenderConfig configures the headless browser fallback.
type RenderConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Headless  bool          `yaml:"headless" mapstructure:"headless"`
	ExecPath  string        `yaml:"exec_path" mapstructure:"exec_path"`
	Wait      time.Duration `yaml:"wait" mapstructure:"wait"`
	Settle    time.Duration `yaml:"settle" mapstructure:"settle"`
	MaxClicks int           `yaml:"max_clicks" mapstructure:"max_clicks"`
}

// DatasetConfig selects the master dataset backend.
type DatasetConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// SourcesConfig points at the source catalog.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// StatusConfig points at the run status database.
type StatusConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// EnrichConfig controls article-page date lookups for undated records.
type EnrichConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Limit   int  `yaml:"limit" mapstructure:"limit"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path looks
// for presswatch.yaml in the working directory and tolerates its absence; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("presswatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PRESSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cutoff", "2025-01-01")
	v.SetDefault("max_pages", 8)
	v.SetDefault("keep_undated", false)
	v.SetDefault("http.timeout", 25*time.Second)
	v.SetDefault("http.retries", 2)
	v.SetDefault("http.user_agent", fetch.DefaultUserAgent)
	v.SetDefault("http.page_delay", 600*time.Millisecond)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.headless", true)
	v.SetDefault("render.exec_path", "")
	v.SetDefault("render.wait", 15*time.Second)
	v.SetDefault("render.settle", 1200*time.Millisecond)
	v.SetDefault("render.max_clicks", 20)
	v.SetDefault("dataset.backend", dataset.BackendCSV)
	v.SetDefault("dataset.path", "press_releases_master.csv")
	v.SetDefault("dataset.key", string(dataset.KeyCompanyTitleDate))
	v.SetDefault("sources.file", "sources.yaml")
	v.SetDefault("status.path", "presswatch-status.db")
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.limit", 25)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// CutoffDate parses the configured cutoff.
func (c *Config) CutoffDate() (time.Time, error) {
	t, ok := dates.Normalize(c.Cutoff)
	if !ok {
		return time.Time{}, eris.Errorf("config: invalid cutoff %q", c.Cutoff)
	}
	return t, nil
}

// KeyPolicy returns the dataset uniqueness policy.
func (c *Config) KeyPolicy() (dataset.KeyPolicy, error) {
	return dataset.ParseKeyPolicy(c.Dataset.Key)
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	if _, err := c.CutoffDate(); err != nil {
		return err
	}
	if c.MaxPages <= 0 {
		return eris.New("config: max_pages must be positive")
	}
	if c.HTTP.Retries < 0 {
		return eris.New("config: http.retries cannot be negative")
	}

	switch c.Dataset.Backend {
	case dataset.BackendCSV, dataset.BackendSQLite:
	default:
		return eris.Wrapf(dataset.ErrUnknownBackend, "config: dataset.backend %q", c.Dataset.Backend)
	}
	if c.Dataset.Path == "" {
		return eris.New("config: dataset.path is required")
	}
	if _, err := c.KeyPolicy(); err != nil {
		return eris.Wrap(err, "config: dataset.key")
	}

	return nil
}
