package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. BOOKS_ETL_DATABASE_URL.
const EnvPrefix = "BOOKS_ETL"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidTableName reports whether name is safe to splice into SQL as an identifier.
func ValidTableName(name string) bool {
	return validTableName.MatchString(name)
}

// Config holds the settings for one pipeline run.
type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScraperConfig controls the collector.
type ScraperConfig struct {
	SearchURL    string        `mapstructure:"search_url"`
	Query        string        `mapstructure:"query"`
	Referer      string        `mapstructure:"referer"`
	TargetCount  int           `mapstructure:"target_count"`
	MaxPages     int           `mapstructure:"max_pages"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	UserAgents   []string      `mapstructure:"user_agents"`
}

// DatabaseConfig identifies the sink database and table.
type DatabaseConfig struct {
	URL       string `mapstructure:"url"`
	Table     string `mapstructure:"table"`
	BatchSize int    `mapstructure:"batch_size"`
}

// ExportConfig enables an optional file copy of the validated records.
type ExportConfig struct {
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // csv, json, or dual
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	Addr           string `mapstructure:"addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DefaultUserAgents is the rotation used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
}

// DefaultConfig returns the defaults for the daily books run.
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			SearchURL:    "https://www.amazon.com/s",
			Query:        "data engineering books",
			Referer:      "https://www.amazon.com/",
			TargetCount:  50,
			MaxPages:     10,
			Timeout:      15 * time.Second,
			MinDelay:     2 * time.Second,
			MaxDelay:     5 * time.Second,
			ErrorBackoff: 10 * time.Second,
			UserAgents:   append([]string(nil), DefaultUserAgents...),
		},
		Database: DatabaseConfig{
			Table:     "books",
			BatchSize: 100,
		},
		Export: ExportConfig{
			Format: "csv",
		},
		Metrics: MetricsConfig{
			Job: "books_etl",
		},
	}
}

// Load builds a Config from defaults, an optional file, .env and the environment.
func Load(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper is Load on a caller-owned viper instance, typically one with CLI
// flags already bound.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Scraper.UserAgents) == 0 {
		cfg.Scraper.UserAgents = append([]string(nil), DefaultUserAgents...)
	}
	cfg.Export.Format = strings.ToLower(strings.TrimSpace(cfg.Export.Format))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("scraper.search_url", d.Scraper.SearchURL)
	v.SetDefault("scraper.query", d.Scraper.Query)
	v.SetDefault("scraper.referer", d.Scraper.Referer)
	v.SetDefault("scraper.target_count", d.Scraper.TargetCount)
	v.SetDefault("scraper.max_pages", d.Scraper.MaxPages)
	v.SetDefault("scraper.timeout", d.Scraper.Timeout)
	v.SetDefault("scraper.min_delay", d.Scraper.MinDelay)
	v.SetDefault("scraper.max_delay", d.Scraper.MaxDelay)
	v.SetDefault("scraper.error_backoff", d.Scraper.ErrorBackoff)
	v.SetDefault("scraper.user_agents", d.Scraper.UserAgents)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.table", d.Database.Table)
	v.SetDefault("database.batch_size", d.Database.BatchSize)
	v.SetDefault("export.file", d.Export.File)
	v.SetDefault("export.format", d.Export.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.pushgateway_url", d.Metrics.PushgatewayURL)
	v.SetDefault("metrics.job", d.Metrics.Job)
	v.SetDefault("logging.development", d.Logging.Development)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Scraper.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.Scraper.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}
	if strings.TrimSpace(c.Scraper.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if c.Scraper.TargetCount <= 0 {
		return fmt.Errorf("target count must be positive")
	}
	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Scraper.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.Scraper.MaxDelay < c.Scraper.MinDelay {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.Scraper.MaxDelay, c.Scraper.MinDelay)
	}
	if c.Scraper.ErrorBackoff < 0 {
		return fmt.Errorf("error backoff cannot be negative")
	}
	for _, ua := range c.Scraper.UserAgents {
		if strings.TrimSpace(ua) == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
	}
	if !ValidTableName(c.Database.Table) {
		return fmt.Errorf("invalid table name %q", c.Database.Table)
	}
	if c.Database.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	switch c.Export.Format {
	case "csv", "json", "dual":
	default:
		return fmt.Errorf("export format must be csv, json, or dual")
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		return fmt.Errorf("metrics job must be set when a pushgateway is configured")
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("database URL is required (set %s_DATABASE_URL)", EnvPrefix)
	}
	return nil
}
