package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the first listing page of the catalog. It is fixed for a crawl
// and deliberately not exposed as a flag.
const DefaultBaseURL = "https://books.toscrape.com/"

// DefaultUserAgent identifies this crawler to the target site.
const DefaultUserAgent = "Mozilla/5.0 (compatible; go-scrape-catalog/1.0; +https://books.toscrape.com/)"

// EnvPrefix is prepended to every environment override, e.g. SCRAPER_OUTPUT.
const EnvPrefix = "SCRAPER"

// Output formats understood by the pipeline package.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatDual   = "dual"
	FormatSQLite = "sqlite"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL          string        `mapstructure:"base_url"`
	Delay            time.Duration `mapstructure:"delay"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	OutputFile       string        `mapstructure:"output"`
	OutputFormat     string        `mapstructure:"format"` // csv, json, dual or sqlite
	DetailCacheSize  int           `mapstructure:"detail_cache"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	Verbose          bool          `mapstructure:"verbose"`
}

// DefaultConfig returns polite defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		Delay:            400 * time.Millisecond,
		Timeout:          15 * time.Second,
		UserAgent:        DefaultUserAgent,
		OutputFile:       "books_full_output.csv",
		OutputFormat:     FormatCSV,
		DetailCacheSize:  256,
		RespectRobotsTxt: false,
		MetricsAddr:      "",
		Verbose:          false,
	}
}

// Load resolves configuration from defaults, an optional YAML file, SCRAPER_*
// environment variables and flags, in increasing order of precedence.
// An empty configFile skips the file lookup.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configFile)
		}
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// The base URL stays fixed for a crawl unless set programmatically.
	cfg.BaseURL = DefaultBaseURL
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("delay", cfg.Delay)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("output", cfg.OutputFile)
	v.SetDefault("format", cfg.OutputFormat)
	v.SetDefault("detail_cache", cfg.DetailCacheSize)
	v.SetDefault("respect_robots", cfg.RespectRobotsTxt)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("verbose", cfg.Verbose)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrEmptyBaseURL
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: base URL must include a host", ErrInvalidBaseURL)
	}

	if c.Delay < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDelay, c.Delay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.DetailCacheSize)
	}
	if c.OutputFile == "" {
		return ErrEmptyOutput
	}
	switch c.OutputFormat {
	case FormatCSV, FormatJSON, FormatDual, FormatSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.OutputFormat)
	}
	if c.UserAgent == "" {
		return ErrEmptyUserAgent
	}

	return nil
}
