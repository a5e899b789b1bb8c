package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for one acquisition run.
type Config struct {
	// API holds X API v2 credentials for the paid resolver strategy.
	API APIConfig `yaml:"api" json:"api"`

	// Session holds state for the internal-API resolver strategy.
	Session SessionConfig `yaml:"session" json:"session"`

	// Scrape holds settings for the gallery-dl resolver strategy.
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// RateLimit configures the shared request client.
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download configures the CDN download engine.
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output configures where the manifest is written.
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds X API v2 credentials. Either a bearer token or the full
// OAuth 1.0a quadruple is enough; the bearer token wins when both are set.
type APIConfig struct {
	BearerToken  string `yaml:"bearer_token" json:"bearer_token"`
	Key          string `yaml:"key" json:"key"`
	Secret       string `yaml:"secret" json:"secret"`
	AccessToken  string `yaml:"access_token" json:"access_token"`
	AccessSecret string `yaml:"access_secret" json:"access_secret"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
}

// HasBearer reports whether a bearer token is configured.
func (a APIConfig) HasBearer() bool { return a.BearerToken != "" }

// HasOAuth1 reports whether the full OAuth 1.0a quadruple is configured.
func (a APIConfig) HasOAuth1() bool {
	return a.Key != "" && a.Secret != "" && a.AccessToken != "" && a.AccessSecret != ""
}

// SessionConfig holds the persisted session credential for the internal API
// surface. CookiesPath points at a JSON cookie jar saved by a prior login.
type SessionConfig struct {
	CookiesPath string `yaml:"cookies_path" json:"cookies_path"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
}

// ScrapeConfig holds settings for the external gallery-dl resolver.
type ScrapeConfig struct {
	Binary  string `yaml:"binary" json:"binary"`
	Browser string `yaml:"browser" json:"browser"`
	Limit   int    `yaml:"limit" json:"limit"`
}

// RateLimitConfig configures the rate-limited request client.
type RateLimitConfig struct {
	MinInterval       time.Duration `yaml:"min_interval" json:"min_interval"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" json:"default_retry_after"`
}

// DownloadConfig configures the download engine.
type DownloadConfig struct {
	StagingDir          string        `yaml:"staging_dir" json:"staging_dir"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	SkipExisting        bool          `yaml:"skip_existing" json:"skip_existing"`
}

// OutputConfig configures manifest output.
type OutputConfig struct {
	ManifestPath string `yaml:"manifest_path" json:"manifest_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.twitter.com/2",
		},
		Session: SessionConfig{
			CookiesPath: "cookies.json",
			BaseURL:     "https://api.x.com/1.1",
			BatchSize:   20,
		},
		Scrape: ScrapeConfig{
			Binary:  "gallery-dl",
			Browser: "brave",
		},
		RateLimit: RateLimitConfig{
			MinInterval:       500 * time.Millisecond,
			MaxAttempts:       5,
			DefaultRetryAfter: 60 * time.Second,
		},
		Download: DownloadConfig{
			StagingDir:          "downloads",
			ConcurrentDownloads: 3,
			Timeout:             30 * time.Second,
			SkipExisting:        true,
		},
		Output: OutputConfig{
			ManifestPath: "downloads/manifest.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then an optional YAML
// file, then .env and environment variables, then CLI flag overrides.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile merges a YAML config file into the config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv merges environment variables into the config. A .env file in
// the working directory is loaded first when present; existing environment
// variables always win over .env entries.
func (c *Config) LoadFromEnv() error {
	// godotenv never overwrites variables that are already set.
	_ = godotenv.Load()

	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		c.API.BearerToken = v
	}
	if v := os.Getenv("TWITTER_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("TWITTER_API_SECRET"); v != "" {
		c.API.Secret = v
	}
	if v := os.Getenv("TWITTER_ACCESS_TOKEN"); v != "" {
		c.API.AccessToken = v
	}
	if v := os.Getenv("TWITTER_ACCESS_SECRET"); v != "" {
		c.API.AccessSecret = v
	}
	if v := os.Getenv("LIKEGRAB_COOKIES"); v != "" {
		c.Session.CookiesPath = v
	}
	if v := os.Getenv("LIKEGRAB_BROWSER"); v != "" {
		c.Scrape.Browser = v
	}
	if v := os.Getenv("LIKEGRAB_STAGING_DIR"); v != "" {
		c.Download.StagingDir = v
	}
	if v := os.Getenv("LIKEGRAB_MANIFEST"); v != "" {
		c.Output.ManifestPath = v
	}
	if v := os.Getenv("LIKEGRAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIKEGRAB_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Download.ConcurrentDownloads = n
		}
	}
	if v := os.Getenv("LIKEGRAB_SKIP_EXISTING"); v != "" {
		c.Download.SkipExisting = strings.ToLower(v) != "false"
	}
	return nil
}

func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "staging-dir":
			if v, ok := value.(string); ok && v != "" {
				c.Download.StagingDir = v
			}
		case "manifest":
			if v, ok := value.(string); ok && v != "" {
				c.Output.ManifestPath = v
			}
		case "concurrent":
			if v, ok := value.(int); ok && v > 0 {
				c.Download.ConcurrentDownloads = v
			}
		case "timeout":
			if v, ok := value.(time.Duration); ok && v > 0 {
				c.Download.Timeout = v
			}
		case "skip-existing":
			if v, ok := value.(bool); ok {
				c.Download.SkipExisting = v
			}
		case "browser":
			if v, ok := value.(string); ok && v != "" {
				c.Scrape.Browser = v
			}
		case "limit":
			if v, ok := value.(int); ok && v > 0 {
				c.Scrape.Limit = v
			}
		case "cookies":
			if v, ok := value.(string); ok && v != "" {
				c.Session.CookiesPath = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks the configuration for values that would break a run.
func (c *Config) Validate() error {
	if c.Download.StagingDir == "" {
		return fmt.Errorf("staging directory must not be empty")
	}
	if c.Output.ManifestPath == "" {
		return fmt.Errorf("manifest path must not be empty")
	}
	if c.Download.ConcurrentDownloads < 1 {
		return fmt.Errorf("concurrent downloads must be at least 1, got %d", c.Download.ConcurrentDownloads)
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("download timeout must be positive, got %v", c.Download.Timeout)
	}
	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("rate limit max attempts must be at least 1, got %d", c.RateLimit.MaxAttempts)
	}
	if c.Session.BatchSize < 1 {
		return fmt.Errorf("session batch size must be at least 1, got %d", c.Session.BatchSize)
	}
	return nil
}
