// Package config loads pipeline settings from a config file, PIPELINE_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PIPELINE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Scraper   ScraperConfig   `mapstructure:"scraper" yaml:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Jobs      JobsConfig      `mapstructure:"jobs" yaml:"jobs"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ScraperConfig struct {
	// FetchMode is "browser" for headless Chromium or "static" for plain HTTP.
	FetchMode        string        `mapstructure:"fetch_mode" yaml:"fetch_mode"`
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	MaxPages         int           `mapstructure:"max_pages" yaml:"max_pages"`
	IncludeSponsored bool          `mapstructure:"include_sponsored" yaml:"include_sponsored"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit" yaml:"concurrent_limit"`
	Limiter          string        `mapstructure:"limiter" yaml:"limiter"`
	RateLimitMin     time.Duration `mapstructure:"rate_limit_min" yaml:"rate_limit_min"`
	RateLimitMax     time.Duration `mapstructure:"rate_limit_max" yaml:"rate_limit_max"`
	Burst            int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy            string        `mapstructure:"proxy" yaml:"proxy"`
	RespectRobots    bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
}

type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	AcceptLanguage string        `mapstructure:"accept_language" yaml:"accept_language"`
	TimezoneID     string        `mapstructure:"timezone" yaml:"timezone"`
	Locale         string        `mapstructure:"locale" yaml:"locale"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// OutputFormat is json, or csv to also write a CSV export.
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
}

type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	User         string        `mapstructure:"user" yaml:"user"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Name         string        `mapstructure:"name" yaml:"name"`
	SSLMode      string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxConns     int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns     int32         `mapstructure:"min_conns" yaml:"min_conns"`
	PollInterval time.Duration `mapstructure:"outbox_poll_interval" yaml:"outbox_poll_interval"`
	BatchSize    int           `mapstructure:"outbox_batch_size" yaml:"outbox_batch_size"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Stream   string `mapstructure:"stream" yaml:"stream"`
}

type JobsConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads path when given, otherwise looks for config.yaml in the usual
// places. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/amazon-pipeline/")
		v.AddConfigPath("$HOME/.amazon-pipeline")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("scraper.fetch_mode", "browser")
	v.SetDefault("scraper.base_url", "https://www.amazon.com")
	v.SetDefault("scraper.max_pages", 5)
	v.SetDefault("scraper.include_sponsored", false)
	v.SetDefault("scraper.concurrent_limit", 2)
	v.SetDefault("scraper.limiter", "adaptive")
	v.SetDefault("scraper.rate_limit_min", 2*time.Second)
	v.SetDefault("scraper.rate_limit_max", 6*time.Second)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.retry_delay", 2*time.Second)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.proxy", "")
	v.SetDefault("scraper.respect_robots", false)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.locale", "en-US")

	v.SetDefault("artifacts.dir", "data")
	v.SetDefault("artifacts.output_format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "amazon_pipeline")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.outbox_poll_interval", 5*time.Second)
	v.SetDefault("database.outbox_batch_size", 100)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "stream:scrape_pipeline")

	v.SetDefault("jobs.workers", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Scraper.FetchMode {
	case "browser", "static":
	default:
		errs = append(errs, fmt.Errorf("scraper.fetch_mode must be browser or static, got %q", c.Scraper.FetchMode))
	}
	if c.Scraper.BaseURL == "" {
		errs = append(errs, errors.New("scraper.base_url is required"))
	}
	if c.Scraper.MaxPages < 1 {
		errs = append(errs, errors.New("scraper.max_pages must be at least 1"))
	}
	if c.Scraper.ConcurrentLimit < 1 {
		errs = append(errs, errors.New("scraper.concurrent_limit must be at least 1"))
	}
	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		errs = append(errs, errors.New("scraper.rate_limit_min cannot be greater than scraper.rate_limit_max"))
	}
	if c.Scraper.MaxRetries < 1 {
		errs = append(errs, errors.New("scraper.max_retries must be at least 1"))
	}
	switch c.Artifacts.OutputFormat {
	case "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("artifacts.output_format must be json or csv, got %q", c.Artifacts.OutputFormat))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, errors.New("jobs.workers must be at least 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
