package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

const (
	DEFAULT_WEATHER_URL = "https://api.open-meteo.com/v1/forecast"
	ENV_PREFIX          = "WINDVIZ"
)

type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	DSN    string        `mapstructure:"dsn"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	WeatherBaseURL string        `mapstructure:"weather_base_url"`
	WeatherHeightM int           `mapstructure:"weather_height_m"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	DefaultNX      int           `mapstructure:"default_nx"`
	DefaultNY      int           `mapstructure:"default_ny"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	CatalogFile    string        `mapstructure:"catalog_file"`
	Permalink      string        `mapstructure:"permalink"`
	Debug          bool          `mapstructure:"debug"`
	Cache          CacheConfig   `mapstructure:"cache"`
}

// ConfigurationError lists every missing or invalid setting found at startup.
type ConfigurationError struct {
	Errors *multierror.Error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.TrimSpace(e.Errors.Error())
}

func (e *ConfigurationError) Unwrap() error {
	return e.Errors.ErrorOrNil()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("weather_base_url", DEFAULT_WEATHER_URL)
	v.SetDefault("weather_height_m", 120)
	v.SetDefault("health_interval", 10*time.Second)
	v.SetDefault("frame_interval", 50*time.Millisecond)
	v.SetDefault("http_timeout", 0)
	v.SetDefault("default_nx", 100)
	v.SetDefault("default_ny", 100)
	v.SetDefault("viewport_width", 1280)
	v.SetDefault("viewport_height", 800)
	v.SetDefault("catalog_file", "")
	v.SetDefault("permalink", "")
	v.SetDefault("debug", false)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", time.Hour)
}

// Load reads the optional YAML file at path and WINDVIZ_* environment
// variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.WeatherBaseURL = strings.TrimSpace(cfg.WeatherBaseURL)
	cfg.Permalink = strings.TrimPrefix(strings.TrimSpace(cfg.Permalink), "?")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.APIBaseURL == "" {
		result = multierror.Append(result, errors.New("api_base_url is required"))
	} else if err := validateURL(c.APIBaseURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("api_base_url: %w", err))
	}
	if err := validateURL(c.WeatherBaseURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("weather_base_url: %w", err))
	}
	if c.ListenAddr == "" {
		result = multierror.Append(result, errors.New("listen_addr is required"))
	}
	if c.WeatherHeightM <= 0 {
		result = multierror.Append(result, fmt.Errorf("weather_height_m must be positive, got %d", c.WeatherHeightM))
	}
	if c.HealthInterval < time.Second {
		result = multierror.Append(result, fmt.Errorf("health_interval must be at least 1s, got %s", c.HealthInterval))
	}
	if c.FrameInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval))
	}
	if c.HTTPTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout))
	}
	if c.DefaultNX <= 0 || c.DefaultNY <= 0 {
		result = multierror.Append(result, fmt.Errorf("default resolution must be positive, got %dx%d", c.DefaultNX, c.DefaultNY))
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		result = multierror.Append(result, fmt.Errorf("viewport size must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight))
	}

	switch c.Cache.Driver {
	case "memory":
	case "sqlite3", "postgres", "redis":
		if c.Cache.DSN == "" {
			result = multierror.Append(result, fmt.Errorf("cache.dsn is required for driver %q", c.Cache.Driver))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}

	if result != nil {
		return &ConfigurationError{Errors: result}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
