package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestLoadFromEnvironment(t *testing.T) {
	is := is.New(t)

	t.Setenv("WINDVIZ_API_BASE_URL", "http://localhost:8000///")
	t.Setenv("WINDVIZ_HEALTH_INTERVAL", "30s")
	t.Setenv("WINDVIZ_CACHE_TTL", "2h")

	cfg, err := Load("")
	is.NoErr(err)
	is.Equal(cfg.APIBaseURL, "http://localhost:8000")
	is.Equal(cfg.HealthInterval, 30*time.Second)
	is.Equal(cfg.Cache.TTL, 2*time.Hour)
	is.Equal(cfg.Cache.Driver, "memory")
	is.Equal(cfg.DefaultNX, 100)
	is.Equal(cfg.WeatherBaseURL, DEFAULT_WEATHER_URL)
	is.Equal(cfg.FrameInterval, 50*time.Millisecond)
}

func TestLoadFromFile(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "windviz.yml")
	content := `
api_base_url: https://wind.example.org
listen_addr: ":9999"
default_nx: 40
default_ny: 30
permalink: "?dataset=zurich&nx=40"
cache:
  driver: sqlite3
  dsn: "file:cache.db"
`
	is.NoErr(os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	is.NoErr(err)
	is.Equal(cfg.ListenAddr, ":9999")
	is.Equal(cfg.DefaultNX, 40)
	is.Equal(cfg.DefaultNY, 30)
	is.Equal(cfg.Permalink, "dataset=zurich&nx=40")
	is.Equal(cfg.Cache.Driver, "sqlite3")
	is.Equal(cfg.Cache.DSN, "file:cache.db")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	is := is.New(t)

	cfg := Config{
		APIBaseURL:     "",
		ListenAddr:     ":8090",
		WeatherBaseURL: "ftp://weather",
		WeatherHeightM: 120,
		HealthInterval: 10 * time.Second,
		FrameInterval:  50 * time.Millisecond,
		DefaultNX:      0,
		DefaultNY:      10,
		ViewportWidth:  100,
		ViewportHeight: 100,
		Cache:          CacheConfig{Driver: "redis", TTL: time.Hour},
	}

	err := cfg.Validate()

	var cfgErr *ConfigurationError
	is.True(errors.As(err, &cfgErr))
	is.Equal(len(cfgErr.Errors.Errors), 4)
	is.True(strings.Contains(err.Error(), "api_base_url is required"))
	is.True(strings.Contains(err.Error(), "weather_base_url"))
	is.True(strings.Contains(err.Error(), "cache.dsn is required"))
}

func TestLoadFailsWithoutBaseURL(t *testing.T) {
	is := is.New(t)

	t.Setenv("WINDVIZ_API_BASE_URL", "")

	_, err := Load("")
	var cfgErr *ConfigurationError
	is.True(errors.As(err, &cfgErr))
}
