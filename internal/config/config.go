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

	"priceadapter/internal/provider/coingecko"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type CoinGecko struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	// BaseURL overrides the pro/public default chosen from APIKey.
	BaseURL               string `json:"base_url" yaml:"base_url"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	Burst                 int    `json:"burst" yaml:"burst"`
	MaxRetries            int    `json:"max_retries" yaml:"max_retries"`
	CatalogTTLSec         int    `json:"catalog_ttl_sec" yaml:"catalog_ttl_sec"`
	// CatalogRefreshSec enables the background catalog refresh loop when > 0.
	CatalogRefreshSec int `json:"catalog_refresh_sec" yaml:"catalog_refresh_sec"`
}

type Config struct {
	Server    Server    `json:"server" yaml:"server"`
	Logging   Logging   `json:"logging" yaml:"logging"`
	CoinGecko CoinGecko `json:"coingecko" yaml:"coingecko"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "8080", RequestTimeoutSec: 30},
		Logging: Logging{Level: "info", Format: "json"},
		CoinGecko: CoinGecko{
			MaxRequestsPerMinute: 30,
			Burst:                5,
			MaxRetries:           3,
			CatalogTTLSec:        600,
			CatalogRefreshSec:    0,
		},
	}
}

// Load reads config from path: YAML for .yaml/.yml files, JSON otherwise. If
// path is empty, config.yaml then config.json in the working directory are
// tried. A missing file yields defaults. Environment variables override
// select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// RequestTimeout bounds one inbound request end to end.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// ResolvedBaseURL returns the configured base URL, or the pro API when a key
// is set and the public API otherwise.
func (c CoinGecko) ResolvedBaseURL() string {
	switch {
	case c.BaseURL != "":
		return strings.TrimRight(c.BaseURL, "/")
	case c.APIKey != "":
		return coingecko.ProBaseURL
	default:
		return coingecko.PublicBaseURL
	}
}

func (c CoinGecko) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSec) * time.Second
}

func (c CoinGecko) CatalogRefresh() time.Duration {
	return time.Duration(c.CatalogRefreshSec) * time.Second
}

func (c CoinGecko) MinInterval() time.Duration {
	return time.Duration(c.MinRequestIntervalSec) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("API_KEY"); v != "" {
		cfg.CoinGecko.APIKey = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.CoinGecko.APIKey = v
	}
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		cfg.CoinGecko.BaseURL = v
	}
	envInt("COINGECKO_MAX_RPM", 0, &cfg.CoinGecko.MaxRequestsPerMinute)
	envInt("COINGECKO_BURST", 1, &cfg.CoinGecko.Burst)
	envInt("COINGECKO_MIN_INTERVAL_SEC", 0, &cfg.CoinGecko.MinRequestIntervalSec)
	envInt("COINGECKO_MAX_RETRIES", 0, &cfg.CoinGecko.MaxRetries)
	envInt("COINGECKO_CATALOG_TTL_SEC", 1, &cfg.CoinGecko.CatalogTTLSec)
	envInt("COINGECKO_CATALOG_REFRESH_SEC", 0, &cfg.CoinGecko.CatalogRefreshSec)
}

// envInt stores the integer value of key in dst when it parses and is >= floor.
func envInt(key string, floor int, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return
	}
	if x >= floor {
		*dst = x
	}
}
