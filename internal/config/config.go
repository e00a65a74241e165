// Package config loads mindful.yaml and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryan-buckman/mindful/internal/opml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "mindful.yaml"

// Config holds all configuration for the service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Chat       ChatConfig       `yaml:"chat"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Detector   DetectorConfig   `yaml:"detector"`
	Articles   ArticlesConfig   `yaml:"articles"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mongo, memory
	DSN    string `yaml:"dsn"`
	Name   string `yaml:"name"` // mongo database
}

// AuthConfig configures session token validation.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// RealtimeConfig configures the fan-out hub.
type RealtimeConfig struct {
	Buffer int `yaml:"buffer"`
}

// ChatConfig configures the Gemini assistant.
type ChatConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ClassifierConfig points at the expression inference service.
type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DetectorConfig tunes the sampling loop.
type DetectorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ArticlesConfig lists the wellness feeds to poll.
type ArticlesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Feeds    []string      `yaml:"feeds"`
	OPML     string        `yaml:"opml"` // optional OPML file with more feeds
	Interval time.Duration `yaml:"interval"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "mindful.db",
			Name:   "MentalHealth",
		},
		Auth: AuthConfig{
			Issuer:   "mindful",
			TokenTTL: 24 * time.Hour,
		},
		Realtime: RealtimeConfig{Buffer: 16},
		Chat:     ChatConfig{Model: "gemini-2.5-flash"},
		Classifier: ClassifierConfig{
			Timeout: 5 * time.Second,
		},
		Detector: DetectorConfig{Interval: 100 * time.Millisecond},
		Articles: ArticlesConfig{Interval: 30 * time.Minute},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Articles.OPML != "" && !filepath.IsAbs(cfg.Articles.OPML) {
			cfg.Articles.OPML = filepath.Join(filepath.Dir(path), cfg.Articles.OPML)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MINDFUL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("MINDFUL_ADDR") == "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("MINDFUL_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		// a URL without an explicit driver is a postgres or mongo connection string
		if os.Getenv("MINDFUL_DB_DRIVER") == "" {
			switch {
			case strings.HasPrefix(v, "postgres://"), strings.HasPrefix(v, "postgresql://"):
				c.Database.Driver = "postgres"
			case strings.HasPrefix(v, "mongodb://"), strings.HasPrefix(v, "mongodb+srv://"):
				c.Database.Driver = "mongo"
			}
		}
	}
	if v := os.Getenv("MINDFUL_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Chat.APIKey = v
	}
	if v := os.Getenv("MINDFUL_CLASSIFIER_URL"); v != "" {
		c.Classifier.URL = v
	}
}

var validDrivers = map[string]bool{"sqlite": true, "postgres": true, "mongo": true, "memory": true}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database driver: %q (valid: sqlite, postgres, mongo, memory)", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set for driver %s (or set DATABASE_URL)", c.Database.Driver)
	}
	if c.Realtime.Buffer <= 0 {
		return fmt.Errorf("realtime.buffer must be positive, got %d", c.Realtime.Buffer)
	}
	if c.Detector.Interval <= 0 {
		return fmt.Errorf("detector.interval must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}

// FeedURLs returns the configured feeds followed by those listed in the
// OPML file, without duplicates.
func (a ArticlesConfig) FeedURLs() ([]string, error) {
	urls := append([]string(nil), a.Feeds...)
	if a.OPML != "" {
		feeds, err := opml.ParseFile(a.OPML)
		if err != nil {
			return nil, fmt.Errorf("load article feeds: %w", err)
		}
		urls = append(urls, opml.URLs(feeds)...)
	}
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, nil
}
