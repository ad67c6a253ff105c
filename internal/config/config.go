// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"nutrimood/internal/llm"
	"nutrimood/internal/matching"
)

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CatalogConfig locates the menu export. Location is a file path or an
// s3://bucket/key URI.
type CatalogConfig struct {
	Location    string `yaml:"location"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
}

type MatchingConfig struct {
	TopK    int              `yaml:"top_k"`
	Weights matching.Weights `yaml:"weights"`
}

type FormatterConfig struct {
	MaxChars int `yaml:"max_chars"`
}

// SessionConfig selects the conversation store. Backend is "memory" or "sqlite".
type SessionConfig struct {
	Backend              string `yaml:"backend"`
	DBPath               string `yaml:"db_path"`
	MaxHistory           int    `yaml:"max_history"`
	HistoryLimit         int    `yaml:"history_limit"`
	IdleTTLMinutes       int    `yaml:"idle_ttl_minutes"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
}

// AnalyticsConfig selects where conversation records go: "none", "sqlite"
// (the session database) or "postgres".
type AnalyticsConfig struct {
	Backend        string `yaml:"backend"`
	DatabaseURLEnv string `yaml:"database_url_env"`
	DatabaseURL    string `yaml:"-"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Matching  MatchingConfig  `yaml:"matching"`
	Formatter FormatterConfig `yaml:"formatter"`
	Session   SessionConfig   `yaml:"session"`
	LLM       llm.Config      `yaml:"llm"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8000},
		Catalog:   CatalogConfig{Location: "data/foods.json"},
		Matching:  MatchingConfig{TopK: 5, Weights: matching.DefaultWeights()},
		Formatter: FormatterConfig{MaxChars: 2000},
		Session: SessionConfig{
			Backend:              "memory",
			DBPath:               "nutrimood.db",
			MaxHistory:           50,
			HistoryLimit:         10,
			IdleTTLMinutes:       24 * 60,
			SweepIntervalMinutes: 60,
		},
		LLM: llm.Config{
			Provider:    "mock",
			MaxTokens:   1000,
			Temperature: 0.7,
			TopP:        0.9,
			TimeoutSecs: 60,
		},
		Analytics: AnalyticsConfig{Backend: "none", DatabaseURLEnv: "DATABASE_URL"},
		Log:       LogConfig{Env: "development", Level: "info"},
	}
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Host = getEnv("NUTRIMOOD_HOST", cfg.Server.Host)
	if port, err := strconv.Atoi(os.Getenv("NUTRIMOOD_PORT")); err == nil {
		cfg.Server.Port = port
	}
	cfg.Catalog.Location = getEnv("FOOD_DATA_PATH", cfg.Catalog.Location)
	cfg.Catalog.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.Catalog.S3AccessKey)
	cfg.Catalog.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.Catalog.S3SecretKey)
	cfg.Session.Backend = getEnv("NUTRIMOOD_SESSION_BACKEND", cfg.Session.Backend)
	cfg.Session.DBPath = getEnv("NUTRIMOOD_DB_PATH", cfg.Session.DBPath)
	cfg.LLM.Provider = getEnv("NUTRIMOOD_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("NUTRIMOOD_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Region = getEnv("AWS_REGION", cfg.LLM.Region)
	cfg.Analytics.Backend = getEnv("NUTRIMOOD_ANALYTICS_BACKEND", cfg.Analytics.Backend)
	cfg.Log.Env = getEnv("ENV", cfg.Log.Env)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// applyConfigDefaults fills what a partial file left empty and resolves
// secrets named by *_env fields.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Matching.TopK == 0 {
		cfg.Matching.TopK = 5
	}
	if cfg.Matching.Weights == (matching.Weights{}) {
		cfg.Matching.Weights = matching.DefaultWeights()
	}
	if cfg.Formatter.MaxChars == 0 {
		cfg.Formatter.MaxChars = 2000
	}
	if cfg.Session.MaxHistory == 0 {
		cfg.Session.MaxHistory = 50
	}
	if cfg.Session.HistoryLimit == 0 {
		cfg.Session.HistoryLimit = 10
	}

	switch cfg.LLM.Provider {
	case "bedrock":
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "anthropic.claude-3-sonnet-20240229-v1:0"
		}
		if cfg.LLM.Region == "" {
			cfg.LLM.Region = "us-east-1"
		}
	case "gemini":
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gemini-2.0-flash"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
		}
	case "openai":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}

	if cfg.Analytics.DatabaseURLEnv == "" {
		cfg.Analytics.DatabaseURLEnv = "DATABASE_URL"
	}
	cfg.Analytics.DatabaseURL = os.Getenv(cfg.Analytics.DatabaseURLEnv)
}

// Validate rejects settings the services cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Catalog.Location == "" {
		return errors.New("catalog.location is required")
	}
	if c.Matching.TopK <= 0 {
		return fmt.Errorf("matching.top_k must be positive, got %d", c.Matching.TopK)
	}
	if err := c.Matching.Weights.Validate(); err != nil {
		return fmt.Errorf("matching.weights: %w", err)
	}
	if c.Formatter.MaxChars <= 0 {
		return fmt.Errorf("formatter.max_chars must be positive, got %d", c.Formatter.MaxChars)
	}
	if c.Session.MaxHistory <= 0 || c.Session.HistoryLimit <= 0 {
		return errors.New("session.max_history and session.history_limit must be positive")
	}

	switch c.Session.Backend {
	case "memory":
	case "sqlite":
		if c.Session.DBPath == "" {
			return errors.New("session.db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	switch c.LLM.Provider {
	case "mock", "bedrock", "gemini":
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm provider openai needs %s to be set", c.LLM.APIKeyEnv)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Analytics.Backend {
	case "none":
	case "sqlite":
		if c.Session.Backend != "sqlite" {
			return errors.New("sqlite analytics requires the sqlite session backend")
		}
	case "postgres":
		if c.Analytics.DatabaseURL == "" {
			return fmt.Errorf("postgres analytics needs %s to be set", c.Analytics.DatabaseURLEnv)
		}
	default:
		return fmt.Errorf("unknown analytics backend %q", c.Analytics.Backend)
	}
	return nil
}

func (c *AppConfig) IdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
