// Package config loads and validates the mise configuration from YAML,
// with environment overrides for secrets so API keys never have to live
// in the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mise/internal/logging"
)

// LLMConfig selects the classification oracle and its request shape.
// Durations are plain integers (seconds) because yaml.v3 has no native
// decoding for time.Duration strings.
type LLMConfig struct {
	Provider       string   `yaml:"provider"` // "openai" or "gemini"
	APIKeys        []string `yaml:"api_keys"` // one worker lane per key
	Model          string   `yaml:"model"`
	BaseURL        string   `yaml:"base_url"` // openai-compatible endpoint override
	Temperature    float64  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// RateConfig is the per-key request budget.
type RateConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerDay    int `yaml:"requests_per_day"`
}

// RetryConfig tunes retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBaseMs     int     `yaml:"backoff_base_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ClassificationConfig tunes record quality handling.
type ClassificationConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	SchemaVersion   string  `yaml:"schema_version"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Config is the full mise configuration.
type Config struct {
	DataDir        string               `yaml:"data_dir"`
	LLM            LLMConfig            `yaml:"llm"`
	Rate           RateConfig           `yaml:"rate"`
	Retry          RetryConfig          `yaml:"retry"`
	Store          StoreConfig          `yaml:"store"`
	Classification ClassificationConfig `yaml:"classification"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir: ".mise",
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.1,
			MaxTokens:      8192,
			TimeoutSeconds: 120,
		},
		Rate: RateConfig{
			RequestsPerMinute: 10,
			RequestsPerDay:    1000,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffBaseMs:     1000,
			BackoffMultiplier: 2.0,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".mise", "mise.db"),
		},
		Classification: ClassificationConfig{
			ConfidenceFloor: 0.7,
			SchemaVersion:   "1.0",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, merges it over defaults, applies
// environment overrides, and validates. A missing file is not an error:
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		logging.Boot("loaded config from %s", path)
	case os.IsNotExist(err):
		logging.Boot("no config file at %s, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv merges MISE_-prefixed environment variables. Only secrets and
// the endpoint live here; everything else belongs in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("MISE_API_KEY"); v != "" {
		// Comma-separated keys become parallel worker lanes.
		c.LLM.APIKeys = nil
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				c.LLM.APIKeys = append(c.LLM.APIKeys, key)
			}
		}
	}
	if v := os.Getenv("MISE_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MISE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("MISE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q (want openai or gemini)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("llm timeout_seconds must be >= 0, got %d", c.LLM.TimeoutSeconds)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry backoff_multiplier must be >= 1, got %.2f", c.Retry.BackoffMultiplier)
	}
	if c.Classification.ConfidenceFloor < 0 || c.Classification.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence_floor %.2f out of range [0, 1]", c.Classification.ConfidenceFloor)
	}
	if c.Classification.SchemaVersion == "" {
		return fmt.Errorf("classification schema_version is required")
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store database_path is required")
	}
	return nil
}

// BackoffBase converts the millisecond setting to a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffBaseMs) * time.Millisecond
}

// LLMTimeout converts the seconds setting to a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
