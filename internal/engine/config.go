package engine

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
)

// Config is the top-level configuration for the comparison engine and
// its provider adapters, loaded from YAML at startup.
type Config struct {
	// Providers lists the backend adapters to construct. At least one
	// provider must be configured.
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	// Concurrency caps how many models generate simultaneously during
	// a comparison. Zero selects the default of 3.
	Concurrency int `yaml:"concurrency" validate:"omitempty,min=1,max=16"`
	// MaxCompareModels caps how many models one comparison may request.
	// Zero selects the default of 5.
	MaxCompareModels int `yaml:"max_compare_models" validate:"omitempty,min=2,max=10"`
	// MaxRetries bounds timeout retries per generation. Zero selects
	// the default of 3.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,min=0,max=10"`
	// Cache selects the shared store backing model lists, job
	// snapshots, and metric windows.
	Cache CacheConfig `yaml:"cache"`
	// MetricsLogPath is the JSONL file receiving every generation
	// record. Empty disables the durable log.
	MetricsLogPath string `yaml:"metrics_log_path"`
	// RateLimitPerSecond paces outbound generations per provider.
	// Zero disables rate limiting.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second" validate:"omitempty,min=0.1,max=100"`
}

// ProviderConfig describes one backend adapter.
type ProviderConfig struct {
	// Type selects the adapter implementation.
	Type string `yaml:"type" validate:"required,oneof=openai anthropic google perplexity ollama"`
	// APIKeyEnv names the environment variable holding the credential.
	// Required for every type except ollama; the variable must be set
	// and non-empty at load time.
	APIKeyEnv string `yaml:"api_key_env" validate:"required_unless=Type ollama"`
	// BaseURL overrides the backend endpoint. Mainly for ollama and
	// OpenAI-compatible gateways.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// TimeoutSeconds is the base per-call deadline. Zero selects the
	// adapter default of 30.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=600"`
	// ExtendedTimeoutSeconds is the deadline for the slowest model
	// families. Zero selects the adapter default of 90.
	ExtendedTimeoutSeconds int `yaml:"extended_timeout_seconds" validate:"omitempty,min=1,max=600"`
}

// APIKey resolves the credential from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// CacheConfig selects the shared store backend. An empty RedisAddr
// falls back to the in-process memory store.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"omitempty,min=0,max=15"`
}

const (
	defaultConcurrency      = 3
	defaultMaxCompareModels = 5
	defaultMaxRetries       = 3
)

// LoadConfig reads and validates a YAML config file. A configured
// provider whose credential variable is unset fails here, before any
// request can observe a half-working engine.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("engine: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig validates raw YAML and applies defaults.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w: %w", domain.ErrInvalidConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("engine: %w: %w", domain.ErrInvalidConfiguration, err)
	}

	for _, p := range cfg.Providers {
		if p.Type == "ollama" {
			continue
		}
		if p.APIKey() == "" {
			return Config{}, fmt.Errorf("engine: %w: provider %s: environment variable %s is unset or empty",
				domain.ErrInvalidConfiguration, p.Type, p.APIKeyEnv)
		}
	}

	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxCompareModels == 0 {
		cfg.MaxCompareModels = defaultMaxCompareModels
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return cfg, nil
}
