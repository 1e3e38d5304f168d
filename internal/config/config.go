// Package config assembles the engine configuration from a YAML file, a
// local .env file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig configures the relevance-scoring client.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url" env:"SIFT_LLM_BASE_URL"`
	Model          string  `yaml:"model" env:"SIFT_LLM_MODEL"`
	RateLimit      float64 `yaml:"rate_limit" env:"SIFT_LLM_RATE_LIMIT"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"SIFT_LLM_TIMEOUT_SECONDS"`
}

// Config is the full engine configuration. It is built once in main and
// passed down explicitly; nothing reads it from a global.
type Config struct {
	DatabasePath string `yaml:"database_path" env:"SIFT_DATABASE_PATH"`
	InboxPath    string `yaml:"inbox_path" env:"SIFT_INBOX_PATH"`
	MaxResults   int    `yaml:"max_results" env:"SIFT_MAX_RESULTS"`

	LLM LLMConfig `yaml:"llm"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath: "sift.db",
		InboxPath:    "inbox.jsonl",
		MaxResults:   50,
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.1",
			RateLimit:      2.0,
			TimeoutSeconds: 120,
		},
	}
}

// Load builds the configuration. Precedence, lowest to highest: defaults,
// the YAML file at path, environment variables (a .env file in the working
// directory is folded into the environment first). An empty path skips the
// YAML layer; a named file that does not exist is an error.
func Load(path string) (Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}
