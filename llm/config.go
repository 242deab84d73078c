package llm

import (
	"fmt"
	"time"

	"github.com/kbukum/dataflow/resilience"
)

// Config holds configuration for creating a provider. The Dialect field
// selects the registered factory.
type Config struct {
	// Name identifies this provider in logs and errors.
	Name string `yaml:"name" mapstructure:"name"`
	// Dialect selects the provider mapping, e.g. "openai" or "ollama".
	Dialect string `yaml:"dialect" mapstructure:"dialect"`
	// BaseURL is the provider's API base URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Model is the default model.
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	// APIKey is sent as a Bearer token when set.
	APIKey string `yaml:"-" mapstructure:"-"`
	// Timeout bounds one HTTP attempt. Defaults to 120s.
	Timeout time.Duration          `yaml:"timeout" mapstructure:"timeout"`
	Headers map[string]string      `yaml:"headers" mapstructure:"headers"`
	Retry   resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Name == "" && c.Dialect != "" {
		c.Name = c.Dialect + "-llm"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = resilience.DefaultRetryConfig()
	}
}

// Validate checks the fields every HTTP dialect needs.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm: base_url is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("llm: timeout must be non-negative")
	}
	return nil
}
