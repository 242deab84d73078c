package config

import (
	"fmt"

	"github.com/kbukum/dataflow/observability"
	"github.com/kbukum/dataflow/resilience"
	"github.com/kbukum/dataflow/sizing"
	"github.com/kbukum/dataflow/status"
)

// AppConfig is the full configuration of the dataflow CLI. Recipes carry
// per-run settings; AppConfig carries what stays the same across runs.
type AppConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Tracing   observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics   observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
	Status    status.RedisConfig         `yaml:"status" mapstructure:"status"`
	Resources sizing.Config              `yaml:"resources" mapstructure:"resources"`
	// Retry applies to HTTP ingest.
	Retry resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
	// MaxProc caps the worker count of every operator; zero means no cap.
	MaxProc int `yaml:"max_proc" mapstructure:"max_proc"`
}

// ApplyDefaults fills every section.
func (c *AppConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.Environment
	}
	c.Tracing.ApplyDefaults()
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.Name
	}
	if c.Metrics.Environment == "" {
		c.Metrics.Environment = c.Environment
	}
	c.Metrics.ApplyDefaults()
	c.Status.ApplyDefaults()
	c.Resources.ApplyDefaults()

	def := resilience.DefaultRetryConfig()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = def.InitialBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = def.MaxBackoff
	}
	if c.Retry.BackoffFactor == 0 {
		c.Retry.BackoffFactor = def.BackoffFactor
	}
	if c.Retry.RetryIf == nil {
		c.Retry.RetryIf = def.RetryIf
	}
}

// Validate validates every section.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("config.status: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config.retry.max_attempts must be at least 1 (got: %d)", c.Retry.MaxAttempts)
	}
	if c.MaxProc < 0 {
		return fmt.Errorf("config.max_proc must not be negative (got: %d)", c.MaxProc)
	}
	return nil
}

// Load reads the configuration of serviceName, applies defaults and
// validates it.
func Load(serviceName string, opts ...LoaderOption) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
