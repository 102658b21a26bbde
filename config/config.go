// Package config loads runtime configuration from a YAML file and the
// environment.
//
// Precedence, lowest to highest: Default(), the YAML file, environment
// variables. The environment name of each field is fixed by its envconfig
// tag; durations accept Go syntax like "250ms" or "5s" in both sources.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pkorhonen/stitch/pkg/flow"
)

// Duration is a time.Duration that unmarshals from strings like "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, the hook envconfig
// decodes environment values through.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// AsDuration returns the value as a time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// Config is the full configuration surface.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `yaml:"name" envconfig:"STITCH_SERVICE_NAME"`
	Environment string `yaml:"environment" envconfig:"STITCH_ENVIRONMENT"`
}

// TelemetryConfig configures trace export and metrics exposition. An empty
// OTLPEndpoint falls back to the standard OTel env var and default.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsAddr  string `yaml:"metrics_addr" envconfig:"STITCH_METRICS_ADDR"`
}

// DefaultsConfig holds the starting parameters services hand to the
// recovery and cache primitives.
type DefaultsConfig struct {
	Retry   RetryConfig   `yaml:"retry"`
	Timeout Duration      `yaml:"timeout" envconfig:"STITCH_DEFAULT_TIMEOUT"`
	Cache   CacheConfig   `yaml:"cache"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig mirrors flow.RetryStrategy; see Strategy.
type RetryConfig struct {
	MaxRetries  int      `yaml:"max_retries" envconfig:"STITCH_RETRY_MAX_RETRIES"`
	BackoffBase Duration `yaml:"backoff_base" envconfig:"STITCH_RETRY_BACKOFF_BASE"`
	Multiplier  float64  `yaml:"multiplier" envconfig:"STITCH_RETRY_MULTIPLIER"`
	MaxBackoff  Duration `yaml:"max_backoff" envconfig:"STITCH_RETRY_MAX_BACKOFF"`
	Jitter      bool     `yaml:"jitter" envconfig:"STITCH_RETRY_JITTER"`
}

// Strategy converts the retry settings to a flow.RetryStrategy.
func (r RetryConfig) Strategy() flow.RetryStrategy {
	return flow.RetryStrategy{
		MaxRetries:  r.MaxRetries,
		BackoffBase: r.BackoffBase.AsDuration(),
		Multiplier:  r.Multiplier,
		MaxBackoff:  r.MaxBackoff.AsDuration(),
		Jitter:      r.Jitter,
	}
}

// CacheConfig holds cache primitive parameters.
type CacheConfig struct {
	TTL     Duration `yaml:"ttl" envconfig:"STITCH_CACHE_TTL"`
	MaxSize int      `yaml:"max_size" envconfig:"STITCH_CACHE_MAX_SIZE"`
}

// BreakerConfig holds circuit breaker parameters.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold" envconfig:"STITCH_BREAKER_FAILURE_THRESHOLD"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout" envconfig:"STITCH_BREAKER_RECOVERY_TIMEOUT"`
}

// Default returns the configuration used when nothing is provided. Every
// default is stated here; there are no hidden ones.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "stitch",
			Environment: "development",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			MetricsAddr:  ":9090",
		},
		Defaults: DefaultsConfig{
			Retry: RetryConfig{
				MaxRetries:  3,
				BackoffBase: Duration(100 * time.Millisecond),
				Multiplier:  2,
				MaxBackoff:  Duration(5 * time.Second),
				Jitter:      true,
			},
			Timeout: Duration(30 * time.Second),
			Cache: CacheConfig{
				TTL:     Duration(5 * time.Minute),
				MaxSize: 1024,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  Duration(30 * time.Second),
			},
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return finish(cfg)
}

// FromEnv returns the defaults with environment overrides applied, for
// deployments configured entirely through the environment.
func FromEnv() (Config, error) {
	return finish(Default())
}

func finish(cfg Config) (Config, error) {
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the primitives would reject.
func (c Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("config: service name must not be empty")
	}
	if c.Defaults.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry max_retries must not be negative")
	}
	if m := c.Defaults.Retry.Multiplier; m != 0 && m < 1 {
		return fmt.Errorf("config: retry multiplier must be at least 1, got %v", m)
	}
	if c.Defaults.Retry.BackoffBase < 0 || c.Defaults.Retry.MaxBackoff < 0 {
		return fmt.Errorf("config: retry backoff durations must not be negative")
	}
	if c.Defaults.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	if c.Defaults.Cache.TTL < 0 {
		return fmt.Errorf("config: cache ttl must not be negative")
	}
	if c.Defaults.Cache.MaxSize < 0 {
		return fmt.Errorf("config: cache max_size must not be negative")
	}
	if c.Defaults.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("config: breaker failure_threshold must be at least 1")
	}
	if c.Defaults.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("config: breaker recovery_timeout must be positive")
	}
	return nil
}
