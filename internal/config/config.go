// Package config defines the immutable per-store configuration, loaded
// from YAML files and environment variables and validated before any
// network call is attempted.
package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/caskstore/caskstore/pkg/errors"
)

// Config represents the configuration of one object store instance. It is
// constructed once at store-open time and never mutated afterwards; the
// store that opened it is its exclusive owner.
type Config struct {
	// Identifier optionally names this store for multi-store disambiguation.
	Identifier string `yaml:"identifier"`

	// Bucket is the backing bucket name. Required.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key written or read through the
	// store.
	Prefix string `yaml:"prefix"`

	// Endpoint is the absolute URL of the backing service. Required; a
	// canonical AWS endpoint selects virtual-hosted addressing, anything
	// else path-style.
	Endpoint string `yaml:"endpoint"`

	// Region is the signing region. May be empty when derivable from a
	// canonical AWS endpoint; GCS-compatible endpoints override it with
	// the fixed "auto" token.
	Region string `yaml:"region"`

	// Per-phase operation timeouts.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ListTimeout  time.Duration `yaml:"list_timeout"`

	// Retry policy.
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`

	// MaxConcurrency bounds in-flight requests per store instance.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Compress stores payloads gzip-encoded; reads decompress
	// transparently. Content hashes always cover the logical bytes.
	Compress bool `yaml:"compress"`

	// CircuitBreaker tunables for the transport breaker.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// Metrics enables the prometheus collector.
	Metrics bool `yaml:"metrics"`
}

// CircuitBreakerConfig represents circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// NewDefault returns a configuration with sensible defaults. Bucket and
// Endpoint have no defaults and must be supplied.
func NewDefault() *Config {
	return &Config{
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		ListTimeout:    30 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  30 * time.Second,
		MaxConcurrency: 8,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the receiver.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"failed to read config file %s", filename).WithCause(err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"failed to parse config file %s", filename).WithCause(err)
	}
	return nil
}

// LoadFromEnv applies CASKSTORE_* environment variables over the receiver.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("CASKSTORE_S3_BUCKET"); val != "" {
		c.Bucket = val
	}
	if val := os.Getenv("CASKSTORE_S3_ENDPOINT"); val != "" {
		c.Endpoint = val
	}
	if val := os.Getenv("CASKSTORE_S3_PREFIX"); val != "" {
		c.Prefix = val
	}
	if val := os.Getenv("CASKSTORE_S3_REGION"); val != "" {
		c.Region = val
	}
	if val := os.Getenv("CASKSTORE_IDENTIFIER"); val != "" {
		c.Identifier = val
	}
	if val := os.Getenv("CASKSTORE_READ_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			c.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("CASKSTORE_WRITE_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			c.WriteTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("CASKSTORE_LIST_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			c.ListTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("CASKSTORE_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxRetries = n
		}
	}
	if val := os.Getenv("CASKSTORE_RETRY_BASE_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			c.RetryBaseDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("CASKSTORE_RETRY_MAX_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			c.RetryMaxDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("CASKSTORE_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxConcurrency = n
		}
	}
}

// Validate checks the configuration. Missing bucket or endpoint is a
// configuration error surfaced here, before any network call.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New(errors.ErrCodeMissingConfig, "bucket name cannot be empty")
	}
	if c.Endpoint == "" {
		return errors.New(errors.ErrCodeMissingConfig, "endpoint must be configured")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"endpoint %q is not an absolute URL", c.Endpoint).WithCause(err)
	}
	if c.MaxRetries < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "max_retries must be at least 1")
	}
	if c.MaxConcurrency < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "max_concurrency must be at least 1")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ListTimeout <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, "timeouts must be positive")
	}
	return nil
}
