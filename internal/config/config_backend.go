package config

import (
	"fmt"
	"time"
)

// Backend operation names, used for per-operation settings, circuit
// breakers and metrics.
const (
	OperationUpload   = "upload"
	OperationImprove  = "improve"
	OperationSummary  = "summary"
	OperationKeywords = "keywords"
	OperationDownload = "download"
)

// Operations lists every backend operation.
var Operations = []string{
	OperationUpload,
	OperationImprove,
	OperationSummary,
	OperationKeywords,
	OperationDownload,
}

// BackendConfig holds the connection to the review backend
type BackendConfig struct {
	// Global/fallback configuration
	BaseURL         string        `mapstructure:"baseURL"`
	APIToken        string        `mapstructure:"apiToken"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"maxRetries"`
	RetryBaseDelay  time.Duration `mapstructure:"retryBaseDelay"`
	MaxResponseSize int64         `mapstructure:"maxResponseSize"`

	// Operation-specific configurations
	Upload   OperationConfig `mapstructure:"upload"`
	Improve  OperationConfig `mapstructure:"improve"`
	Summary  OperationConfig `mapstructure:"summary"`
	Keywords OperationConfig `mapstructure:"keywords"`
	Download OperationConfig `mapstructure:"download"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// OperationConfig holds settings for one backend operation. Nil fields
// fall back to the global backend settings.
type OperationConfig struct {
	Timeout        *time.Duration       `mapstructure:"timeout"`
	MaxRetries     *int                 `mapstructure:"maxRetries"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationConfig) {
	if opCfg.Timeout == nil {
		timeout := c.Backend.Timeout
		opCfg.Timeout = &timeout
	}
	if opCfg.MaxRetries == nil {
		retries := c.Backend.MaxRetries
		opCfg.MaxRetries = &retries
	}
}

// GetOperationConfig returns the settings of a backend operation with
// fallback to the global backend config
func (c *Config) GetOperationConfig(operation string) (OperationConfig, error) {
	var opCfg OperationConfig
	switch operation {
	case OperationUpload:
		opCfg = c.Backend.Upload
	case OperationImprove:
		opCfg = c.Backend.Improve
	case OperationSummary:
		opCfg = c.Backend.Summary
	case OperationKeywords:
		opCfg = c.Backend.Keywords
	case OperationDownload:
		opCfg = c.Backend.Download
	default:
		return OperationConfig{}, fmt.Errorf("unknown backend operation: %s", operation)
	}

	c.applyOperationDefaults(&opCfg)
	return opCfg, nil
}
