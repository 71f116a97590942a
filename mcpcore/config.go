package mcpcore

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nexuskit/mcp-core/recovery"
)

// Config is the declarative shape of the recognized configuration options
// (spec.md §6), loadable from YAML so a deployment can describe a server
// without recompiling it.
type Config struct {
	Server         ServerSection          `yaml:"server"`
	RateLimit      *RateLimitSection      `yaml:"rate_limit,omitempty"`
	CircuitBreaker *CircuitBreakerSection `yaml:"circuit_breaker,omitempty"`
	Compression    *CompressionSection    `yaml:"compression,omitempty"`
	Recovery       *recovery.Policy       `yaml:"recovery,omitempty"`
}

type ServerSection struct {
	Name                  string `yaml:"name"`
	Version               string `yaml:"version"`
	RequestTimeoutMS      int64  `yaml:"request_timeout_ms"`
	MaxInFlightPerSession int    `yaml:"max_in_flight_per_session"`
}

type RateLimitSection struct {
	Rate   float64       `yaml:"rate"`
	Burst  int           `yaml:"burst"`
	Window time.Duration `yaml:"window"`
}

type CircuitBreakerSection struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	Timeout          time.Duration `yaml:"timeout"`
}

// CompressionAlgo enumerates the compression algorithms a config may
// select. Deflate is accepted for forward compatibility with spec.md §6
// but only Gzip is implemented by middleware.Compression today.
type CompressionAlgo string

const (
	CompressionNone    CompressionAlgo = "None"
	CompressionGzip    CompressionAlgo = "Gzip"
	CompressionDeflate CompressionAlgo = "Deflate"
)

type CompressionSection struct {
	Algo    CompressionAlgo `yaml:"algo"`
	MinSize int             `yaml:"min_size"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "mcpcore: reading config file")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "mcpcore: parsing config YAML")
	}
	return &cfg, nil
}

// RequestTimeout converts the configured millisecond value into a
// time.Duration for protocol.WithRequestTimeout.
func (s ServerSection) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}
