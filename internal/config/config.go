// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package config

import (
	"errors"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Provider names understood by the wiring layer.
const (
	ProviderLiteLLM    = "litellm"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
)

var (
	knownProviders     = []string{ProviderAnthropic, ProviderGoogle, ProviderLiteLLM, ProviderOpenAI, ProviderOpenRouter}
	embeddingProviders = []string{ProviderGoogle, ProviderLiteLLM, ProviderOpenAI}
	vectorBackends     = []string{"chromem", "qdrant", "sqlite"}
)

// Config is the top-level Palais configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking" yaml:"networking"`
	Storage    StorageConfig             `mapstructure:"storage" yaml:"storage"`
	Vector     VectorConfig              `mapstructure:"vector" yaml:"vector"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Memory     MemoryConfig              `mapstructure:"memory" yaml:"memory"`
	Logging    LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen         string          `mapstructure:"listen" yaml:"listen"`
	CORSOrigins    []string        `mapstructure:"cors_origins" yaml:"cors_origins"`
	TrustedProxies []string        `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	APIToken       string          `mapstructure:"api_token" yaml:"api_token"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig sets per-IP request limits. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// StorageConfig selects the graph store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	URL        string        `mapstructure:"url" yaml:"url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Dimensions int           `mapstructure:"dimensions" yaml:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ProviderConfig holds credentials and endpoint for an AI provider. APIKey
// may be a keyring://service/key reference.
type ProviderConfig struct {
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MemoryConfig tunes the memory pipelines. An empty embedding provider
// disables embeddings; an empty extraction provider disables extraction.
type MemoryConfig struct {
	EmbeddingProvider  string        `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingModel     string        `mapstructure:"embedding_model" yaml:"embedding_model"`
	ExtractionProvider string        `mapstructure:"extraction_provider" yaml:"extraction_provider"`
	ExtractionModel    string        `mapstructure:"extraction_model" yaml:"extraction_model"`
	EnrichNeighbors    int           `mapstructure:"enrich_neighbors" yaml:"enrich_neighbors"`
	EnrichThreshold    float64       `mapstructure:"enrich_threshold" yaml:"enrich_threshold"`
	ExtractWindow      int           `mapstructure:"extract_window" yaml:"extract_window"`
	MaxTriplets        int           `mapstructure:"max_triplets" yaml:"max_triplets"`
	AutoExtract        bool          `mapstructure:"auto_extract" yaml:"auto_extract"`
	Workers            int           `mapstructure:"workers" yaml:"workers"`
	QueueSize          int           `mapstructure:"queue_size" yaml:"queue_size"`
	CallTimeout        time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	QueryCacheBytes    int64         `mapstructure:"query_cache_bytes" yaml:"query_cache_bytes"`
	// RedactSecrets masks credentials in node text before storage.
	RedactSecrets bool `mapstructure:"redact_secrets" yaml:"redact_secrets"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:7420")
	v.SetDefault("networking.rate_limit.requests_per_second", 0)
	v.SetDefault("networking.rate_limit.burst", 0)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.url", "http://qdrant:6333")
	v.SetDefault("vector.collection", "palais_memory")
	v.SetDefault("vector.dimensions", 1536)
	v.SetDefault("vector.timeout", "10s")

	v.SetDefault("providers.litellm.endpoint", "http://litellm:4000/v1")
	v.SetDefault("providers.litellm.timeout", "30s")

	v.SetDefault("memory.embedding_provider", ProviderLiteLLM)
	v.SetDefault("memory.embedding_model", "text-embedding-3-small")
	v.SetDefault("memory.extraction_provider", ProviderLiteLLM)
	v.SetDefault("memory.extraction_model", "deepseek/deepseek-chat")
	v.SetDefault("memory.enrich_neighbors", 5)
	v.SetDefault("memory.enrich_threshold", 0.8)
	v.SetDefault("memory.extract_window", 1000)
	v.SetDefault("memory.max_triplets", 5)
	v.SetDefault("memory.auto_extract", false)
	v.SetDefault("memory.workers", 4)
	v.SetDefault("memory.queue_size", 256)
	v.SetDefault("memory.call_timeout", "15s")
	v.SetDefault("memory.task_timeout", "10m")
	v.SetDefault("memory.query_cache_bytes", 16<<20)
	v.SetDefault("memory.redact_secrets", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv enables PALAIS_ environment overrides, with "." in keys
// replaced by "_" (PALAIS_VECTOR_URL sets vector.url).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PALAIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Load reads configuration from path (or defaults only when path is empty)
// with PALAIS_ environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// Validate checks the configuration for logical errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateMemory()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func invalid(format string, args ...any) error {
	return palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Networking.Listen); err != nil {
		errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q", c.Networking.Listen))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %q", portStr))
	}

	for i, cidr := range c.Networking.TrustedProxies {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			errs = append(errs, invalid("networking.trusted_proxies[%d] is not a valid CIDR, got %q", i, cidr))
		}
	}

	rl := c.Networking.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("networking.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if c.Storage.Backend != "sqlite" {
		errs = append(errs, invalid("storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, invalid("storage.data_dir must not be empty"))
	}

	if !slices.Contains(vectorBackends, c.Vector.Backend) {
		errs = append(errs, invalid("vector.backend must be one of %v, got %q", vectorBackends, c.Vector.Backend))
	}
	if c.Vector.Backend == "qdrant" && c.Vector.URL == "" {
		errs = append(errs, invalid("vector.url must not be empty for the qdrant backend"))
	}
	if c.Vector.Dimensions <= 0 {
		errs = append(errs, invalid("vector.dimensions must be greater than 0, got %d", c.Vector.Dimensions))
	}
	if c.Vector.Timeout < 0 {
		errs = append(errs, invalid("vector.timeout must not be negative, got %s", c.Vector.Timeout))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	for _, name := range slices.Sorted(maps.Keys(c.Providers)) {
		if !slices.Contains(knownProviders, name) {
			errs = append(errs, invalid("providers.%s is not a known provider %v", name, knownProviders))
		}
		if c.Providers[name].Timeout < 0 {
			errs = append(errs, invalid("providers.%s.timeout must not be negative", name))
		}
	}

	if p := c.Memory.EmbeddingProvider; p != "" {
		if !slices.Contains(embeddingProviders, p) {
			errs = append(errs, invalid("memory.embedding_provider must be one of %v, got %q", embeddingProviders, p))
		} else if _, ok := c.Providers[p]; !ok {
			errs = append(errs, invalid("memory.embedding_provider %q is not configured under providers", p))
		}
		if c.Memory.EmbeddingModel == "" {
			errs = append(errs, invalid("memory.embedding_model must not be empty when embeddings are enabled"))
		}
	}

	if p := c.Memory.ExtractionProvider; p != "" {
		if _, ok := c.Providers[p]; !ok {
			errs = append(errs, invalid("memory.extraction_provider %q is not configured under providers", p))
		}
		if c.Memory.ExtractionModel == "" {
			errs = append(errs, invalid("memory.extraction_model must not be empty when extraction is enabled"))
		}
	}

	return errs
}

func (c *Config) validateMemory() []error {
	var errs []error
	m := c.Memory

	if m.EnrichNeighbors <= 0 {
		errs = append(errs, invalid("memory.enrich_neighbors must be greater than 0, got %d", m.EnrichNeighbors))
	}
	if m.EnrichThreshold <= 0 || m.EnrichThreshold > 1 {
		errs = append(errs, invalid("memory.enrich_threshold must be in (0, 1], got %g", m.EnrichThreshold))
	}
	if m.ExtractWindow <= 0 {
		errs = append(errs, invalid("memory.extract_window must be greater than 0, got %d", m.ExtractWindow))
	}
	if m.MaxTriplets <= 0 {
		errs = append(errs, invalid("memory.max_triplets must be greater than 0, got %d", m.MaxTriplets))
	}
	if m.Workers <= 0 {
		errs = append(errs, invalid("memory.workers must be greater than 0, got %d", m.Workers))
	}
	if m.QueueSize <= 0 {
		errs = append(errs, invalid("memory.queue_size must be greater than 0, got %d", m.QueueSize))
	}
	if m.CallTimeout <= 0 {
		errs = append(errs, invalid("memory.call_timeout must be greater than 0, got %s", m.CallTimeout))
	}
	if m.TaskTimeout < m.CallTimeout {
		errs = append(errs, invalid("memory.task_timeout must be at least memory.call_timeout (%s), got %s", m.CallTimeout, m.TaskTimeout))
	}
	if m.QueryCacheBytes < 0 {
		errs = append(errs, invalid("memory.query_cache_bytes must not be negative, got %d", m.QueryCacheBytes))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}
