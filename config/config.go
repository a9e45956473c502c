// Package config loads pgvreduce settings from defaults, an optional TOML
// file and PGVREDUCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hubenschmidt/pgvreduce/core"
)

// Default configuration values.
const (
	DefaultDatabaseURL      = "postgres://localhost/pgv"
	DefaultEmbeddingURL     = "http://localhost:11434"
	DefaultModel            = "llama3:8b"
	DefaultDimensions       = 4096
	DefaultEmbeddingTimeout = 60 * time.Second
	DefaultTopK             = 5
	DefaultTolerance        = 1e-6
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"

	EnvPrefix = "PGVREDUCE_"
)

// Config holds everything a run needs. Zero values for BatchSize,
// RequestsPerSecond and EmbeddingTimeout mean "single commit", "unthrottled"
// and "no timeout".
type Config struct {
	DatabaseURL       string        `toml:"database_url"`
	EmbeddingURL      string        `toml:"embedding_url"`
	Model             string        `toml:"model"`
	Dimensions        int           `toml:"dimensions"`
	EmbeddingTimeout  Duration      `toml:"embedding_timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	TopK              int           `toml:"top_k"`
	BatchSize         int           `toml:"batch_size"`
	JournalPath       string        `toml:"journal_path"`
	Tolerance         float64       `toml:"tolerance"`
	LogLevel          string        `toml:"log_level"`
	LogFormat         string        `toml:"log_format"`
}

// Default returns a Config pointing at a local Postgres and Ollama.
func Default() Config {
	return Config{
		DatabaseURL:      DefaultDatabaseURL,
		EmbeddingURL:     DefaultEmbeddingURL,
		Model:            DefaultModel,
		Dimensions:       DefaultDimensions,
		EmbeddingTimeout: Duration(DefaultEmbeddingTimeout),
		TopK:             DefaultTopK,
		Tolerance:        DefaultTolerance,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
	}
}

// Load layers the TOML file at path (skipped when path is empty) and the
// environment over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, errors.Join(core.ErrInvalidConfig, err))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DatabaseURL = getEnvOr(EnvPrefix+"DATABASE_URL", c.DatabaseURL)
	c.EmbeddingURL = getEnvOr(EnvPrefix+"EMBEDDING_URL", c.EmbeddingURL)
	c.Model = getEnvOr(EnvPrefix+"MODEL", c.Model)
	c.JournalPath = getEnvOr(EnvPrefix+"JOURNAL_PATH", c.JournalPath)
	c.LogLevel = getEnvOr(EnvPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOr(EnvPrefix+"LOG_FORMAT", c.LogFormat)

	ints := map[string]*int{
		"DIMENSIONS": &c.Dimensions,
		"TOP_K":      &c.TopK,
		"BATCH_SIZE": &c.BatchSize,
	}
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", core.ErrInvalidConfig, EnvPrefix, key, v)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"REQUESTS_PER_SECOND": &c.RequestsPerSecond,
		"TOLERANCE":           &c.Tolerance,
	}
	for key, dst := range floats {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", core.ErrInvalidConfig, EnvPrefix, key, v)
		}
		*dst = f
	}

	if v := os.Getenv(EnvPrefix + "EMBEDDING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sEMBEDDING_TIMEOUT=%q", core.ErrInvalidConfig, EnvPrefix, v)
		}
		c.EmbeddingTimeout = Duration(d)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("%w: database_url is required", core.ErrInvalidConfig)
	case c.EmbeddingURL == "":
		return fmt.Errorf("%w: embedding_url is required", core.ErrInvalidConfig)
	case c.Model == "":
		return fmt.Errorf("%w: model is required", core.ErrInvalidConfig)
	case c.Dimensions < 0:
		return fmt.Errorf("%w: dimensions must not be negative", core.ErrInvalidConfig)
	case c.EmbeddingTimeout < 0:
		return fmt.Errorf("%w: embedding_timeout must not be negative", core.ErrInvalidConfig)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests_per_second must not be negative", core.ErrInvalidConfig)
	case c.TopK < 1:
		return fmt.Errorf("%w: top_k must be at least 1", core.ErrInvalidConfig)
	case c.BatchSize < 0:
		return fmt.Errorf("%w: batch_size must not be negative", core.ErrInvalidConfig)
	case c.Tolerance < 0:
		return fmt.Errorf("%w: tolerance must not be negative", core.ErrInvalidConfig)
	}
	return nil
}

// Duration reads TOML strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
