// Package config loads the orchestrator's runtime configuration, grounded
// on the teacher's internal/config loader: defaults first, then an optional
// YAML file overlay, then environment variables, each layer recording its
// provenance in Metadata so an operator can see where a value came from.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceFile    ValueSource = "file"
	SourceEnv     ValueSource = "environment"
)

// Defaults mirror the teacher's Default* constants pattern.
const (
	DefaultListenAddr        = ":8080"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultBatchSizeLimit    = 50
	DefaultLineageDepthLimit = 20
	DefaultLogLevel          = "INFO"
)

// Config captures every user-configurable setting this service reads at
// startup. Fields correspond 1:1 with the env vars/YAML keys applyEnv/
// applyFile populate.
type Config struct {
	DatabaseURL        string        `yaml:"database_url"`
	BrokerURL          string        `yaml:"broker_url"`
	ListenAddr         string        `yaml:"listen_addr"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	DefaultMaxRetries  int           `yaml:"default_max_retries"`
	BatchSizeLimit     int           `yaml:"batch_size_limit"`
	LineageDepthLimit  int           `yaml:"lineage_depth_limit"`
	LogLevel           string        `yaml:"log_level"`
	AdvisoryLockKey    int64         `yaml:"advisory_lock_key"`
}

// fileConfig is the YAML overlay shape; every field is a pointer so "unset
// in the file" is distinguishable from "explicitly zero".
type fileConfig struct {
	DatabaseURL       *string        `yaml:"database_url"`
	BrokerURL         *string        `yaml:"broker_url"`
	ListenAddr        *string        `yaml:"listen_addr"`
	RequestTimeout    *time.Duration `yaml:"request_timeout"`
	DefaultMaxRetries *int           `yaml:"default_max_retries"`
	BatchSizeLimit    *int           `yaml:"batch_size_limit"`
	LineageDepthLimit *int           `yaml:"lineage_depth_limit"`
	LogLevel          *string        `yaml:"log_level"`
	AdvisoryLockKey   *int64         `yaml:"advisory_lock_key"`
}

// Metadata records, per field, which layer supplied the effective value.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source reports which layer set field's effective value, or SourceDefault
// if the field was never looked up (unknown field name).
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt is when Load ran.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

// Option customizes Load's behavior, primarily for tests.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  func(string) (string, bool)
	readFile   func(string) ([]byte, error)
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader injects a custom file reader, used in tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = reader }
}

// WithConfigPath forces Load to read the YAML overlay from a specific path
// instead of the ORCHESTRATOR_CONFIG_FILE environment variable.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

func defaultEnvLookup(key string) (string, bool) { return os.LookupEnv(key) }

// Load merges defaults, an optional YAML file, then environment variables,
// in that order of increasing precedence.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: defaultEnvLookup, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	cfg := Config{
		ListenAddr:        DefaultListenAddr,
		RequestTimeout:    DefaultRequestTimeout,
		DefaultMaxRetries: DefaultMaxRetries,
		BatchSizeLimit:    DefaultBatchSizeLimit,
		LineageDepthLimit: DefaultLineageDepthLimit,
		LogLevel:          DefaultLogLevel,
		AdvisoryLockKey:   424242,
	}

	if err := applyFile(&cfg, &meta, options); err != nil {
		return Config{}, Metadata{}, err
	}
	applyEnv(&cfg, &meta, options.envLookup)

	if cfg.DatabaseURL == "" {
		return Config{}, Metadata{}, errors.New("config: DATABASE_URL is required")
	}
	if cfg.BrokerURL == "" {
		return Config{}, Metadata{}, errors.New("config: BROKER_URL is required")
	}

	return cfg, meta, nil
}

func applyFile(cfg *Config, meta *Metadata, options loadOptions) error {
	path := options.configPath
	if path == "" {
		path, _ = options.envLookup("ORCHESTRATOR_CONFIG_FILE")
	}
	if path == "" {
		return nil
	}

	data, err := options.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse file: %w", err)
	}

	setFile := func(field string) { meta.sources[field] = SourceFile }
	if parsed.DatabaseURL != nil {
		cfg.DatabaseURL = *parsed.DatabaseURL
		setFile("database_url")
	}
	if parsed.BrokerURL != nil {
		cfg.BrokerURL = *parsed.BrokerURL
		setFile("broker_url")
	}
	if parsed.ListenAddr != nil {
		cfg.ListenAddr = *parsed.ListenAddr
		setFile("listen_addr")
	}
	if parsed.RequestTimeout != nil {
		cfg.RequestTimeout = *parsed.RequestTimeout
		setFile("request_timeout")
	}
	if parsed.DefaultMaxRetries != nil {
		cfg.DefaultMaxRetries = *parsed.DefaultMaxRetries
		setFile("default_max_retries")
	}
	if parsed.BatchSizeLimit != nil {
		cfg.BatchSizeLimit = *parsed.BatchSizeLimit
		setFile("batch_size_limit")
	}
	if parsed.LineageDepthLimit != nil {
		cfg.LineageDepthLimit = *parsed.LineageDepthLimit
		setFile("lineage_depth_limit")
	}
	if parsed.LogLevel != nil {
		cfg.LogLevel = *parsed.LogLevel
		setFile("log_level")
	}
	if parsed.AdvisoryLockKey != nil {
		cfg.AdvisoryLockKey = *parsed.AdvisoryLockKey
		setFile("advisory_lock_key")
	}
	return nil
}

func applyEnv(cfg *Config, meta *Metadata, lookup func(string) (string, bool)) {
	setEnv := func(field string) { meta.sources[field] = SourceEnv }

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.DatabaseURL = v
		setEnv("database_url")
	}
	if v, ok := lookup("BROKER_URL"); ok && v != "" {
		cfg.BrokerURL = v
		setEnv("broker_url")
	}
	if v, ok := lookup("LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
		setEnv("listen_addr")
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
			setEnv("request_timeout")
		}
	}
	if v, ok := lookup("DEFAULT_MAX_RETRIES"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultMaxRetries = n
			setEnv("default_max_retries")
		}
	}
	if v, ok := lookup("BATCH_SIZE_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSizeLimit = n
			setEnv("batch_size_limit")
		}
	}
	if v, ok := lookup("LINEAGE_DEPTH_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LineageDepthLimit = n
			setEnv("lineage_depth_limit")
		}
	}
	if v, ok := lookup("ORCHESTRATOR_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = strings.ToUpper(v)
		setEnv("log_level")
	}
	if v, ok := lookup("ADVISORY_LOCK_KEY"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.AdvisoryLockKey = n
			setEnv("advisory_lock_key")
		}
	}
}
