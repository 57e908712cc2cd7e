// Package config provides configuration management for the application.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file (GOFILE_CONFIG, default config.yaml) with ${VAR} and
// ${VAR:-default} placeholders, and environment variable overrides. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Client     ClientConfig     `yaml:"client"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sim        SimConfig        `yaml:"sim"`
}

// ClientConfig holds credentials and endpoint settings for the files client.
type ClientConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
	Project      string `yaml:"project"`
	UserAgent    string `yaml:"user_agent"`
}

// ResilienceConfig holds retry and circuit breaker settings for outbound
// requests.
type ResilienceConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry settings. Backoffs are in seconds.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialBackoff float64 `yaml:"initial_backoff"`
	MaxBackoff     float64 `yaml:"max_backoff"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
}

// InitialBackoffDuration returns the initial backoff as a duration.
func (r RetryConfig) InitialBackoffDuration() time.Duration {
	return secondsToDuration(r.InitialBackoff)
}

// MaxBackoffDuration returns the backoff ceiling as a duration.
func (r RetryConfig) MaxBackoffDuration() time.Duration {
	return secondsToDuration(r.MaxBackoff)
}

// CircuitBreakerConfig holds circuit breaker settings. Timeout is in seconds.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	Timeout          int `yaml:"timeout"`
}

// TimeoutDuration returns the open-circuit timeout as a duration.
func (c CircuitBreakerConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// SimConfig holds the file API simulator settings.
type SimConfig struct {
	Port          string `yaml:"port"`
	MasterKey     string `yaml:"master_key"`
	BodySizeLimit string `yaml:"body_size_limit"` // e.g. "512KB", "100MB"
	// ProcessingDelay is how long uploads stay "uploaded" before reads
	// report "processed", in seconds.
	ProcessingDelay int         `yaml:"processing_delay"`
	ValidateJSONL   bool        `yaml:"validate_jsonl"`
	Store           StoreConfig `yaml:"store"`

	// BodySizeBytes is the parsed BodySizeLimit, filled during Load.
	BodySizeBytes int64 `yaml:"-"`
}

// ProcessingDelayDuration returns the processing delay as a duration.
func (s SimConfig) ProcessingDelayDuration() time.Duration {
	return time.Duration(s.ProcessingDelay) * time.Second
}

// StoreConfig selects and configures the simulator's file store backend.
type StoreConfig struct {
	// Type is one of: memory, sqlite, postgresql, mongodb, redis, s3.
	// Empty means memory.
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	Redis      RedisConfig      `yaml:"redis"`
	S3         S3Config         `yaml:"s3"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings.
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings.
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// S3Config holds S3 (or MinIO) settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Load reads configuration from defaults, an optional YAML file, and the
// environment, in that order of precedence.
func Load() (*Config, error) {
	// Load .env file if present (optional, won't fail if not found)
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	path := os.Getenv("GOFILE_CONFIG")
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	if err := loadYAMLFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDefaultConfig returns a Config populated with every default value.
func buildDefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: 1,
				MaxBackoff:     30,
				BackoffFactor:  2.0,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Sim: SimConfig{
			Port:          "8080",
			BodySizeLimit: "100MB",
			ValidateJSONL: true,
			Store: StoreConfig{
				Type: "memory",
			},
		},
	}
}

// loadYAMLFile merges a YAML config file into cfg after expanding
// environment placeholders. A missing file is only an error when the path
// was set explicitly via GOFILE_CONFIG.
func loadYAMLFile(cfg *Config, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandString(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// placeholderPattern matches ${VAR} and ${VAR:-default}.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders with
// environment values. A ${VAR} whose variable is unset or empty is left
// as-is; ${VAR:-default} falls back to the default instead.
func expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]

		if value := os.Getenv(name); value != "" {
			return value
		}
		// Only ${VAR:-default} placeholders fall back when the variable
		// is unset or empty.
		if strings.Contains(match, ":-") {
			return strings.TrimPrefix(def, ":-")
		}
		return match
	})
}

// applyEnvOverrides overlays environment variables onto cfg. Set variables
// always win over YAML and defaults.
func applyEnvOverrides(cfg *Config) error {
	overrideString(&cfg.Client.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Client.BaseURL, "OPENAI_BASE_URL")
	overrideString(&cfg.Client.Organization, "OPENAI_ORG_ID")
	overrideString(&cfg.Client.Project, "OPENAI_PROJECT_ID")

	overrideString(&cfg.Logging.Level, "LOG_LEVEL")
	overrideString(&cfg.Logging.Format, "LOG_FORMAT")

	overrideString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")

	overrideString(&cfg.Sim.Port, "PORT")
	overrideString(&cfg.Sim.MasterKey, "FILESIM_MASTER_KEY")
	overrideString(&cfg.Sim.BodySizeLimit, "FILESIM_BODY_SIZE_LIMIT")

	overrideString(&cfg.Sim.Store.Type, "STORAGE_TYPE")
	overrideString(&cfg.Sim.Store.SQLite.Path, "SQLITE_PATH")
	overrideString(&cfg.Sim.Store.PostgreSQL.URL, "POSTGRES_URL")
	overrideString(&cfg.Sim.Store.MongoDB.URI, "MONGODB_URI")
	overrideString(&cfg.Sim.Store.MongoDB.Database, "MONGODB_DATABASE")
	overrideString(&cfg.Sim.Store.Redis.URL, "REDIS_URL")
	overrideString(&cfg.Sim.Store.Redis.Prefix, "REDIS_PREFIX")
	overrideString(&cfg.Sim.Store.S3.Bucket, "S3_BUCKET")
	overrideString(&cfg.Sim.Store.S3.Region, "S3_REGION")
	overrideString(&cfg.Sim.Store.S3.Endpoint, "S3_ENDPOINT")
	overrideString(&cfg.Sim.Store.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	overrideString(&cfg.Sim.Store.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	overrideString(&cfg.Sim.Store.S3.Prefix, "S3_PREFIX")

	if err := overrideInt(&cfg.Sim.ProcessingDelay, "FILESIM_PROCESSING_DELAY"); err != nil {
		return err
	}
	if err := overrideInt(&cfg.Sim.Store.PostgreSQL.MaxConns, "POSTGRES_MAX_CONNS"); err != nil {
		return err
	}
	if err := overrideBool(&cfg.Sim.ValidateJSONL, "FILESIM_VALIDATE_JSONL"); err != nil {
		return err
	}
	if err := overrideBool(&cfg.Sim.Store.S3.UsePathStyle, "S3_USE_PATH_STYLE"); err != nil {
		return err
	}
	if err := overrideBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	return nil
}

func overrideString(dst *string, env string) {
	if value := os.Getenv(env); value != "" {
		*dst = value
	}
}

func overrideInt(dst *int, env string) error {
	value := os.Getenv(env)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", env, value)
	}
	*dst = parsed
	return nil
}

func overrideBool(dst *bool, env string) error {
	value := os.Getenv(env)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", env, value)
	}
	*dst = parsed
	return nil
}

// validate checks cfg for invalid values and fills derived fields.
func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Sim.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %q", cfg.Sim.Port)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q (valid: debug, info, warn, error)", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q (valid: auto, text, json)", cfg.Logging.Format)
	}

	switch cfg.Sim.Store.Type {
	case "", "memory", "sqlite", "postgresql", "mongodb", "redis", "s3":
	default:
		return fmt.Errorf("unknown store type: %q (valid: memory, sqlite, postgresql, mongodb, redis, s3)", cfg.Sim.Store.Type)
	}

	sizeBytes, err := parseSize(cfg.Sim.BodySizeLimit)
	if err != nil {
		return fmt.Errorf("invalid body size limit: %w", err)
	}
	cfg.Sim.BodySizeBytes = sizeBytes

	if cfg.Sim.ProcessingDelay < 0 {
		return fmt.Errorf("processing delay must not be negative, got %d", cfg.Sim.ProcessingDelay)
	}
	if cfg.Resilience.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", cfg.Resilience.Retry.MaxRetries)
	}
	return nil
}

// parseSize converts a human size string such as "512KB", "10MB" or a plain
// byte count into bytes.
func parseSize(s string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(trimmed, "GB"):
		multiplier = 1 << 30
		trimmed = strings.TrimSuffix(trimmed, "GB")
	case strings.HasSuffix(trimmed, "MB"):
		multiplier = 1 << 20
		trimmed = strings.TrimSuffix(trimmed, "MB")
	case strings.HasSuffix(trimmed, "KB"):
		multiplier = 1 << 10
		trimmed = strings.TrimSuffix(trimmed, "KB")
	case strings.HasSuffix(trimmed, "B"):
		trimmed = strings.TrimSuffix(trimmed, "B")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(trimmed), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable size %q", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("size must not be negative: %q", s)
	}
	return value * multiplier, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
