// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"lakehouse/internal/domain"
)

// Storage backend kinds.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageGCS   = "gcs"
	StorageAzure = "azure"
)

// Defaults.
const (
	DefaultCataloguePath     = "lake_catalogue.sqlite"
	DefaultListenAddr        = ":8080"
	DefaultLocalRoot         = "lake_data"
	DefaultReadPoolSize      = 4
	DefaultChunkSize         = 10 << 20 // 10 MiB
	MinS3ChunkSize           = 5 << 20  // smallest multipart part S3 accepts
	DefaultIngestConcurrency = 4
	DefaultRateLimitBurst    = 10
)

// S3Config holds S3 (or S3-compatible) object store settings.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	KeyID    string `yaml:"key_id"`
	Secret   string `yaml:"secret"`
	Endpoint string `yaml:"endpoint"` // host or URL; empty means AWS
	Prefix   string `yaml:"prefix"`
	URLStyle string `yaml:"url_style"` // "path" (default) or "vhost"
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket  string `yaml:"bucket"`
	KeyFile string `yaml:"key_file"` // service account JSON; empty means default credentials
	Prefix  string `yaml:"prefix"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	Container   string `yaml:"container"`
	Endpoint    string `yaml:"endpoint"` // service URL override, e.g. Azurite
	Prefix      string `yaml:"prefix"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Kind      string      `yaml:"kind"`
	LocalRoot string      `yaml:"local_root"`
	S3        S3Config    `yaml:"s3"`
	GCS       GCSConfig   `yaml:"gcs"`
	Azure     AzureConfig `yaml:"azure"`

	// ChunkSize is the multipart part / resumable chunk / block size in bytes.
	ChunkSize int `yaml:"chunk_size"`
	// PartsPerSecond throttles part uploads. Zero means unlimited.
	PartsPerSecond float64 `yaml:"parts_per_second"`
}

// Validate reports missing bucket or credential settings for the selected
// backend as *domain.StorageError of kind NotAccessible.
func (s *StorageConfig) Validate() error {
	missing := func(name string) error {
		return domain.ErrStorage(domain.NotAccessible, "", fmt.Errorf("%s is required for %s storage", name, s.Kind))
	}
	switch s.Kind {
	case StorageLocal:
		if s.LocalRoot == "" {
			return missing("LAKE_LOCAL_ROOT")
		}
	case StorageS3:
		if s.S3.Bucket == "" {
			return missing("S3_BUCKET")
		}
		if s.S3.Region == "" {
			return missing("S3_REGION")
		}
		if (s.S3.KeyID == "") != (s.S3.Secret == "") {
			return domain.ErrStorage(domain.NotAccessible, "", fmt.Errorf("S3_KEY_ID and S3_SECRET must be set together"))
		}
		if s.S3.URLStyle != "" && s.S3.URLStyle != "path" && s.S3.URLStyle != "vhost" {
			return domain.ErrValidation("S3_URL_STYLE must be %q or %q, got %q", "path", "vhost", s.S3.URLStyle)
		}
	case StorageGCS:
		if s.GCS.Bucket == "" {
			return missing("GCS_BUCKET")
		}
	case StorageAzure:
		if s.Azure.AccountName == "" {
			return missing("AZURE_ACCOUNT_NAME")
		}
		if s.Azure.AccountKey == "" {
			return missing("AZURE_ACCOUNT_KEY")
		}
		if s.Azure.Container == "" {
			return missing("AZURE_CONTAINER")
		}
	default:
		return domain.ErrValidation("unknown storage kind %q (want local, s3, gcs or azure)", s.Kind)
	}
	if s.ChunkSize <= 0 {
		return domain.ErrValidation("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.Kind == StorageS3 && s.ChunkSize < MinS3ChunkSize {
		return domain.ErrValidation("S3 chunk size must be at least %d bytes, got %d", MinS3ChunkSize, s.ChunkSize)
	}
	if s.PartsPerSecond < 0 {
		return domain.ErrValidation("parts per second must not be negative")
	}
	return nil
}

func (s *StorageConfig) applyDefaults() {
	if s.Kind == "" {
		s.Kind = StorageLocal
	}
	s.Kind = strings.ToLower(s.Kind)
	if s.LocalRoot == "" {
		s.LocalRoot = DefaultLocalRoot
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.S3.URLStyle == "" {
		s.S3.URLStyle = "path"
	}
}

// Config holds the configuration for the lake engine, its HTTP API and CLI.
type Config struct {
	CataloguePath string `yaml:"catalogue_path"` // SQLite catalogue file
	ReadPoolSize  int    `yaml:"read_pool_size"` // bounded catalogue read pool
	ListenAddr    string `yaml:"listen_addr"`    // HTTP listen address (default ":8080")
	LogLevel      string `yaml:"log_level"`      // debug, info, warn, error (default "info")
	Env           string `yaml:"env"`            // "development" (default) or "production"

	// CORS
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` // default: ["*"]

	// Per-client limit on mutating API calls. Zero RPS disables it.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"` // default 10 when RPS is set

	// Ingestion
	StagingDir        string `yaml:"staging_dir"`        // parent of per-job staging dirs (default os.TempDir())
	SamplingSize      int    `yaml:"sampling_size"`      // rows sampled for inference (default 5)
	IngestConcurrency int    `yaml:"ingest_concurrency"` // parallel jobs for batch ingest (default 4)

	Storage StorageConfig `yaml:"storage"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `yaml:"-"`
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg.finish()
}

// LoadFile loads a YAML configuration file. Environment variables that are
// set take precedence over values from the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg.finish()
}

func (c *Config) applyEnv() {
	setString(&c.CataloguePath, "LAKE_CATALOGUE_PATH")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Env, "ENV")
	setString(&c.StagingDir, "LAKE_STAGING_DIR")
	c.setInt(&c.ReadPoolSize, "LAKE_READ_POOL_SIZE")
	c.setInt(&c.SamplingSize, "LAKE_SAMPLING_SIZE")
	c.setInt(&c.IngestConcurrency, "LAKE_INGEST_CONCURRENCY")
	c.setFloat(&c.RateLimitRPS, "LAKE_RATE_LIMIT_RPS")
	c.setInt(&c.RateLimitBurst, "LAKE_RATE_LIMIT_BURST")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	s := &c.Storage
	setString(&s.Kind, "LAKE_STORAGE")
	setString(&s.LocalRoot, "LAKE_LOCAL_ROOT")
	c.setInt(&s.ChunkSize, "LAKE_CHUNK_SIZE")
	c.setFloat(&s.PartsPerSecond, "LAKE_PARTS_PER_SECOND")

	setString(&s.S3.Bucket, "S3_BUCKET")
	setString(&s.S3.Region, "S3_REGION")
	setString(&s.S3.KeyID, "S3_KEY_ID")
	setString(&s.S3.Secret, "S3_SECRET")
	setString(&s.S3.Endpoint, "S3_ENDPOINT")
	setString(&s.S3.Prefix, "S3_PREFIX")
	setString(&s.S3.URLStyle, "S3_URL_STYLE")

	setString(&s.GCS.Bucket, "GCS_BUCKET")
	setString(&s.GCS.KeyFile, "GCS_KEY_FILE")
	setString(&s.GCS.Prefix, "GCS_PREFIX")

	setString(&s.Azure.AccountName, "AZURE_ACCOUNT_NAME")
	setString(&s.Azure.AccountKey, "AZURE_ACCOUNT_KEY")
	setString(&s.Azure.Container, "AZURE_CONTAINER")
	setString(&s.Azure.Endpoint, "AZURE_ENDPOINT")
	setString(&s.Azure.Prefix, "AZURE_PREFIX")
}

func (c *Config) finish() (*Config, error) {
	// Defaults
	if c.CataloguePath == "" {
		c.CataloguePath = DefaultCataloguePath
	}
	if c.ReadPoolSize <= 0 {
		c.ReadPoolSize = DefaultReadPoolSize
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SamplingSize <= 0 {
		c.SamplingSize = domain.DefaultSamplingSize
	}
	if c.IngestConcurrency <= 0 {
		c.IngestConcurrency = DefaultIngestConcurrency
	}
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{"*"}
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = DefaultRateLimitBurst
	}
	c.Storage.applyDefaults()

	if err := c.Storage.Validate(); err != nil {
		return nil, err
	}
	if c.Storage.Kind == StorageLocal {
		c.Warnings = append(c.Warnings, fmt.Sprintf("using local storage under %q; set LAKE_STORAGE for an object store", c.Storage.LocalRoot))
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		if len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return c, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s %q", key, v))
		return
	}
	*dst = n
}

func (c *Config) setFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s %q", key, v))
		return
	}
	*dst = f
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
