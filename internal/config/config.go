package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

// Config holds the imagedex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// TracingConfig holds OpenTelemetry settings. An empty endpoint disables export.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, qdrant (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	APIKey           string   `yaml:"api_key"` // qdrant only
	TLS              bool     `yaml:"tls"`     // qdrant only
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the image embedding provider settings.
type EmbeddingConfig struct {
	APIKey       string      `yaml:"api_key"`
	BaseURL      string      `yaml:"base_url"`
	Model        string      `yaml:"model"`
	Dimensions   int         `yaml:"dimensions"`
	MaxImageSide int         `yaml:"max_image_side"`
	InputFormat  string      `yaml:"input_format"` // data_uri (default) or object
	TimeoutSec   int         `yaml:"timeout_sec"`
	MaxBatch     int         `yaml:"max_batch"` // images per provider request
	Cache        CacheConfig `yaml:"cache"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"` // 0 = no expiry
}

// IndexConfig holds vector index, run and pagination settings.
type IndexConfig struct {
	Name             string `yaml:"name"`
	Namespace        string `yaml:"namespace"`
	Dimension        int    `yaml:"dimension"`
	Metric           string `yaml:"metric"`
	Cloud            string `yaml:"cloud"`
	Region           string `yaml:"region"`
	WaitReady        bool   `yaml:"wait_ready"`
	ReadyTimeoutSec  int    `yaml:"ready_timeout_sec"`
	TopK             int    `yaml:"top_k"`
	BatchSize        int    `yaml:"batch_size"`
	ChunkSize        int    `yaml:"chunk_size"`
	BatchConcurrency int    `yaml:"batch_concurrency"`
	BatchTimeoutSec  int    `yaml:"batch_timeout_sec"` // 0 = none
	BatchRetries     int    `yaml:"batch_retries"`     // 0 = no retry
	RunHistory       int    `yaml:"run_history"`
	DefaultPageSize  int    `yaml:"default_page_size"`
	MaxPageSize      int    `yaml:"max_page_size"`
	HNSWM            int    `yaml:"hnsw_m"`
	HNSWEFConstruct  int    `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds file system and key layout settings.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	PublicPrefix string `yaml:"public_prefix"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	vc := domain.DefaultVectorConfig()

	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = vc.Model
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = vc.Dimensions
	}
	if c.Embedding.MaxImageSide <= 0 {
		c.Embedding.MaxImageSide = 512
	}
	if c.Embedding.InputFormat == "" {
		c.Embedding.InputFormat = "data_uri"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}
	if c.Embedding.MaxBatch <= 0 {
		c.Embedding.MaxBatch = 32
	}
	if c.Index.Namespace == "" {
		c.Index.Namespace = vc.Namespace
	}
	if c.Index.Dimension <= 0 {
		c.Index.Dimension = c.Embedding.Dimensions
	}
	if c.Index.Metric == "" {
		c.Index.Metric = string(vc.Metric)
	}
	if c.Index.ReadyTimeoutSec <= 0 {
		c.Index.ReadyTimeoutSec = 60
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = vc.TopK
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = vc.BatchSize
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = vc.ChunkSize
	}
	if c.Index.BatchConcurrency <= 0 {
		c.Index.BatchConcurrency = 1
	}
	if c.Index.RunHistory <= 0 {
		c.Index.RunHistory = 100
	}
	if c.Index.DefaultPageSize <= 0 {
		c.Index.DefaultPageSize = 10
	}
	if c.Index.MaxPageSize <= 0 {
		c.Index.MaxPageSize = 100
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.PublicPrefix == "" {
		c.Storage.PublicPrefix = "/data"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.KeyPrefix
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "imagedex"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "valkey", "redis", "qdrant":
	default:
		return fmt.Errorf("database.driver must be valkey, redis or qdrant, got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index.name is required")
	}
	if c.Index.Cloud == "" {
		return fmt.Errorf("index.cloud is required")
	}
	if c.Index.Region == "" {
		return fmt.Errorf("index.region is required")
	}
	if err := c.IndexSpec().Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if f := c.Embedding.InputFormat; f != "data_uri" && f != "object" {
		return fmt.Errorf("embedding.input_format must be data_uri or object, got %q", f)
	}
	if c.Index.Dimension != c.Embedding.Dimensions {
		return fmt.Errorf("index.dimension (%d) must equal embedding.dimensions (%d)",
			c.Index.Dimension, c.Embedding.Dimensions)
	}
	if c.Index.ChunkSize > c.Index.BatchSize {
		return fmt.Errorf("index.chunk_size (%d) must not exceed index.batch_size (%d)",
			c.Index.ChunkSize, c.Index.BatchSize)
	}
	if c.Index.BatchRetries < 0 {
		return fmt.Errorf("index.batch_retries must not be negative")
	}
	if c.Index.DefaultPageSize > c.Index.MaxPageSize {
		return fmt.Errorf("index.default_page_size must not exceed index.max_page_size")
	}
	if c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within (0, 1], got %g", c.Tracing.SampleRate)
	}
	return nil
}

// IndexSpec returns the vector index description derived from the index section.
func (c *Config) IndexSpec() domain.IndexSpec {
	return domain.IndexSpec{
		Name:      c.Index.Name,
		Dimension: c.Index.Dimension,
		Metric:    domain.Metric(c.Index.Metric),
		Cloud:     c.Index.Cloud,
		Region:    c.Index.Region,
	}
}

// ReadinessTimeout returns the store readiness timeout.
func (c *Config) ReadinessTimeout() time.Duration {
	return time.Duration(c.Database.ReadinessTimeout) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
