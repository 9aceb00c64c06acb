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

	"github.com/kailas-cloud/dataforge/internal/domain"
)

// Config holds the dataforge API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	Import    ImportConfig    `yaml:"import"`
	Export    ExportConfig    `yaml:"export"`
	Files     FilesConfig     `yaml:"files"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds bearer token settings. An empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	// DevUser is the caller assumed when authentication is disabled.
	DevUser string `yaml:"dev_user"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds document store connection settings.
type DatabaseConfig struct {
	URI              string `yaml:"uri"`
	Name             string `yaml:"name"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// RedisConfig holds the optional shared KV store. Empty addrs disable it.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

// LimitsConfig holds per-request and per-user limits.
type LimitsConfig struct {
	MaxFilterDepth        int   `yaml:"max_filter_depth"`
	MaxRelations          int   `yaml:"max_relations"`
	MaxDocumentsPerUser   int64 `yaml:"max_documents_per_user"` // 0 = unlimited
	MaxStorageBytes       int64 `yaml:"max_storage_bytes"`      // 0 = unlimited
	MaxRequestBytes       int64 `yaml:"max_request_bytes"`
	CompositeBatchSize    int   `yaml:"composite_batch_size"`
	LinkConcurrency       int   `yaml:"link_concurrency"`
	MaxNestedInsertDepth  int   `yaml:"max_nested_insert_depth"`
	SchemaCacheTTLSec     int   `yaml:"schema_cache_ttl_sec"`
	SearchTimeoutFloorSec int   `yaml:"search_timeout_floor_sec"`
}

// Domain converts the limits for the use case layer.
func (l LimitsConfig) Domain() domain.Limits {
	return domain.Limits{
		MaxFilterDepth:       l.MaxFilterDepth,
		MaxRelations:         l.MaxRelations,
		MaxDocumentsPerUser:  l.MaxDocumentsPerUser,
		MaxStorageBytes:      l.MaxStorageBytes,
		MaxRequestBytes:      l.MaxRequestBytes,
		CompositeBatchSize:   l.CompositeBatchSize,
		LinkConcurrency:      l.LinkConcurrency,
		MaxNestedInsertDepth: l.MaxNestedInsertDepth,
		SearchTimeoutFloor:   time.Duration(l.SearchTimeoutFloorSec) * time.Second,
	}
}

// ChunkDelay returns the pause between import chunks.
func (i ImportConfig) ChunkDelay() time.Duration {
	return time.Duration(max(i.ChunkDelayMs, 0)) * time.Millisecond
}

// Job store backends.
const (
	JobStoreMemory = "memory"
	JobStoreRedis  = "redis"
)

// ImportConfig holds import pacing and job table settings.
type ImportConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkDelayMs int    `yaml:"chunk_delay_ms"` // negative = no delay
	JobStore     string `yaml:"job_store"`      // memory (default), redis
	JobTTLSec    int    `yaml:"job_ttl_sec"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// ExportConfig holds export settings.
type ExportConfig struct {
	MaxDocuments int `yaml:"max_documents"`
}

// FilesConfig holds the optional object storage. An empty endpoint disables it.
type FilesConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EventsConfig holds the optional message broker. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// RateLimitConfig holds the per-user request limit. It needs Redis.
type RateLimitConfig struct {
	Requests  int64 `yaml:"requests"` // 0 = unlimited
	WindowSec int   `yaml:"window_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Name == "" {
		c.Database.Name = "dataforge"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	d := domain.DefaultLimits()
	if c.Limits.MaxFilterDepth <= 0 {
		c.Limits.MaxFilterDepth = d.MaxFilterDepth
	}
	if c.Limits.MaxRelations <= 0 {
		c.Limits.MaxRelations = d.MaxRelations
	}
	if c.Limits.MaxRequestBytes <= 0 {
		c.Limits.MaxRequestBytes = 10 << 20
	}
	if c.Limits.CompositeBatchSize <= 0 {
		c.Limits.CompositeBatchSize = d.CompositeBatchSize
	}
	if c.Limits.LinkConcurrency <= 0 {
		c.Limits.LinkConcurrency = d.LinkConcurrency
	}
	if c.Limits.MaxNestedInsertDepth <= 0 {
		c.Limits.MaxNestedInsertDepth = d.MaxNestedInsertDepth
	}
	if c.Limits.SchemaCacheTTLSec <= 0 {
		c.Limits.SchemaCacheTTLSec = 100
	}
	if c.Limits.SearchTimeoutFloorSec <= 0 {
		c.Limits.SearchTimeoutFloorSec = int(d.SearchTimeoutFloor / time.Second)
	}

	if c.Import.ChunkSize <= 0 {
		c.Import.ChunkSize = 100
	}
	if c.Import.ChunkDelayMs == 0 {
		c.Import.ChunkDelayMs = 1000
	}
	if c.Import.JobStore == "" {
		c.Import.JobStore = JobStoreMemory
	}
	if c.Import.JobTTLSec <= 0 {
		c.Import.JobTTLSec = 3600
	}
	if c.Import.MaxFileBytes <= 0 {
		c.Import.MaxFileBytes = 50 << 20
	}
	if c.Export.MaxDocuments <= 0 {
		c.Export.MaxDocuments = 10000
	}
	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		c.Events.Exchange = "dataforge.events"
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.URI == "" {
		return fmt.Errorf("database.uri is required")
	}
	switch c.Import.JobStore {
	case JobStoreMemory:
	case JobStoreRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("import.job_store %q requires redis.addrs", JobStoreRedis)
		}
	default:
		return fmt.Errorf("import.job_store must be %q or %q, got %q", JobStoreMemory, JobStoreRedis, c.Import.JobStore)
	}
	if c.RateLimit.Requests > 0 && !c.Redis.Enabled() {
		return fmt.Errorf("ratelimit.requests requires redis.addrs")
	}
	if c.Files.Endpoint != "" && c.Files.Bucket == "" {
		return fmt.Errorf("files.bucket is required when files.endpoint is set")
	}
	if c.Limits.MaxFilterDepth > 20 {
		return fmt.Errorf("limits.max_filter_depth must be at most 20, got %d", c.Limits.MaxFilterDepth)
	}
	return nil
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
