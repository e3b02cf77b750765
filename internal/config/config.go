// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // per-request context deadline, bounds a sweep
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	PublicBaseURL   string        `yaml:"public_base_url"` // used to build download URLs
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // s3|fs
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	// Endpoint is optional, for S3-compatible stores (MinIO).
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Dir       string `yaml:"dir"` // fs backend root
}

type ExtractionConfig struct {
	Provider        string        `yaml:"provider"` // http|local
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"`
}

type BillingConfig struct {
	CreditsPerPage int64  `yaml:"credits_per_page"`
	PagePolicy     string `yaml:"page_policy"` // actual|estimate|lesser
}

type PipelineConfig struct {
	MaxFilesPerJob   int           `yaml:"max_files_per_job"`
	MaxFilesPerSweep int           `yaml:"max_files_per_sweep"`
	MaxFileBytes     int64         `yaml:"max_file_bytes"`
	SweepLockTTL     time.Duration `yaml:"sweep_lock_ttl"`
	ResumeAfter      time.Duration `yaml:"resume_after"`
	ResumeInterval   time.Duration `yaml:"resume_interval"`
	ResumeWorkers    int           `yaml:"resume_workers"`
}

type OutputConfig struct {
	TempDir         string        `yaml:"temp_dir"`
	DownloadTTL     time.Duration `yaml:"download_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Billing    BillingConfig    `yaml:"billing"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Output     OutputConfig     `yaml:"output"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides for secrets, fills defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse builds a Config from YAML bytes. Exposed for tests.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	switch cfg.Storage.Backend {
	case "s3":
		if cfg.Storage.Bucket == "" {
			return nil, errors.New("storage.bucket is required for the s3 backend")
		}
	case "fs":
	default:
		return nil, fmt.Errorf("storage.backend %q is not supported", cfg.Storage.Backend)
	}
	switch cfg.Extraction.Provider {
	case "http":
		if cfg.Extraction.URL == "" {
			return nil, errors.New("extraction.url is required for the http provider")
		}
	case "local":
	default:
		return nil, fmt.Errorf("extraction.provider %q is not supported", cfg.Extraction.Provider)
	}
	switch cfg.Billing.PagePolicy {
	case "actual", "estimate", "lesser":
	default:
		return nil, fmt.Errorf("billing.page_policy %q is not supported", cfg.Billing.PagePolicy)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Extraction.APIKey = getEnv("EXTRACTION_API_KEY", cfg.Extraction.APIKey)
	cfg.Storage.AccessKey = getEnv("AWS_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("AWS_SECRET_KEY", cfg.Storage.SecretKey)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 256 << 20
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "fs"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data/uploads"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	cfg.Extraction.Provider = strings.ToLower(strings.TrimSpace(cfg.Extraction.Provider))
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "local"
	}
	if cfg.Extraction.Timeout <= 0 {
		cfg.Extraction.Timeout = 60 * time.Second
	}
	if cfg.Extraction.ConcurrentLimit <= 0 {
		cfg.Extraction.ConcurrentLimit = 4
	}
	if cfg.Billing.CreditsPerPage <= 0 {
		cfg.Billing.CreditsPerPage = 1
	}
	cfg.Billing.PagePolicy = strings.ToLower(strings.TrimSpace(cfg.Billing.PagePolicy))
	if cfg.Billing.PagePolicy == "" {
		cfg.Billing.PagePolicy = "actual"
	}
	if cfg.Pipeline.MaxFilesPerJob <= 0 {
		cfg.Pipeline.MaxFilesPerJob = 50
	}
	if cfg.Pipeline.MaxFilesPerSweep <= 0 {
		cfg.Pipeline.MaxFilesPerSweep = 10
	}
	if cfg.Pipeline.MaxFileBytes <= 0 {
		cfg.Pipeline.MaxFileBytes = 50 << 20
	}
	if cfg.Pipeline.SweepLockTTL <= 0 {
		cfg.Pipeline.SweepLockTTL = 5 * time.Minute
	}
	if cfg.Pipeline.ResumeAfter <= 0 {
		cfg.Pipeline.ResumeAfter = 2 * time.Minute
	}
	if cfg.Pipeline.ResumeInterval <= 0 {
		cfg.Pipeline.ResumeInterval = 30 * time.Second
	}
	if cfg.Pipeline.ResumeWorkers <= 0 {
		cfg.Pipeline.ResumeWorkers = 2
	}
	if cfg.Output.TempDir == "" {
		cfg.Output.TempDir = os.TempDir()
	}
	if cfg.Output.DownloadTTL <= 0 {
		cfg.Output.DownloadTTL = 24 * time.Hour
	}
	if cfg.Output.JanitorInterval <= 0 {
		cfg.Output.JanitorInterval = time.Hour
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
