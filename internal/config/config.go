// Package config loads and validates the marketplace configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MVP_ prefix (e.g., MVP_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Pinning   PinningConfig   `mapstructure:"pinning"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Download  DownloadConfig  `mapstructure:"download"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the listen address in host:port form.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetPublicURL returns the public-facing URL used for webhook callbacks and
// externally visible links. When server.public_url is set it is returned as-is;
// otherwise it falls back to server.base_url. The distinction matters in
// reverse-proxied deployments where the internal listen address differs from
// the URL GitHub delivers webhooks to.
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// StorageConfig holds the two logical buckets: the private archive bucket
// (template source code, served only via signed URLs) and the public preview
// bucket (preview images, served via public URLs). Each bucket picks its own
// backend so the same deployment can use, e.g., local previews with S3 archives.
type StorageConfig struct {
	Archives BucketConfig `mapstructure:"archives"`
	Previews BucketConfig `mapstructure:"previews"`
}

// BucketConfig selects and configures the backend for one logical bucket.
type BucketConfig struct {
	Backend string             `mapstructure:"backend"`
	Public  bool               `mapstructure:"public"`
	Azure   AzureStorageConfig `mapstructure:"azure"`
	S3      S3StorageConfig    `mapstructure:"s3"`
	GCS     GCSStorageConfig   `mapstructure:"gcs"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	// Region is the AWS region
	Region string `mapstructure:"region"`
	// Bucket is the S3 bucket name
	Bucket string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	// - "default": Use AWS default credential chain (env vars, shared config, IAM role, etc.)
	// - "static": Use explicit access key and secret key
	// - "oidc": Use Web Identity/OIDC token for authentication (EKS, GitHub Actions, etc.)
	// - "assume_role": Assume an IAM role (optionally with external ID for cross-account)
	AuthMethod string `mapstructure:"auth_method"`

	// Static credentials (when auth_method is "static" or empty for backwards compatibility)
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// AssumeRole configuration (when auth_method is "assume_role" or "oidc")
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	// WebIdentityTokenFile is the path to the OIDC token file (when auth_method is "oidc")
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	// Bucket is the GCS bucket name
	Bucket string `mapstructure:"bucket"`

	// ProjectID is the Google Cloud project ID (optional if using default credentials)
	ProjectID string `mapstructure:"project_id"`

	// Authentication method: "default", "service_account", "workload_identity"
	AuthMethod string `mapstructure:"auth_method"`

	// CredentialsFile is the path to a service account JSON key file
	CredentialsFile string `mapstructure:"credentials_file"`

	// CredentialsJSON is the service account JSON key as a string
	// (alternative to credentials_file, useful for environment variables)
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators or compatible services)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	ServeDirectly bool   `mapstructure:"serve_directly"`
}

// ScannerConfig holds the remote security scanner endpoint configuration.
type ScannerConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PinningConfig holds the remote content-pinning service configuration.
type PinningConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GitHubConfig holds GitHub App credentials for repository sync.
type GitHubConfig struct {
	// AppID is the numeric GitHub App identifier used to mint installation tokens.
	AppID string `mapstructure:"app_id"`
	// PrivateKeyFile is the path to the App's RSA private key PEM.
	PrivateKeyFile string `mapstructure:"private_key_file"`
	// APIBaseURL overrides the API endpoint (for GitHub Enterprise Server).
	APIBaseURL string        `mapstructure:"api_base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. When RedisAddr is set
// the limiter uses a Redis sliding window shared across instances; otherwise
// it falls back to an in-process token bucket.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DownloadConfig holds archive download settings.
type DownloadConfig struct {
	// SignedURLTTL is how long a generated archive download URL stays valid.
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Storage — archive bucket
		"storage.archives.backend",
		"storage.archives.azure.account_name",
		"storage.archives.azure.account_key",
		"storage.archives.azure.container_name",
		"storage.archives.azure.cdn_url",
		"storage.archives.s3.endpoint",
		"storage.archives.s3.region",
		"storage.archives.s3.bucket",
		"storage.archives.s3.auth_method",
		"storage.archives.s3.access_key_id",
		"storage.archives.s3.secret_access_key",
		"storage.archives.s3.role_arn",
		"storage.archives.s3.role_session_name",
		"storage.archives.s3.external_id",
		"storage.archives.s3.web_identity_token_file",
		"storage.archives.gcs.bucket",
		"storage.archives.gcs.project_id",
		"storage.archives.gcs.auth_method",
		"storage.archives.gcs.credentials_file",
		"storage.archives.gcs.credentials_json",
		"storage.archives.gcs.endpoint",
		"storage.archives.local.base_path",
		"storage.archives.local.serve_directly",

		// Storage — preview bucket
		"storage.previews.backend",
		"storage.previews.azure.account_name",
		"storage.previews.azure.account_key",
		"storage.previews.azure.container_name",
		"storage.previews.azure.cdn_url",
		"storage.previews.s3.endpoint",
		"storage.previews.s3.region",
		"storage.previews.s3.bucket",
		"storage.previews.s3.auth_method",
		"storage.previews.s3.access_key_id",
		"storage.previews.s3.secret_access_key",
		"storage.previews.gcs.bucket",
		"storage.previews.gcs.project_id",
		"storage.previews.gcs.auth_method",
		"storage.previews.gcs.credentials_file",
		"storage.previews.gcs.credentials_json",
		"storage.previews.gcs.endpoint",
		"storage.previews.local.base_path",
		"storage.previews.local.serve_directly",

		// Scanner
		"scanner.url",
		"scanner.token",
		"scanner.timeout",

		// Pinning
		"pinning.endpoint",
		"pinning.token",
		"pinning.timeout",

		// GitHub
		"github.app_id",
		"github.private_key_file",
		"github.api_base_url",
		"github.timeout",

		// Auth
		"auth.api_keys.enabled",
		"auth.api_keys.prefix",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.redis_addr",
		"security.rate_limiting.redis_password",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Download
		"download.signed_url_ttl",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mvpmarket")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("MVP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.Archives.Azure.AccountKey = expandEnv(cfg.Storage.Archives.Azure.AccountKey)
	cfg.Storage.Archives.S3.AccessKeyID = expandEnv(cfg.Storage.Archives.S3.AccessKeyID)
	cfg.Storage.Archives.S3.SecretAccessKey = expandEnv(cfg.Storage.Archives.S3.SecretAccessKey)
	cfg.Storage.Previews.Azure.AccountKey = expandEnv(cfg.Storage.Previews.Azure.AccountKey)
	cfg.Storage.Previews.S3.AccessKeyID = expandEnv(cfg.Storage.Previews.S3.AccessKeyID)
	cfg.Storage.Previews.S3.SecretAccessKey = expandEnv(cfg.Storage.Previews.S3.SecretAccessKey)
	cfg.Scanner.Token = expandEnv(cfg.Scanner.Token)
	cfg.Pinning.Token = expandEnv(cfg.Pinning.Token)
	cfg.Security.RateLimiting.RedisPassword = expandEnv(cfg.Security.RateLimiting.RedisPassword)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mvpmarket")
	v.SetDefault("database.user", "marketplace")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Storage defaults: local filesystem, previews served directly
	v.SetDefault("storage.archives.backend", "local")
	v.SetDefault("storage.archives.public", false)
	v.SetDefault("storage.archives.local.base_path", "./storage/archives")
	v.SetDefault("storage.archives.local.serve_directly", false)
	v.SetDefault("storage.previews.backend", "local")
	v.SetDefault("storage.previews.public", true)
	v.SetDefault("storage.previews.local.base_path", "./storage/previews")
	v.SetDefault("storage.previews.local.serve_directly", true)

	// Pipeline step timeouts
	v.SetDefault("scanner.timeout", "60s")
	v.SetDefault("pinning.timeout", "120s")
	v.SetDefault("github.timeout", "60s")
	v.SetDefault("github.api_base_url", "https://api.github.com")

	// Auth defaults
	v.SetDefault("auth.api_keys.enabled", true)
	v.SetDefault("auth.api_keys.prefix", "mvp")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Download defaults
	v.SetDefault("download.signed_url_ttl", "15m")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate storage backends
	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Storage.Archives.Backend] {
		return fmt.Errorf("invalid storage.archives.backend: %s", c.Storage.Archives.Backend)
	}
	if !validBackends[c.Storage.Previews.Backend] {
		return fmt.Errorf("invalid storage.previews.backend: %s", c.Storage.Previews.Backend)
	}

	// Pipeline timeouts must be positive so a hung remote call cannot park an
	// entry in pending_review forever.
	if c.Scanner.Timeout <= 0 {
		return fmt.Errorf("scanner.timeout must be positive")
	}
	if c.Pinning.Timeout <= 0 {
		return fmt.Errorf("pinning.timeout must be positive")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive")
	}

	return nil
}
