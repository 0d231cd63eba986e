package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the GitVault API.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	GitHub    GitHubConfig
	Auth      AuthConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	LogLevel  string
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// GitHubConfig carries hosting-provider credentials and the retry
// policy applied to repository creation.
type GitHubConfig struct {
	Token          string
	Owner          string
	APIBaseURL     string
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// AuthConfig groups settings for verifying tokens issued by the
// external auth provider. No tokens are issued locally.
type AuthConfig struct {
	JWTSecret string
}

// StorageConfig holds the allocation and capacity policy.
type StorageConfig struct {
	MaxFileSizeMB       float64
	MaxBucketSizeMB     float64
	FilesPerBucket      int
	MaxBucketsPerUser   int
	MaxBucketNameTries  int
	MaxBatchFiles       int
	BatchUploadDelay    time.Duration
	AllowedContentTypes []string
}

// RateLimitConfig bounds per-user mutating requests.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("GITVAULT_API_HOST", "0.0.0.0"),
			Port:         getInt("GITVAULT_API_PORT", 8080),
			ReadTimeout:  getDuration("GITVAULT_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("GITVAULT_API_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getDuration("GITVAULT_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "gitvault_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "gitvault"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		GitHub: GitHubConfig{
			Token:          getString("GITHUB_TOKEN", ""),
			Owner:          getString("GITHUB_OWNER", ""),
			APIBaseURL:     getString("GITHUB_API_BASE_URL", ""),
			RetryAttempts:  getInt("GITHUB_CREATE_RETRY_ATTEMPTS", 3),
			RetryBaseDelay: getDuration("GITHUB_CREATE_RETRY_BASE_DELAY", time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getString("AUTH_JWT_SECRET", "change-me-to-the-provider-secret"),
		},
		Storage: StorageConfig{
			MaxFileSizeMB:       getFloat("MAX_FILE_SIZE_MB", 2048),
			MaxBucketSizeMB:     getFloat("MAX_REPO_SIZE_MB", 800),
			FilesPerBucket:      getInt("FILES_PER_REPO", 1000),
			MaxBucketsPerUser:   getInt("MAX_REPOS_PER_USER", 50),
			MaxBucketNameTries:  getInt("GITVAULT_MAX_NAME_ATTEMPTS", 50),
			MaxBatchFiles:       getInt("GITVAULT_MAX_BATCH_FILES", 50),
			BatchUploadDelay:    getDuration("GITVAULT_BATCH_UPLOAD_DELAY", 500*time.Millisecond),
			AllowedContentTypes: getStringSlice("GITVAULT_ALLOWED_CONTENT_TYPES", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getInt("GITVAULT_RATE_LIMIT_PER_MINUTE", 60),
			Burst:             getInt("GITVAULT_RATE_LIMIT_BURST", 10),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("GITVAULT_METRICS_PATH", "/metrics"),
		},
		LogLevel: getString("GITVAULT_LOG_LEVEL", "info"),
	}

	if cfg.Storage.MaxFileSizeMB <= 0 {
		return Config{}, fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}
	if cfg.Storage.MaxBucketSizeMB <= 0 {
		return Config{}, fmt.Errorf("MAX_REPO_SIZE_MB must be positive")
	}
	if cfg.GitHub.RetryAttempts < 1 {
		cfg.GitHub.RetryAttempts = 1
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getStringSlice(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
