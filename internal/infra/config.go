package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// Filesystem surface: per-job input and output trees live under these
	// roots, addressed by job id.
	UploadDir    string
	ProcessedDir string

	// Batch engine tuning.
	BatchSize        int
	BatchPause       time.Duration
	TaskTimeout      time.Duration
	MaxPoolWorkers   int
	EditorSessionTTL time.Duration

	// Hosted segmentation provider (premium tier).
	DashScopeAPIKey  string
	DashScopeBaseURL string
	PremiumFallback  bool

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		ProcessedDir:     getEnv("PROCESSED_DIR", "./processed"),
		BatchSize:        getEnvInt("BATCH_SIZE", 5),
		BatchPause:       getEnvDuration("BATCH_PAUSE", 500*time.Millisecond),
		TaskTimeout:      getEnvDuration("TASK_TIMEOUT", 5*time.Minute),
		MaxPoolWorkers:   getEnvInt("MAX_POOL_WORKERS", 30),
		EditorSessionTTL: getEnvDuration("EDITOR_SESSION_TTL", time.Hour),
		DashScopeAPIKey:  os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL: getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		PremiumFallback:  getEnvBool("PREMIUM_FALLBACK", true),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
