package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Dataset   DatasetConfig   `json:"dataset"`
	Analytics AnalyticsConfig `json:"analytics"`
	Cache     CacheConfig     `json:"cache"`
	Scheduler SchedulerConfig `json:"scheduler"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Logger    LoggerConfig    `json:"logger"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port           int           `json:"port"`
	Host           string        `json:"host"`
	Environment    string        `json:"environment"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxHeaderBytes int           `json:"max_header_bytes"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// DatasetConfig represents where prescription data is read from
type DatasetConfig struct {
	Path            string `json:"path"`
	Sheet           string `json:"sheet"`
	FallbackEnabled bool   `json:"fallback_enabled"`
	Seed            int64  `json:"seed"`
}

// AnalyticsConfig holds defaults applied when a request omits a parameter
type AnalyticsConfig struct {
	ForecastHorizon int     `json:"forecast_horizon"`
	TestPeriods     int     `json:"test_periods"`
	Workers         int     `json:"workers"`
	Threshold       float64 `json:"threshold"`
	Contamination   float64 `json:"contamination"`
	Clusters        int     `json:"clusters"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	LocalSize     int64         `json:"local_size"`
	LocalTTL      time.Duration `json:"local_ttl"`
	RedisEnabled  bool          `json:"redis_enabled"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	RedisTTL      time.Duration `json:"redis_ttl"`
	DialTimeout   time.Duration `json:"dial_timeout"`
}

// SchedulerConfig represents background job scheduling configuration
type SchedulerConfig struct {
	Enabled    bool          `json:"enabled"`
	WarmSpec   string        `json:"warm_spec"` // Cron expression
	JobTimeout time.Duration `json:"job_timeout"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `json:"enabled"`
	RequestsPerMin int           `json:"requests_per_minute"`
	BurstSize      int           `json:"burst_size"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	Filename   string `json:"filename"`
	MaxSize    int    `json:"max_size"`
	MaxAge     int    `json:"max_age"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if exists
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8090),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 90*time.Second),
			MaxHeaderBytes: getEnvInt("SERVER_MAX_HEADER_BYTES", 1048576),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},

		Dataset: DatasetConfig{
			Path:            getEnv("DATASET_PATH", "monthly_summary.csv"),
			Sheet:           getEnv("DATASET_SHEET", ""),
			FallbackEnabled: getEnvBool("DATASET_FALLBACK_ENABLED", true),
			Seed:            int64(getEnvInt("DATASET_SEED", 42)),
		},

		Analytics: AnalyticsConfig{
			ForecastHorizon: getEnvInt("ANALYTICS_FORECAST_HORIZON", 6),
			TestPeriods:     getEnvInt("ANALYTICS_TEST_PERIODS", 6),
			Workers:         getEnvInt("ANALYTICS_WORKERS", runtime.NumCPU()),
			Threshold:       getEnvFloat("ANALYTICS_OUTLIER_THRESHOLD", 1.5),
			Contamination:   getEnvFloat("ANALYTICS_OUTLIER_CONTAMINATION", 0.1),
			Clusters:        getEnvInt("ANALYTICS_CLUSTERS", 4),
		},

		Cache: CacheConfig{
			LocalSize:     int64(getEnvInt("CACHE_LOCAL_SIZE", 500)),
			LocalTTL:      getEnvDuration("CACHE_LOCAL_TTL", 30*time.Minute),
			RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisTTL:      getEnvDuration("CACHE_REDIS_TTL", 2*time.Hour),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},

		Scheduler: SchedulerConfig{
			Enabled:    getEnvBool("SCHEDULER_ENABLED", true),
			WarmSpec:   getEnv("SCHEDULER_WARM_SPEC", "@every 30m"),
			JobTimeout: getEnvDuration("SCHEDULER_JOB_TIMEOUT", 10*time.Minute),
		},

		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST_SIZE", 20),
			IdleTimeout:    getEnvDuration("RATE_LIMIT_IDLE_TIMEOUT", 10*time.Minute),
		},

		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", ""),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Analytics.ForecastHorizon < 1 {
		return fmt.Errorf("forecast horizon must be at least 1, got %d", c.Analytics.ForecastHorizon)
	}

	if c.Analytics.TestPeriods < 1 {
		return fmt.Errorf("test periods must be at least 1, got %d", c.Analytics.TestPeriods)
	}

	if c.Analytics.Threshold < 0.1 || c.Analytics.Threshold > 3.0 {
		return fmt.Errorf("outlier threshold must be within [0.1, 3.0], got %v", c.Analytics.Threshold)
	}

	if c.Analytics.Contamination < 0.01 || c.Analytics.Contamination > 0.25 {
		return fmt.Errorf("outlier contamination must be within [0.01, 0.25], got %v", c.Analytics.Contamination)
	}

	if c.Analytics.Clusters < 1 {
		return fmt.Errorf("cluster count must be at least 1, got %d", c.Analytics.Clusters)
	}

	if c.Analytics.Workers < 1 {
		logrus.Warnf("Analytics workers set to %d, using 1", c.Analytics.Workers)
		c.Analytics.Workers = 1
	}

	if c.Cache.RedisEnabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if !c.Dataset.FallbackEnabled && c.Dataset.Path == "" {
		return fmt.Errorf("dataset path is required when the sample fallback is disabled")
	}

	if c.IsProduction() && c.Dataset.FallbackEnabled {
		logrus.Warn("Sample data fallback is enabled in production, results may come from synthetic data")
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment reports whether the service runs in development
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
