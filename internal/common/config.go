package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	// DSN is a postgres:// URL or a SQLite file path.
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// IsPostgres reports whether DSN selects the pgx driver.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.DSN, "postgres://") || strings.HasPrefix(d.DSN, "postgresql://")
}

// RedisConfig enables the live mission roster when URL is set.
type RedisConfig struct {
	URL    string
	Prefix string
	TTL    time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	CORSOrigins []string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model        string
	APIKey       string
	BaseURL      string
	Temperature  float32
	Timeout      time.Duration
	MaxAttempts  int
	MaxTokens    int
	MaxTokensCap int
	TokenGrowth  float64
	RetryDelay   time.Duration
}

// PipelineConfig holds interpretation settings.
type PipelineConfig struct {
	Timezone         string
	InterpretTimeout time.Duration
	ResultCacheSize  int
}

// Location loads the deployment's timezone.
func (p PipelineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// QueueConfig sizes the async ingest queue.
type QueueConfig struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// LoadDotEnv seeds the environment from .env files that exist; variables
// already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "responders.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Prefix: getEnv("REDIS_PREFIX", "responders"),
			TTL:    getEnvAsDuration("REDIS_ROSTER_TTL", 48*time.Hour),
		},
		Server: ServerConfig{
			HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:    getEnv("GRPC_ADDR", ""),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		LLM: LLMConfig{
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:  getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxAttempts:  getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			MaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 600),
			MaxTokensCap: getEnvAsInt("LLM_MAX_TOKENS_CAP", 4000),
			TokenGrowth:  getEnvAsFloat64("LLM_TOKEN_GROWTH", 2.0),
			RetryDelay:   getEnvAsDuration("LLM_RETRY_DELAY", 250*time.Millisecond),
		},
		Pipeline: PipelineConfig{
			Timezone:         getEnv("TIMEZONE", "America/Los_Angeles"),
			InterpretTimeout: getEnvAsDuration("INTERPRET_TIMEOUT", 90*time.Second),
			ResultCacheSize:  getEnvAsInt("RESULT_CACHE_SIZE", 1024),
		},
		Queue: QueueConfig{
			Workers:    getEnvAsInt("QUEUE_WORKERS", 4),
			Size:       getEnvAsInt("QUEUE_SIZE", 256),
			JobTimeout: getEnvAsDuration("QUEUE_JOB_TIMEOUT", 2*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
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

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration. A missing OPENAI_API_KEY is
// not an error: the pipeline then runs with the model reported unavailable.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if _, err := c.Pipeline.Location(); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("TIMEZONE %q is not a known zone", c.Pipeline.Timezone), err)
	}
	if c.LLM.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "LLM_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	if c.LLM.MaxTokensCap < c.LLM.MaxTokens {
		return NewAppError("CONFIG_ERROR", "LLM_MAX_TOKENS_CAP must not be below LLM_MAX_TOKENS", ErrInvalidInput)
	}
	if c.Queue.Workers < 1 || c.Queue.Size < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS and QUEUE_SIZE must be positive", ErrInvalidInput)
	}
	return nil
}
