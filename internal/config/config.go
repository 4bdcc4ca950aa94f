package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ResponseFormatJSON   = "json"
	ResponseFormatBinary = "binary"

	LimiterBackendMemory = "memory"
	LimiterBackendRedis  = "redis"

	RemoverBackendHTTP  = "http"
	RemoverBackendLocal = "local"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Upload    UploadConfig
	Response  ResponseConfig
	RateLimit RateLimitConfig
	Remover   RemoverConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
	AllowedOrigins  []string
}

type AuthConfig struct {
	Enabled bool
	APIKey  string
	Header  string
}

type UploadConfig struct {
	MaxFileSize  int64
	MaxPixels    int64
	AllowedTypes []string
}

type ResponseConfig struct {
	Format string
}

type RateLimitConfig struct {
	Enabled  bool
	Window   time.Duration
	Max      int
	Backend  string
	SweepJob string
}

type RemoverConfig struct {
	Backend        string
	URL            string
	Timeout        time.Duration
	MaxDimension   int
	LocalTolerance int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "4001"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", nil),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			Enabled: getEnvAsBool("AUTH_ENABLED", true),
			APIKey:  getEnv("API_KEY", ""),
			Header:  getEnv("API_KEY_HEADER", "pango-api-key"),
		},
		Upload: UploadConfig{
			MaxFileSize:  getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB
			MaxPixels:    getEnvAsInt64("MAX_PIXELS", 40_000_000),
			AllowedTypes: []string{"image/jpeg", "image/png"},
		},
		Response: ResponseConfig{
			Format: strings.ToLower(getEnv("RESPONSE_FORMAT", ResponseFormatJSON)),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Window:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
			Max:      getEnvAsInt("RATE_LIMIT_MAX", 60),
			Backend:  strings.ToLower(getEnv("RATE_LIMIT_BACKEND", LimiterBackendMemory)),
			SweepJob: getEnv("RATE_LIMIT_SWEEP", "@every 1m"),
		},
		Remover: RemoverConfig{
			Backend:        strings.ToLower(getEnv("REMOVER_BACKEND", RemoverBackendHTTP)),
			URL:            getEnv("REMOVER_URL", "http://localhost:7000/api/remove"),
			Timeout:        getDuration("REMOVER_TIMEOUT", 60*time.Second),
			MaxDimension:   getEnvAsInt("REMOVER_MAX_DIMENSION", 0),
			LocalTolerance: getEnvAsInt("LOCAL_REMOVER_TOLERANCE", 48),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("RABBITMQ_QUEUE", "background_removal_events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every setting the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required when AUTH_ENABLED is true"))
	}
	if c.Auth.Header == "" {
		errs = append(errs, errors.New("API_KEY_HEADER must not be empty"))
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.Upload.MaxFileSize))
	}
	if c.Upload.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PIXELS must be positive, got %d", c.Upload.MaxPixels))
	}

	switch c.Response.Format {
	case ResponseFormatJSON, ResponseFormatBinary:
	default:
		errs = append(errs, fmt.Errorf("unknown RESPONSE_FORMAT %q", c.Response.Format))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window))
		}
		if c.RateLimit.Max <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimit.Max))
		}
		switch c.RateLimit.Backend {
		case LimiterBackendMemory, LimiterBackendRedis:
		default:
			errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
		}
	}

	switch c.Remover.Backend {
	case RemoverBackendHTTP:
		if c.Remover.URL == "" {
			errs = append(errs, errors.New("REMOVER_URL is required for the http remover"))
		}
	case RemoverBackendLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown REMOVER_BACKEND %q", c.Remover.Backend))
	}
	if c.Remover.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("REMOVER_TIMEOUT must be positive, got %s", c.Remover.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MaxFileSizeMB is the upload limit in whole megabytes, as shown to clients.
func (c *Config) MaxFileSizeMB() int64 {
	return c.Upload.MaxFileSize / (1024 * 1024)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
