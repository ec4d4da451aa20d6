// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env              string
	Port             string
	AllowedOrigins   string
	PublicAPIBaseURL string
	LogLevel         string

	JWTSecret string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	NATSURL   string
	NATSToken string

	PaymentKeyID     string
	PaymentKeySecret string
	PaymentBaseURL   string
	PaymentCurrency  string
	PaymentTimeout   time.Duration

	TypingIdleWindow     time.Duration
	MaxMessageLength     int
	MaxAttachmentBytes   int64
	OverdueSweepInterval time.Duration
}

func Load() *Config {
	return &Config{
		Env:              getEnv("ENV", "production"),
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", ""),
		PublicAPIBaseURL: strings.TrimRight(getEnv("PUBLIC_API_BASE_URL", "http://localhost:8080/api"), "/"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "agencyflow"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		S3Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		S3Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		S3SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		S3UseSSL:    getBoolEnv("S3_USE_SSL", false),

		NATSURL:   os.Getenv("NATS_URL"),
		NATSToken: os.Getenv("NATS_TOKEN"),

		PaymentKeyID:     os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret: os.Getenv("PAYMENT_KEY_SECRET"),
		PaymentBaseURL:   getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com/v1"),
		PaymentCurrency:  getEnv("PAYMENT_CURRENCY", "INR"),
		PaymentTimeout:   getDurationEnv("PAYMENT_TIMEOUT", 10*time.Second),

		TypingIdleWindow:     getDurationEnv("TYPING_IDLE_WINDOW", 3*time.Second),
		MaxMessageLength:     getIntEnv("MAX_MESSAGE_LENGTH", 4000),
		MaxAttachmentBytes:   int64(getIntEnv("MAX_ATTACHMENT_BYTES", 25*1024*1024)),
		OverdueSweepInterval: getDurationEnv("OVERDUE_SWEEP_INTERVAL", 5*time.Minute),
	}
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxMessageLength < 1 {
		return errors.New("MAX_MESSAGE_LENGTH must be positive")
	}
	return nil
}

// PaymentsEnabled reports whether gateway credentials are present.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentKeyID != "" && c.PaymentKeySecret != ""
}

func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
