package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Telegram TelegramConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port        string
	Environment string
	BaseURL     string
}

type DatabaseConfig struct {
	URL  string
	Name string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type UpstreamConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type TelegramConfig struct {
	Token   string
	AdminID int64
}

type AdminConfig struct {
	JWTSecret    string
	PasswordHash string
	JWTExpiry    int
}

// Load reads configuration from the environment. Missing required
// variables are a startup error, not a per-request condition.
func Load() (*Config, error) {
	if missing := missingRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	adminID, err := strconv.ParseInt(os.Getenv("ADMIN_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_ID: %w", err)
	}

	timeoutSecs, err := strconv.ParseFloat(getEnv("UPSTREAM_TIMEOUT", "6"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtExpiry, err := strconv.Atoi(getEnv("JWT_EXPIRY_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			BaseURL:     getEnv("BASE_URL", "https://usesir-ai.vercel.app"),
		},
		Database: DatabaseConfig{
			URL:  os.Getenv("DATABASE_URL"),
			Name: getEnv("DB_NAME", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Upstream: UpstreamConfig{
			URL:     os.Getenv("API_URL"),
			APIKey:  os.Getenv("AI_API_KEY"),
			Timeout: time.Duration(timeoutSecs * float64(time.Second)),
		},
		Telegram: TelegramConfig{
			Token:   os.Getenv("TELEGRAM_TOKEN"),
			AdminID: adminID,
		},
		Admin: AdminConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			JWTExpiry:    jwtExpiry,
		},
	}

	return cfg, nil
}

// DSN builds the postgres connection string. DB_NAME, when set, overrides
// the database named in DATABASE_URL (keyword/value DSN form).
func (d DatabaseConfig) DSN() string {
	if d.Name == "" {
		return d.URL
	}
	return d.URL + " dbname=" + d.Name
}

var requiredVars = []string{"DATABASE_URL", "API_URL", "AI_API_KEY", "TELEGRAM_TOKEN", "ADMIN_ID"}

// The required variables are validated as a batch before any field is
// read, so plain os.Getenv is safe everywhere below.
func missingRequired() []string {
	var missing []string
	for _, name := range requiredVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
