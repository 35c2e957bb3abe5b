package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	AdminBootstrap AdminBootstrapConfig
	CORS           CORSConfig
	Webhooks       WebhooksConfig
	Blockchain     BlockchainConfig
	Email          EmailConfig
	Redis          RedisConfig
	Localization   LocalizationConfig
	Logging        LoggingConfig
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	Issuer    string
}

type RateLimitConfig struct {
	PublicPerMinute      int
	AdminPerMinute       int
	MutationPer15Minutes int
	LoginPer15Minutes    int
	TrustedProxyCIDRs    []string
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

type AdminBootstrapConfig struct {
	Username string
	Password string
	Email    string
}

type WebhooksConfig struct {
	DeliveryTimeout time.Duration
	MaxAttempts     int
}

type BlockchainConfig struct {
	GatewayURL  string
	APIKey      string
	Network     string
	MaxAttempts int
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ReportsTTL time.Duration
}

type LocalizationConfig struct {
	DefaultLocale string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	// .env is a development convenience; a missing file is not an error.
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			Issuer:    getEnv("JWT_ISSUER", "tradeconnect"),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:      getEnvInt("RATE_LIMIT_PUBLIC", 60),
			AdminPerMinute:       getEnvInt("RATE_LIMIT_ADMIN", 0),
			MutationPer15Minutes: getEnvInt("RATE_LIMIT_MUTATION", 10),
			LoginPer15Minutes:    getEnvInt("RATE_LIMIT_LOGIN", 5),
			TrustedProxyCIDRs:    getEnvList("TRUSTED_PROXY_CIDRS"),
		},
		CORS: CORSConfig{
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
			AllowAllOrigins: getEnv("ENVIRONMENT", "development") == "development",
		},
		AdminBootstrap: AdminBootstrapConfig{
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
		},
		Webhooks: WebhooksConfig{
			DeliveryTimeout: time.Duration(getEnvInt("WEBHOOK_DELIVERY_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxAttempts:     getEnvInt("WEBHOOK_MAX_ATTEMPTS", 8),
		},
		Blockchain: BlockchainConfig{
			GatewayURL:  getEnv("BLOCKCHAIN_GATEWAY_URL", ""),
			APIKey:      getEnv("BLOCKCHAIN_API_KEY", ""),
			Network:     getEnv("BLOCKCHAIN_NETWORK", "polygon"),
			MaxAttempts: getEnvInt("BLOCKCHAIN_MAX_ATTEMPTS", 10),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "TradeConnect <noreply@tradeconnect.gt>"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			ReportsTTL: time.Duration(getEnvInt("REDIS_REPORTS_TTL_SECONDS", 60)) * time.Second,
		},
		Localization: LocalizationConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "es"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
