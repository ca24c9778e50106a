package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	RedisURL   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret  string
	SessionTTL time.Duration

	// Email provider. An empty API key disables sending; the rest of the
	// system keeps responding.
	SendGridAPIKey string
	FromEmail      string
	ContactEmail   string
	AppBaseURL     string

	InviteTTL       time.Duration
	CodeTTL         time.Duration
	SweepInterval   time.Duration
	RecordRetention time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	sessionMinutes, err := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL_MINUTES: %w", err)
	}

	inviteDays, err := strconv.Atoi(getEnv("INVITE_TTL_DAYS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid INVITE_TTL_DAYS: %w", err)
	}

	codeMinutes, err := strconv.Atoi(getEnv("VERIFICATION_CODE_TTL_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFICATION_CODE_TTL_MINUTES: %w", err)
	}

	sweepMinutes, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_MINUTES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}

	retentionDays, err := strconv.Atoi(getEnv("RECORD_RETENTION_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECORD_RETENTION_DAYS: %w", err)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "ridewatch"),
		DBPassword: getEnv("DB_PASSWORD", "dev"),
		DBName:     getEnv("DB_NAME", "ridewatch"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: time.Duration(sessionMinutes) * time.Minute,

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		FromEmail:      getEnv("FROM_EMAIL", "noreply@ridewatch.org"),
		ContactEmail:   getEnv("CONTACT_EMAIL", "support@ridewatch.org"),
		AppBaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", "https://app.ridewatch.org"), "/"),

		InviteTTL:       time.Duration(inviteDays) * 24 * time.Hour,
		CodeTTL:         time.Duration(codeMinutes) * time.Minute,
		SweepInterval:   time.Duration(sweepMinutes) * time.Minute,
		RecordRetention: time.Duration(retentionDays) * 24 * time.Hour,

		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
