package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the service, read from environment
// variables.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	NumWorkers      int
	MaxRetries      int
	LeaseTTL        time.Duration
	RatePerChat     int
	AutoUnsubscribe bool

	TelegramToken   string
	TelegramBaseURL string

	// Optional operator email alerts; disabled when SMTPHost is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AlertFrom    string
	AlertTo      string

	WindURL            string
	WindPollInterval   time.Duration
	WindSpeedThreshold float64
	WindSectorFrom     int
	WindSectorTo       int
	WindCandidateSteps int
	WindCooldownSteps  int
	WindTimezone       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		NumWorkers:      getEnvInt("NUM_WORKERS", 8),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		LeaseTTL:        getEnvDuration("LEASE_TTL", 30*time.Second),
		RatePerChat:     getEnvInt("RATE_PER_CHAT", 1),
		AutoUnsubscribe: getEnvBool("AUTO_UNSUBSCRIBE", true),

		TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBaseURL: getEnv("TELEGRAM_API_BASE_URL", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		AlertFrom:    getEnv("ALERT_EMAIL_FROM", ""),
		AlertTo:      getEnv("ALERT_EMAIL_TO", ""),

		WindURL:            getEnv("WIND_URL", "http://3volna.ru/anemometer/getwind?id=1"),
		WindPollInterval:   getEnvDuration("WIND_POLL_INTERVAL", 55*time.Second),
		WindSpeedThreshold: getEnvFloat("WIND_SPEED_THRESHOLD", 5.0),
		WindSectorFrom:     getEnvInt("WIND_SECTOR_FROM", 270),
		WindSectorTo:       getEnvInt("WIND_SECTOR_TO", 90),
		WindCandidateSteps: getEnvInt("WIND_CANDIDATE_STEPS", 5),
		WindCooldownSteps:  getEnvInt("WIND_COOLDOWN_STEPS", 5),
		WindTimezone:       getEnv("WIND_TIMEZONE", "Asia/Vladivostok"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
