package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Dispatch
	TickInterval          time.Duration
	DispatchMaxWorkers    int
	SendTimeout           time.Duration
	DefaultTimezone       string
	DeliveryRetentionDays int

	// Content
	NewsAPIKey    string
	NewsAPIURL    string
	FeedURLs      []string
	FetchTimeout  time.Duration
	FetchMaxSize  int64
	FetchMaxItems int

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort  string
	MetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// SMTP設定は任意: 未設定の場合、メール送信は失敗として台帳に記録される。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TickInterval = getEnvDuration("TICK_INTERVAL", time.Minute)
	cfg.DispatchMaxWorkers = getEnvInt("DISPATCH_MAX_WORKERS", 10)
	cfg.SendTimeout = getEnvDuration("SEND_TIMEOUT", 10*time.Second)
	cfg.DefaultTimezone = getEnvString("DEFAULT_TIMEZONE", "Asia/Kolkata")
	cfg.DeliveryRetentionDays = getEnvInt("DELIVERY_RETENTION_DAYS", 180)

	cfg.NewsAPIKey = os.Getenv("NEWS_API_KEY")
	cfg.NewsAPIURL = getEnvString("NEWS_API_URL", "https://newsapi.org/v2/everything")
	cfg.FeedURLs = getEnvStringList("FEED_URLS")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxItems = getEnvInt("FETCH_MAX_ITEMS", 8)

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvString("SMTP_PORT", "465")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", cfg.SMTPUsername)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// SMTPConfigured はメール送信に必要なSMTP設定が揃っているかを返す。
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvStringList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
