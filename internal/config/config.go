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

	// Federated login
	GoogleClientID string

	// Session
	SessionMaxAge int

	// Verification
	VerificationCodeTTL time.Duration
	ResendCooldown      time.Duration

	// Mail
	SMTPAddr     string
	SMTPHost     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Sweep worker
	SweepRetention time.Duration
	SweepInterval  time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.VerificationCodeTTL = getEnvDuration("VERIFICATION_CODE_TTL", 10*time.Minute)
	cfg.ResendCooldown = getEnvDuration("RESEND_COOLDOWN", 30*time.Second)
	cfg.SMTPAddr = getEnvString("SMTP_ADDR", "")
	cfg.SMTPHost = smtpHostFromAddr(cfg.SMTPAddr)
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@taqafit.example")
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.SweepRetention = getEnvDuration("SWEEP_RETENTION", 7*24*time.Hour)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// smtpHostFromAddr は"host:port"形式のアドレスからホスト名部分を取り出す。
func smtpHostFromAddr(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, found := strings.Cut(addr, ":")
	if !found {
		return addr
	}
	return host
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
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
