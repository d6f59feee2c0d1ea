package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity
	AdminEmail        string
	IdentityJWTSecret string

	// Server
	ServerPort  string
	Environment string

	// Logging
	LogLevel string

	// Rate Limit
	RateLimitPerHour int

	// Upload
	UploadDir      string
	UploadMaxBytes int64

	// ImageCleanupIntervalHours は未参照画像の削除間隔（0以下で無効）
	ImageCleanupIntervalHours int

	// Users
	UsersPageLimitMax int

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

	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")
	if cfg.AdminEmail == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityJWTSecret = os.Getenv("IDENTITY_JWT_SECRET")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.Environment = strings.ToLower(getEnvString("ENVIRONMENT", "production"))
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.RateLimitPerHour = getEnvInt("RATE_LIMIT_PER_HOUR", 200)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "public/productImg")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 5*1024*1024)
	cfg.ImageCleanupIntervalHours = getEnvInt("IMAGE_CLEANUP_INTERVAL_HOURS", 24)
	cfg.UsersPageLimitMax = getEnvInt("USERS_PAGE_LIMIT_MAX", 100)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// IsDevelopment は詳細なエラー出力を行う開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
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
