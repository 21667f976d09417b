package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// バックエンド種別。
const (
	BackendFS       = "fs"
	BackendPostgres = "postgres"
	BackendMinio    = "minio"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort     string
	BaseURL        string
	RequestTimeout time.Duration

	// Storage
	StorageBackend string
	StorageRoot    string
	DatabaseURL    string

	// Slot
	SlotBackend    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPrefix    string
	MaxUploadBytes int64

	// CORS
	CORSAllowedOrigins []string

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 選択したバックエンドに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         getEnvString("SERVER_PORT", "3001"),
		BaseURL:            strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		StorageBackend:     strings.ToLower(getEnvString("STORAGE_BACKEND", BackendFS)),
		StorageRoot:        getEnvString("STORAGE_ROOT", "./storage"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SlotBackend:        strings.ToLower(getEnvString("SLOT_BACKEND", BackendFS)),
		MinioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        os.Getenv("MINIO_BUCKET"),
		MinioPrefix:        getEnvString("MINIO_PREFIX", "cabinet/"),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitGeneral:   getEnvInt("RATE_LIMIT_GENERAL", 120),
		RateLimitAuth:      getEnvInt("RATE_LIMIT_AUTH", 10),
		LogLevel:           getEnvString("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string

	switch c.StorageBackend {
	case BackendFS:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.StorageBackend)
	}

	switch c.SlotBackend {
	case BackendFS:
	case BackendMinio:
		if c.MinioEndpoint == "" {
			missing = append(missing, "MINIO_ENDPOINT")
		}
		if c.MinioAccessKey == "" {
			missing = append(missing, "MINIO_ACCESS_KEY")
		}
		if c.MinioSecretKey == "" {
			missing = append(missing, "MINIO_SECRET_KEY")
		}
		if c.MinioBucket == "" {
			missing = append(missing, "MINIO_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported SLOT_BACKEND: %q", c.SlotBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive: %d", c.MaxUploadBytes)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		return fmt.Errorf("rate limits must be positive: general=%d auth=%d", c.RateLimitGeneral, c.RateLimitAuth)
	}
	return nil
}

// UsesPostgres はアカウントとAPIキーをPostgreSQLに保存する構成かを返す。
func (c *Config) UsesPostgres() bool {
	return c.StorageBackend == BackendPostgres
}

// UsesMinio はファイルスロットをオブジェクトストレージに置く構成かを返す。
func (c *Config) UsesMinio() bool {
	return c.SlotBackend == BackendMinio
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

// getEnvList はカンマ区切りの値を分割し、空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
