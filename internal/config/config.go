package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig
	Storage      StorageConfig
	DB           DBConfig
	Redis        RedisConfig
	Codes        CodeConfig
	Clicks       ClickConfig
	Reachability ReachabilityConfig
	CORS         CORSConfig
}

type AppConfig struct {
	Port    string
	Env     string
	BaseURL string
}

// IsDevelopment включает dev-логгер и debug-режим gin
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

type StorageConfig struct {
	Backend string // memory, postgres, redis
	Shards  int
}

type DBConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
	MaxConns    int32
}

// DSN строка подключения к PostgreSQL
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		sslMode,
	)
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
	PoolSize  int
}

type CodeConfig struct {
	Length      int
	MaxAttempts int
}

type ClickConfig struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
	WaitTimeout  time.Duration
}

type ReachabilityConfig struct {
	Enabled           bool
	Timeout           time.Duration
	RequestsPerSecond float64
	AllowPrivate      bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Load читает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile читает конфигурацию из указанного env-файла. Отсутствие файла не ошибка:
// переменные окружения имеют приоритет над файлом.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.Env = strings.ToLower(v.GetString("APP_ENV"))
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")

	cfg.Storage.Backend = strings.ToLower(v.GetString("STORAGE_BACKEND"))
	cfg.Storage.Shards = v.GetInt("STORAGE_SHARDS")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")
	cfg.DB.MaxConns = v.GetInt32("DB_MAX_CONNS")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.KeyPrefix = v.GetString("REDIS_KEY_PREFIX")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")

	cfg.Codes.Length = v.GetInt("CODE_LENGTH")
	cfg.Codes.MaxAttempts = v.GetInt("CODE_MAX_ATTEMPTS")

	cfg.Clicks.Workers = v.GetInt("CLICK_WORKERS")
	cfg.Clicks.QueueSize = v.GetInt("CLICK_QUEUE_SIZE")
	cfg.Clicks.WriteTimeout = v.GetDuration("CLICK_WRITE_TIMEOUT")
	cfg.Clicks.WaitTimeout = v.GetDuration("CLICK_WAIT_TIMEOUT")

	cfg.Reachability.Enabled = v.GetBool("REACHABILITY_CHECK")
	cfg.Reachability.Timeout = v.GetDuration("REACHABILITY_TIMEOUT")
	cfg.Reachability.RequestsPerSecond = v.GetFloat64("REACHABILITY_RPS")
	cfg.Reachability.AllowPrivate = v.GetBool("REACHABILITY_ALLOW_PRIVATE")

	// Формат: origin1,origin2
	cfg.CORS.AllowedOrigins = parseList(v.GetString("CORS_ALLOWED_ORIGINS"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "5000")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("APP_BASE_URL", "http://localhost:5000")

	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("STORAGE_SHARDS", 32)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tinylink")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MAX_CONNS", 25)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "tinylink:")
	v.SetDefault("REDIS_POOL_SIZE", 100)

	v.SetDefault("CODE_LENGTH", 6)
	v.SetDefault("CODE_MAX_ATTEMPTS", 100)

	v.SetDefault("CLICK_WORKERS", 4)
	v.SetDefault("CLICK_QUEUE_SIZE", 1024)
	v.SetDefault("CLICK_WRITE_TIMEOUT", 5*time.Second)
	v.SetDefault("CLICK_WAIT_TIMEOUT", 2*time.Second)

	v.SetDefault("REACHABILITY_CHECK", false)
	v.SetDefault("REACHABILITY_TIMEOUT", 3*time.Second)
	v.SetDefault("REACHABILITY_RPS", 5.0)
	v.SetDefault("REACHABILITY_ALLOW_PRIVATE", false)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.Shards <= 0 {
		return fmt.Errorf("STORAGE_SHARDS must be positive, got %d", c.Storage.Shards)
	}
	if c.Codes.Length < 6 || c.Codes.Length > 8 {
		return fmt.Errorf("CODE_LENGTH must be within [6, 8], got %d", c.Codes.Length)
	}
	if c.Codes.MaxAttempts <= 0 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be positive, got %d", c.Codes.MaxAttempts)
	}
	if c.Clicks.Workers <= 0 || c.Clicks.QueueSize <= 0 {
		return fmt.Errorf("CLICK_WORKERS and CLICK_QUEUE_SIZE must be positive")
	}
	if c.Clicks.WriteTimeout <= 0 || c.Clicks.WaitTimeout <= 0 {
		return fmt.Errorf("CLICK_WRITE_TIMEOUT and CLICK_WAIT_TIMEOUT must be positive")
	}
	return nil
}

// parseList разбирает список, разделённый запятыми, пропуская пустые элементы
func parseList(raw string) []string {
	items := make([]string, 0)
	if raw == "" {
		return items
	}

	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
