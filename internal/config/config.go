package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Driver          string `mapstructure:"DB_DRIVER" validate:"oneof=postgres sqlite"`
	SQLitePath      string `mapstructure:"DB_SQLITE_PATH"`
	Host            string `mapstructure:"DB_HOST" validate:"required"`
	Port            int    `mapstructure:"DB_PORT" validate:"min=1,max=65535"`
	User            string `mapstructure:"DB_USER" validate:"required"`
	Password        string `mapstructure:"DB_PASSWORD"`
	Name            string `mapstructure:"DB_NAME" validate:"required"`
	SSLMode         string `mapstructure:"DB_SSLMODE"`
	TimeZone        string `mapstructure:"DB_TIMEZONE"`
	MaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifeTime int    `mapstructure:"DB_CONN_MAX_LIFETIME_MIN"` // минут
}

type RedisConfig struct {
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB" validate:"min=0"`
}

// BookingConfig: параметры движка допуска.
type BookingConfig struct {
	DefaultSlotCapacity int    `mapstructure:"DEFAULT_SLOT_CAPACITY" validate:"min=1"`
	AdmitMaxAttempts    int    `mapstructure:"ADMIT_MAX_ATTEMPTS" validate:"min=1"`
	LedgerWriteAttempts int    `mapstructure:"LEDGER_WRITE_ATTEMPTS" validate:"min=1"`
	BookingTimeZone     string `mapstructure:"BOOKING_TIMEZONE" validate:"required"`
	MaxBlockDays        int    `mapstructure:"MAX_BLOCK_DAYS" validate:"min=1"`
	LockBackend         string `mapstructure:"LOCK_BACKEND" validate:"oneof=memory redis"`
	LockWaitMS          int    `mapstructure:"LOCK_WAIT_MS" validate:"min=1"`
	LockTTLMS           int    `mapstructure:"LOCK_TTL_MS" validate:"min=1"`
}

type NotifyConfig struct {
	NotifyMaxAttempts    int    `mapstructure:"NOTIFY_MAX_ATTEMPTS" validate:"min=1"`
	NotifyRetryDelayMS   int    `mapstructure:"NOTIFY_RETRY_DELAY_MS" validate:"min=0"`
	NotifyRedisEnabled   bool   `mapstructure:"NOTIFY_REDIS_ENABLED"`
	NotifyRedisChannel   string `mapstructure:"NOTIFY_REDIS_CHANNEL"`
	DispatchEnabled      bool   `mapstructure:"DISPATCH_ENABLED"`
	DispatchQueue        string `mapstructure:"DISPATCH_QUEUE"`
	DispatchMaxRetry     int    `mapstructure:"DISPATCH_MAX_RETRY" validate:"min=0"`
	JournalEnabled       bool   `mapstructure:"JOURNAL_ENABLED"`
	WebsocketBufferSize  int    `mapstructure:"WS_BUFFER_SIZE" validate:"min=1"`
	WebsocketWriteWaitMS int    `mapstructure:"WS_WRITE_WAIT_MS" validate:"min=1"`
}

type HTTPConfig struct {
	HTTPAddr           string  `mapstructure:"HTTP_ADDR" validate:"required"`
	GRPCAddr           string  `mapstructure:"GRPC_ADDR" validate:"required"`
	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST" validate:"min=1"`
	CORSAllowedOrigins string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
	HTTPTrustedProxies string  `mapstructure:"HTTP_TRUSTED_PROXIES"`
}

type Config struct {
	Env      string `mapstructure:"ENV" validate:"oneof=development production test"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	DBConfig      `mapstructure:",squash"`
	RedisConfig   `mapstructure:",squash"`
	BookingConfig `mapstructure:",squash"`
	NotifyConfig  `mapstructure:",squash"`
	HTTPConfig    `mapstructure:",squash"`
}

var defaults = map[string]any{
	"ENV":       "development",
	"LOG_LEVEL": "info",

	"DB_DRIVER":                "postgres",
	"DB_SQLITE_PATH":           "charter.db",
	"DB_HOST":                  "postgres",
	"DB_PORT":                  5432,
	"DB_USER":                  "booking",
	"DB_PASSWORD":              "booking",
	"DB_NAME":                  "booking_db",
	"DB_SSLMODE":               "disable",
	"DB_TIMEZONE":              "UTC",
	"DB_MAX_OPEN_CONNS":        10,
	"DB_MAX_IDLE_CONNS":        5,
	"DB_CONN_MAX_LIFETIME_MIN": 30,

	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"DEFAULT_SLOT_CAPACITY": 6,
	"ADMIT_MAX_ATTEMPTS":    3,
	"LEDGER_WRITE_ATTEMPTS": 2,
	"BOOKING_TIMEZONE":      "UTC",
	"MAX_BLOCK_DAYS":        366,
	"LOCK_BACKEND":          "memory",
	"LOCK_WAIT_MS":          2000,
	"LOCK_TTL_MS":           10000,

	"NOTIFY_MAX_ATTEMPTS":   5,
	"NOTIFY_RETRY_DELAY_MS": 200,
	"NOTIFY_REDIS_ENABLED":  false,
	"NOTIFY_REDIS_CHANNEL":  "availability-changes",
	"DISPATCH_ENABLED":      false,
	"DISPATCH_QUEUE":        "notifications",
	"DISPATCH_MAX_RETRY":    10,
	"JOURNAL_ENABLED":       true,
	"WS_BUFFER_SIZE":        64,
	"WS_WRITE_WAIT_MS":      5000,

	"HTTP_ADDR":            ":8080",
	"GRPC_ADDR":            ":50051",
	"RATE_LIMIT_RPS":       20,
	"RATE_LIMIT_BURST":     40,
	"CORS_ALLOWED_ORIGINS": "*",
	"HTTP_TRUSTED_PROXIES": "",
}

// Load читает .env, config.yaml (если есть) и переменные окружения.
// Переменные окружения имеют приоритет над файлом.
func Load() (*Config, error) {
	// .env опционален: в контейнере всё приходит из окружения.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.BookingTimeZone); err != nil {
		return fmt.Errorf("invalid config: BOOKING_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location: часовой пояс, в котором считаются даты бронирований.
func (c *BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.BookingTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *BookingConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMS) * time.Millisecond
}

func (c *BookingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

func (c *NotifyConfig) NotifyRetryDelay() time.Duration {
	return time.Duration(c.NotifyRetryDelayMS) * time.Millisecond
}

func (c *NotifyConfig) WebsocketWriteWait() time.Duration {
	return time.Duration(c.WebsocketWriteWaitMS) * time.Millisecond
}

// AllowedOrigins разбирает CORS_ALLOWED_ORIGINS через запятую.
func (c *HTTPConfig) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxies: адреса и подсети из HTTP_TRUSTED_PROXIES.
func (c *HTTPConfig) TrustedProxies() []string {
	return splitList(c.HTTPTrustedProxies)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
