package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Mongo      MongoConfig
	LocalCache LocalCacheConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Reset      ResetConfig
	Payments   PaymentsConfig
	Bootstrap  BootstrapConfig
}

// MongoConfig points at the remote document store. An empty URI means the
// remote is unconfigured and the service runs on the local cache alone.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Configured reports whether a remote store has been set up.
func (c MongoConfig) Configured() bool {
	return c.URI != ""
}

// LocalCacheConfig locates the on-disk fallback store.
type LocalCacheConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// Configured reports whether a Redis fan-out endpoint has been set up.
func (c RedisConfig) Configured() bool {
	return c.Host != ""
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ResetConfig tunes the monthly fee reset runner.
type ResetConfig struct {
	CheckInterval time.Duration
}

// PaymentsConfig tunes the simulated UPI verification pipeline.
type PaymentsConfig struct {
	ProcessingDelay time.Duration
	CompletionDelay time.Duration
	Workers         int
}

// BootstrapConfig seeds the first admin account when none exists.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
		Timeout:  parseDuration(v.GetString("MONGO_TIMEOUT"), 15*time.Second),
	}

	cfg.LocalCache = LocalCacheConfig{
		Path: v.GetString("LOCAL_CACHE_PATH"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Channel:  v.GetString("REDIS_NOTIFICATION_CHANNEL"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Reset = ResetConfig{
		CheckInterval: parseDuration(v.GetString("RESET_CHECK_INTERVAL"), time.Hour),
	}

	cfg.Payments = PaymentsConfig{
		ProcessingDelay: parseDuration(v.GetString("PAYMENT_PROCESSING_DELAY"), 2*time.Second),
		CompletionDelay: parseDuration(v.GetString("PAYMENT_COMPLETION_DELAY"), 3*time.Second),
		Workers:         v.GetInt("PAYMENT_WORKERS"),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminUsername: v.GetString("BOOTSTRAP_ADMIN_USERNAME"),
		AdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		AdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "hostel")
	v.SetDefault("MONGO_TIMEOUT", "15s")

	v.SetDefault("LOCAL_CACHE_PATH", "data/hostel-cache.db")

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_NOTIFICATION_CHANNEL", "hostel:notifications")

	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RESET_CHECK_INTERVAL", "1h")

	v.SetDefault("PAYMENT_PROCESSING_DELAY", "2s")
	v.SetDefault("PAYMENT_COMPLETION_DELAY", "3s")
	v.SetDefault("PAYMENT_WORKERS", 2)

	v.SetDefault("BOOTSTRAP_ADMIN_USERNAME", "admin")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "admin123")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
