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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Review   ReviewConfig
	Publish  PublishConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReviewConfig carries the instance-wide review defaults used when an
// organization has no policy row for a resource type.
type ReviewConfig struct {
	DefaultRequired    bool
	DefaultType        string
	DefaultMinApproval int
	KnownTypes         []string
	NonRejectableTypes []string
	PolicyCacheTTL     time.Duration
	ConflictRetries    int
}

// Publication transport modes.
const (
	PublishModeSelf   = "self"
	PublishModeStream = "stream"
)

// PublishConfig controls the downstream publication transport.
type PublishConfig struct {
	Mode         string // "self" or "stream"
	StreamPrefix string
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
}

// ExportsConfig governs review-history export generation.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Review = ReviewConfig{
		DefaultRequired:    v.GetBool("REVIEW_DEFAULT_REQUIRED"),
		DefaultType:        strings.ToUpper(v.GetString("REVIEW_DEFAULT_TYPE")),
		DefaultMinApproval: v.GetInt("REVIEW_DEFAULT_MIN_APPROVAL"),
		KnownTypes:         splitAndTrim(v.GetString("REVIEW_KNOWN_TYPES")),
		NonRejectableTypes: splitAndTrim(v.GetString("REVIEW_NON_REJECTABLE_TYPES")),
		PolicyCacheTTL:     parseDuration(v.GetString("REVIEW_POLICY_CACHE_TTL"), 5*time.Minute),
		ConflictRetries:    v.GetInt("REVIEW_CONFLICT_RETRIES"),
	}

	cfg.Publish = PublishConfig{
		Mode:         strings.ToLower(v.GetString("PUBLISH_MODE")),
		StreamPrefix: v.GetString("PUBLISH_STREAM_PREFIX"),
		Workers:      v.GetInt("PUBLISH_WORKERS"),
		MaxRetries:   v.GetInt("PUBLISH_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("PUBLISH_RETRY_DELAY"), time.Second),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "quillstage")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REVIEW_DEFAULT_REQUIRED", true)
	v.SetDefault("REVIEW_DEFAULT_TYPE", "PARALLEL")
	v.SetDefault("REVIEW_DEFAULT_MIN_APPROVAL", 1)
	v.SetDefault("REVIEW_KNOWN_TYPES", "project,program,assessment")
	v.SetDefault("REVIEW_NON_REJECTABLE_TYPES", "program")
	v.SetDefault("REVIEW_POLICY_CACHE_TTL", "5m")
	v.SetDefault("REVIEW_CONFLICT_RETRIES", 3)

	v.SetDefault("PUBLISH_MODE", "stream")
	v.SetDefault("PUBLISH_STREAM_PREFIX", "publish")
	v.SetDefault("PUBLISH_WORKERS", 1)
	v.SetDefault("PUBLISH_MAX_RETRIES", 3)
	v.SetDefault("PUBLISH_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
