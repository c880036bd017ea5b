// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"
)

// Upload providers.
const (
	UploadProviderImageKit = "imagekit"
	UploadProviderS3       = "s3"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OneSignal OneSignalConfig
	Notify    NotifyConfig
	Upload    UploadConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	LogLevel    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string // takes precedence over the discrete fields
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Mode        string // jwt or remote
	JWTSecret   string
	JWTAudience string
	RemoteURL   string // identity service base URL, e.g. https://xyz.supabase.co
	APIKey      string
	Timeout     time.Duration
}

// OneSignalConfig holds push provider credentials.
type OneSignalConfig struct {
	AppID   string
	RESTKey string
	BaseURL string
	Timeout time.Duration
}

// NotifyConfig tunes the notification dispatcher and reconciler.
type NotifyConfig struct {
	Workers            int
	QueueSize          int
	PushRatePerSecond  float64
	PushBurst          int
	ReconcileEnabled   bool
	ReconcileInterval  time.Duration
	ReconcileMinAge    time.Duration
	ReconcileBatchSize int
	MaxAttempts        int
}

// UploadConfig holds upload proxy settings.
type UploadConfig struct {
	Provider      string
	MaxFileBytes  int64
	PerMinute     int
	PerHour       int
	ImageKit      ImageKitConfig
	S3            S3Config
	DefaultFolder string
	TagPrefix     string
}

// ImageKitConfig holds ImageKit credentials.
type ImageKitConfig struct {
	PrivateKey  string
	PublicKey   string
	URLEndpoint string
	UploadURL   string
}

// S3Config holds credentials for an S3-compatible bucket.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Load reads .env (if present) and the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := bind(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "glenn-backend")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "60s")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "glenn")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_MODE", AuthModeJWT)
	v.SetDefault("AUTH_JWT_AUDIENCE", "authenticated")
	v.SetDefault("AUTH_TIMEOUT", "5s")

	v.SetDefault("ONESIGNAL_BASE_URL", "https://onesignal.com/api/v1")
	v.SetDefault("ONESIGNAL_TIMEOUT", "10s")

	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_PUSH_RATE", 10.0)
	v.SetDefault("NOTIFY_PUSH_BURST", 20)
	v.SetDefault("NOTIFY_RECONCILE_ENABLED", true)
	v.SetDefault("NOTIFY_RECONCILE_INTERVAL", "5m")
	v.SetDefault("NOTIFY_RECONCILE_MIN_AGE", "2m")
	v.SetDefault("NOTIFY_RECONCILE_BATCH", 100)
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 5)

	v.SetDefault("UPLOAD_PROVIDER", UploadProviderImageKit)
	v.SetDefault("UPLOAD_MAX_FILE_BYTES", 10<<20)
	v.SetDefault("UPLOAD_PER_MINUTE", 5)
	v.SetDefault("UPLOAD_PER_HOUR", 50)
	v.SetDefault("UPLOAD_DEFAULT_FOLDER", "avatars")
	v.SetDefault("UPLOAD_TAG_PREFIX", "glenn-app")
	v.SetDefault("IMAGEKIT_UPLOAD_URL", "https://upload.imagekit.io/api/v1/files/upload")
	v.SetDefault("S3_REGION", "auto")
}

func bind(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.LogLevel = v.GetString("LOG_LEVEL")

	cfg.Server.Port = v.GetInt("PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))

	cfg.Database.URL = v.GetString("DATABASE_URL")
	cfg.Database.Host = v.GetString("DB_HOST")
	cfg.Database.Port = v.GetInt("DB_PORT")
	cfg.Database.User = v.GetString("DB_USER")
	cfg.Database.Password = v.GetString("DB_PASSWORD")
	cfg.Database.DBName = v.GetString("DB_NAME")
	cfg.Database.SSLMode = v.GetString("DB_SSLMODE")
	cfg.Database.MaxConns = v.GetInt32("DB_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt32("DB_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DB_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DB_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Auth.Mode = strings.ToLower(v.GetString("AUTH_MODE"))
	cfg.Auth.JWTSecret = v.GetString("AUTH_JWT_SECRET")
	cfg.Auth.JWTAudience = v.GetString("AUTH_JWT_AUDIENCE")
	cfg.Auth.RemoteURL = strings.TrimRight(v.GetString("AUTH_REMOTE_URL"), "/")
	cfg.Auth.APIKey = v.GetString("AUTH_API_KEY")
	cfg.Auth.Timeout = v.GetDuration("AUTH_TIMEOUT")

	cfg.OneSignal.AppID = v.GetString("ONESIGNAL_APP_ID")
	cfg.OneSignal.RESTKey = v.GetString("ONESIGNAL_REST_API_KEY")
	cfg.OneSignal.BaseURL = strings.TrimRight(v.GetString("ONESIGNAL_BASE_URL"), "/")
	cfg.OneSignal.Timeout = v.GetDuration("ONESIGNAL_TIMEOUT")

	cfg.Notify.Workers = v.GetInt("NOTIFY_WORKERS")
	cfg.Notify.QueueSize = v.GetInt("NOTIFY_QUEUE_SIZE")
	cfg.Notify.PushRatePerSecond = v.GetFloat64("NOTIFY_PUSH_RATE")
	cfg.Notify.PushBurst = v.GetInt("NOTIFY_PUSH_BURST")
	cfg.Notify.ReconcileEnabled = v.GetBool("NOTIFY_RECONCILE_ENABLED")
	cfg.Notify.ReconcileInterval = v.GetDuration("NOTIFY_RECONCILE_INTERVAL")
	cfg.Notify.ReconcileMinAge = v.GetDuration("NOTIFY_RECONCILE_MIN_AGE")
	cfg.Notify.ReconcileBatchSize = v.GetInt("NOTIFY_RECONCILE_BATCH")
	cfg.Notify.MaxAttempts = v.GetInt("NOTIFY_MAX_ATTEMPTS")

	cfg.Upload.Provider = strings.ToLower(v.GetString("UPLOAD_PROVIDER"))
	cfg.Upload.MaxFileBytes = v.GetInt64("UPLOAD_MAX_FILE_BYTES")
	cfg.Upload.PerMinute = v.GetInt("UPLOAD_PER_MINUTE")
	cfg.Upload.PerHour = v.GetInt("UPLOAD_PER_HOUR")
	cfg.Upload.DefaultFolder = v.GetString("UPLOAD_DEFAULT_FOLDER")
	cfg.Upload.TagPrefix = v.GetString("UPLOAD_TAG_PREFIX")
	cfg.Upload.ImageKit.PrivateKey = v.GetString("IMAGEKIT_PRIVATE_KEY")
	cfg.Upload.ImageKit.PublicKey = v.GetString("IMAGEKIT_PUBLIC_KEY")
	cfg.Upload.ImageKit.URLEndpoint = v.GetString("IMAGEKIT_URL_ENDPOINT")
	cfg.Upload.ImageKit.UploadURL = v.GetString("IMAGEKIT_UPLOAD_URL")
	cfg.Upload.S3.Endpoint = v.GetString("S3_ENDPOINT")
	cfg.Upload.S3.Region = v.GetString("S3_REGION")
	cfg.Upload.S3.Bucket = v.GetString("S3_BUCKET")
	cfg.Upload.S3.AccessKeyID = v.GetString("S3_ACCESS_KEY_ID")
	cfg.Upload.S3.SecretAccessKey = v.GetString("S3_SECRET_ACCESS_KEY")
	cfg.Upload.S3.PublicBaseURL = strings.TrimRight(v.GetString("S3_PUBLIC_BASE_URL"), "/")

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.DBName == "") {
		return errors.New("database host and name are required when DATABASE_URL is unset")
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is required in jwt auth mode")
		}
	case AuthModeRemote:
		if c.Auth.RemoteURL == "" || c.Auth.APIKey == "" {
			return errors.New("AUTH_REMOTE_URL and AUTH_API_KEY are required in remote auth mode")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode)
	}

	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 {
		return errors.New("notify workers and queue size must be positive")
	}
	if c.Notify.MaxAttempts <= 0 {
		return errors.New("NOTIFY_MAX_ATTEMPTS must be positive")
	}

	switch c.Upload.Provider {
	case UploadProviderImageKit, UploadProviderS3:
	default:
		return fmt.Errorf("unknown UPLOAD_PROVIDER %q", c.Upload.Provider)
	}
	if c.Upload.PerMinute <= 0 || c.Upload.PerHour <= 0 {
		return errors.New("upload rate limits must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
