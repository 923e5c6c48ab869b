package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	MinIO        MinIOConfig
	JWT          JWTConfig
	Lifecycle    LifecycleConfig
	Analytics    AnalyticsConfig
	Notification NotificationConfig
	LogLevel     string
}

type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

type JWTConfig struct {
	Secret     string
	ExpireHour int
}

// LifecycleConfig tunes the complaint write path.
type LifecycleConfig struct {
	OTPLength     int
	OTPHashCost   int
	RetryAttempts int
	RetryBackoff  time.Duration
	LockTTL       time.Duration
	// DefaultRegion is the ISO region used to parse phone numbers without a country prefix.
	DefaultRegion string
}

type AnalyticsConfig struct {
	CacheTTL          time.Duration
	RefreshInterval   time.Duration
	TrendDays         int
	DefaultPeriodDays int
	TopIssueTypes     int
	RecentActivity    int
}

type NotificationConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	From         string
}

// IsDevelopment reports whether outbound side effects should be simulated.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("APP_ENV", "development"),
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "isp_complaints"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("MINIO_BUCKET", "complaints"),
			UseSSL:          getEnvBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-me"),
			ExpireHour: getEnvInt("JWT_EXPIRE_HOUR", 24),
		},
		Lifecycle: LifecycleConfig{
			OTPLength:     getEnvInt("OTP_LENGTH", 6),
			OTPHashCost:   getEnvInt("OTP_HASH_COST", 10),
			RetryAttempts: getEnvInt("CONFLICT_RETRY_ATTEMPTS", 3),
			RetryBackoff:  getEnvDuration("CONFLICT_RETRY_BACKOFF", 50*time.Millisecond),
			LockTTL:       getEnvDuration("COMPLAINT_LOCK_TTL", 5*time.Second),
			DefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "IN")),
		},
		Analytics: AnalyticsConfig{
			CacheTTL:          getEnvDuration("ANALYTICS_CACHE_TTL", 5*time.Minute),
			RefreshInterval:   getEnvDuration("ANALYTICS_REFRESH_INTERVAL", 5*time.Minute),
			TrendDays:         getEnvInt("ANALYTICS_TREND_DAYS", 7),
			DefaultPeriodDays: getEnvInt("ANALYTICS_PERIOD_DAYS", 30),
			TopIssueTypes:     getEnvInt("ANALYTICS_TOP_ISSUE_TYPES", 5),
			RecentActivity:    getEnvInt("ANALYTICS_RECENT_ACTIVITY", 10),
		},
		Notification: NotificationConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", "noreply@ispops.local"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}
