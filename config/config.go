package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Database struct {
	Driver     string // sqlite or postgres
	SqlitePath string
	URL        string // postgres DSN
}

type Storage struct {
	Driver string // disk, minio or s3
	Root   string // disk root, served under /storage
	Bucket string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	S3Region    string
	S3Endpoint  string // optional, for R2 or other S3 compatible stores
	S3AccessKey string
	S3SecretKey string
}

type Config struct {
	Port          string
	Database      Database
	Storage       Storage
	JWTSecret     string
	TokenTTL      time.Duration
	AuthRateLimit int
	LogLevel      string
	LogFormat     string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}

// Load reads the process environment, after merging a .env file from the
// working directory when one exists.
func Load() *Config {
	err := godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),
		Database: Database{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			SqlitePath: getEnv("SQLITE_DB", "blogroll.db"),
			URL:        getEnv("DATABASE_URL", ""),
		},
		Storage: Storage{
			Driver:         getEnv("STORAGE_DRIVER", "disk"),
			Root:           getEnv("STORAGE_ROOT", "storage/app/public"),
			Bucket:         getEnv("STORAGE_BUCKET", "blogroll"),
			MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
			S3Region:       getEnv("S3_REGION", "auto"),
			S3Endpoint:     getEnv("S3_ENDPOINT", ""),
			S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		},
		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenTTL:      parseDuration(getEnv("TOKEN_TTL", "720h"), 720*time.Hour),
		AuthRateLimit: getEnvAsInt("AUTH_RATE_LIMIT", 10),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		EnvFileLoaded: err == nil,
	}
}
