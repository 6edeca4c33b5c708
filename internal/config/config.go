package config

import (
	"fmt"
	"time"

	"pulse/internal/store"
	"pulse/pkg/config"
)

// Config stores environment configuration for pulse.
type Config struct {
	Port      string
	JWTSecret string

	StoreDriver string
	DatabaseURL string
	MongoURI    string
	MongoDB     string
	RedisURL    string
	// AutoMigrate applies the Postgres schema or Mongo indexes at startup
	AutoMigrate bool

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string
	S3Endpoint   string
	S3Prefix     string

	PollInterval      time.Duration
	MaxPollAttempts   int
	MinConfidence     float64
	ModerationWorkers int
	UploadMaxBytes    int64
}

// LoadConfig loads the pulse configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:      config.GetEnv("PORT", "18080"),
		JWTSecret: config.RequireEnv("JWT_SECRET"),

		StoreDriver: config.GetEnv("STORE_DRIVER", store.DriverPostgres),
		DatabaseURL: config.GetEnv("DATABASE_URL", ""),
		MongoURI:    config.GetEnv("MONGO_URI", ""),
		MongoDB:     config.GetEnv("MONGO_DB", "pulse"),
		RedisURL:    config.GetEnv("REDIS_URL", ""),
		AutoMigrate: config.GetEnvBool("STORE_AUTO_MIGRATE", true),

		AWSRegion:    config.GetEnv("AWS_REGION", "us-east-1"),
		AWSAccessKey: config.GetEnv("AWS_ACCESS_KEY", ""),
		AWSSecretKey: config.GetEnv("AWS_SECRET_KEY", ""),
		S3Bucket:     config.GetEnv("S3_BUCKET_NAME", ""),
		S3Endpoint:   config.GetEnv("S3_ENDPOINT", ""),
		S3Prefix:     config.GetEnv("S3_PREFIX", ""),

		PollInterval:      config.GetEnvSeconds("MODERATION_POLL_INTERVAL_SECONDS", 5*time.Second),
		MaxPollAttempts:   config.GetEnvInt("MODERATION_MAX_ATTEMPTS", 60),
		MinConfidence:     config.GetEnvFloat("MODERATION_MIN_CONFIDENCE", 50),
		ModerationWorkers: config.GetEnvInt("MODERATION_WORKERS", 64),
		UploadMaxBytes:    config.GetEnvInt64("UPLOAD_MAX_BYTES", 200<<20),
	}
}

// Validate checks settings that depend on each other
func (c Config) Validate() error {
	switch c.StoreDriver {
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.StoreDriver)
		}
	case store.DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the %s store", c.StoreDriver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET_NAME is required")
	}
	if c.MaxPollAttempts <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("moderation poll budget must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}
