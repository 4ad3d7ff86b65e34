// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// AWSConfig holds settings for the AWS-backed collaborators
// (S3 retrieval, Textract OCR, Rekognition face comparison).
type AWSConfig struct {
	Region string
}

// RedisConfig holds Redis connection settings for the result cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// DatabaseConfig holds the Postgres DSN for the verification audit log.
type DatabaseConfig struct {
	DSN string
}

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
}

// TimeoutConfig bounds each external collaborator call. A hung remote call
// must never hang the whole request.
type TimeoutConfig struct {
	Fetch time.Duration
	OCR   time.Duration
	Face  time.Duration
}

// Config aggregates all configuration sections.
type Config struct {
	Server   ServerConfig
	AWS      AWSConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Timeouts TimeoutConfig
}

// Load reads configuration from the environment, applying development
// defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 15)
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=idverify port=5432 sslmode=disable")
	v.SetDefault("JWT_SECRET", "dev-secret")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 15)
	v.SetDefault("OCR_TIMEOUT_SECONDS", 30)
	v.SetDefault("FACE_TIMEOUT_SECONDS", 30)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			ShutdownTimeout: time.Duration(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
		},
		AWS: AWSConfig{
			Region: v.GetString("AWS_REGION"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("DATABASE_DSN"),
		},
		Auth: AuthConfig{
			JWTSecret:   v.GetString("JWT_SECRET"),
			JWTAudience: v.GetString("JWT_AUDIENCE"),
		},
		Timeouts: TimeoutConfig{
			Fetch: time.Duration(v.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,
			OCR:   time.Duration(v.GetInt("OCR_TIMEOUT_SECONDS")) * time.Second,
			Face:  time.Duration(v.GetInt("FACE_TIMEOUT_SECONDS")) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("AWS_REGION must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"FETCH_TIMEOUT_SECONDS": c.Timeouts.Fetch,
		"OCR_TIMEOUT_SECONDS":   c.Timeouts.OCR,
		"FACE_TIMEOUT_SECONDS":  c.Timeouts.Face,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
