package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/ryanbastic/go-scorecard/internal/artifact"
	"github.com/ryanbastic/go-scorecard/internal/encoder"
)

// Artifact backends.
const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type Config struct {
	Port         string
	LogLevel     string
	DatabaseURL  string
	QueryTimeout time.Duration

	// Artifact storage
	ArtifactBackend   string
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	PublicBaseURL     string

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// Card builds
	BuildTimeout       time.Duration
	BuildStripes       int
	CardWidth          int
	CardHeight         int
	CardMaxBytes       int
	CardFallbackWidth  int
	CardFallbackHeight int
	CardCacheMaxAge    time.Duration

	// Profile photos
	AvatarSize           int
	AvatarFallbackSize   int
	AvatarMaxBytes       int
	AvatarMaxUploadBytes int64

	// Pre-warming; a zero interval disables it.
	WarmInterval    time.Duration
	WarmConcurrency int
	WarmBatchSize   int
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	return Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabaseURL:  getEnvRequired("DATABASE_URL"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 5*time.Second),

		ArtifactBackend:   getEnv("ARTIFACT_BACKEND", BackendS3),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Bucket:          getEnv("S3_BUCKET", "scorecards"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", ""),

		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),

		BuildTimeout:       getEnvDuration("BUILD_TIMEOUT", 30*time.Second),
		BuildStripes:       getEnvInt("BUILD_STRIPES", 32),
		CardWidth:          getEnvInt("CARD_WIDTH", 1200),
		CardHeight:         getEnvInt("CARD_HEIGHT", 630),
		CardMaxBytes:       getEnvInt("CARD_MAX_BYTES", 300*1024),
		CardFallbackWidth:  getEnvInt("CARD_FALLBACK_WIDTH", 960),
		CardFallbackHeight: getEnvInt("CARD_FALLBACK_HEIGHT", 504),
		CardCacheMaxAge:    getEnvDuration("CARD_CACHE_MAX_AGE", 5*time.Minute),

		AvatarSize:           getEnvInt("AVATAR_SIZE", 400),
		AvatarFallbackSize:   getEnvInt("AVATAR_FALLBACK_SIZE", 300),
		AvatarMaxBytes:       getEnvInt("AVATAR_MAX_BYTES", 60*1024),
		AvatarMaxUploadBytes: getEnvInt64("AVATAR_MAX_UPLOAD_BYTES", 10<<20),

		WarmInterval:    getEnvDuration("WARM_INTERVAL", 0),
		WarmConcurrency: getEnvInt("WARM_CONCURRENCY", 4),
		WarmBatchSize:   getEnvInt("WARM_BATCH_SIZE", 100),
	}
}

// Validate checks values that have no safe fallback.
func (c Config) Validate() error {
	switch c.ArtifactBackend {
	case BackendS3, BackendMemory:
	default:
		return fmt.Errorf("ARTIFACT_BACKEND must be %q or %q, got %q", BackendS3, BackendMemory, c.ArtifactBackend)
	}
	if err := c.CardParams().Validate(); err != nil {
		return fmt.Errorf("card: %w", err)
	}
	if err := c.AvatarParams().Validate(); err != nil {
		return fmt.Errorf("avatar: %w", err)
	}
	if c.WarmInterval > 0 && c.WarmConcurrency <= 0 {
		return fmt.Errorf("WARM_CONCURRENCY must be positive, got %d", c.WarmConcurrency)
	}
	return nil
}

// CardParams returns the encoder ladder for match cards.
func (c Config) CardParams() encoder.Params {
	return encoder.CardParams(c.CardWidth, c.CardHeight, c.CardFallbackWidth, c.CardFallbackHeight, c.CardMaxBytes)
}

// AvatarParams returns the encoder ladder for profile photos.
func (c Config) AvatarParams() encoder.Params {
	return encoder.AvatarParams(c.AvatarSize, c.AvatarFallbackSize, c.AvatarMaxBytes)
}

// S3 returns the artifact store settings.
func (c Config) S3() artifact.S3Config {
	return artifact.S3Config{
		Endpoint:        c.S3Endpoint,
		Region:          c.S3Region,
		Bucket:          c.S3Bucket,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		UsePathStyle:    c.S3UsePathStyle,
		PublicBaseURL:   c.PublicBaseURL,
	}
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
