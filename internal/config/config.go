// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Encoder backends.
const (
	// EncoderMJPEG writes Motion-JPEG AVI files in pure Go.
	EncoderMJPEG = "mjpeg"
	// EncoderFFmpeg writes VP9 WebM files through the ffmpeg CLI.
	EncoderFFmpeg = "ffmpeg"
)

// Static errors for configuration validation.
var (
	// ErrInvalidEncoder is returned when ENCODER is not a known backend.
	ErrInvalidEncoder = errors.New("config: ENCODER must be \"mjpeg\" or \"ffmpeg\"")
	// ErrInvalidInterpolation is returned when INTERPOLATION is not supported.
	ErrInvalidInterpolation = errors.New("config: INTERPOLATION must be one of nearest, approx-bilinear, bilinear, catmull-rom")
	// ErrInvalidJPEGQuality is returned when JPEG_QUALITY is outside 1-100.
	ErrInvalidJPEGQuality = errors.New("config: JPEG_QUALITY must be between 1 and 100")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int   `env:"PORT, default=8080" json:"port"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=10485760" json:"max_upload_bytes"`

	// AllowedOrigins is a comma-separated CORS allow list; "*" allows any.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/image2video" json:"temp_dir"`

	// Rendering settings
	Encoder        string `env:"ENCODER, default=ffmpeg" json:"encoder"`
	FFmpegPath     string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	VideoBitrate   int    `env:"VIDEO_BITRATE, default=2500000" json:"video_bitrate"`
	JPEGQuality    int    `env:"JPEG_QUALITY, default=90" json:"jpeg_quality"`
	Interpolation  string `env:"INTERPOLATION, default=approx-bilinear" json:"interpolation"`
	MaxDimension   int    `env:"MAX_DIMENSION, default=1920" json:"max_dimension"`
	RealtimePacing bool   `env:"REALTIME_PACING, default=true" json:"realtime_pacing"`

	// Processing settings
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that envconfig cannot express as tags.
func (c *Config) Validate() error {
	c.Encoder = strings.ToLower(c.Encoder)
	switch c.Encoder {
	case EncoderMJPEG, EncoderFFmpeg:
	default:
		return ErrInvalidEncoder
	}
	switch strings.ToLower(c.Interpolation) {
	case "nearest", "approx-bilinear", "bilinear", "catmull-rom":
	default:
		return ErrInvalidInterpolation
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return ErrInvalidJPEGQuality
	}
	if c.MaxConcurrentJobs < 1 {
		return ErrInvalidConcurrency
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, Encoder: %s, Interpolation: %s, MaxDimension: %d, RealtimePacing: %t, MaxConcurrentJobs: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.Encoder,
		c.Interpolation,
		c.MaxDimension,
		c.RealtimePacing,
		c.MaxConcurrentJobs,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
