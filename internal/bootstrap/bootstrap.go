// Package bootstrap wires configuration into the services used by the
// HTTP server and the CLI.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/image2video-api/internal/animation"
	"github.com/maauso/image2video-api/internal/config"
	"github.com/maauso/image2video-api/internal/job"
	"github.com/maauso/image2video-api/internal/media"
	"github.com/maauso/image2video-api/internal/render"
	"github.com/maauso/image2video-api/internal/server"
	"github.com/maauso/image2video-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Handlers   *server.Handlers
	Router     server.Config
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	driverOpts, err := DriverOptions(cfg)
	if err != nil {
		return nil, err
	}
	CheckEncoder(cfg, logger)

	svc := job.NewService(
		job.NewMemoryRepository(),
		store,
		EncoderFactory(cfg),
		logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		job.WithDriverOptions(driverOpts...),
	)

	routerCfg := server.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	return &Dependencies{
		JobService: svc,
		Handlers:   server.NewHandlers(svc, logger),
		Router:     routerCfg,
	}, nil
}

// EncoderFactory returns a constructor for the configured encoder backend.
func EncoderFactory(cfg *config.Config) job.EncoderFactory {
	if cfg.Encoder == config.EncoderFFmpeg {
		return func() media.Encoder {
			return media.NewFFmpegEncoder(cfg.FFmpegPath, cfg.VideoBitrate)
		}
	}
	return func() media.Encoder {
		return media.NewMJPEGEncoder(cfg.JPEGQuality)
	}
}

// CheckEncoder warns when the ffmpeg backend is selected but its binary
// cannot be found. Jobs still run and fail with media.ErrEncoderUnavailable.
func CheckEncoder(cfg *config.Config, logger *slog.Logger) {
	if cfg.Encoder != config.EncoderFFmpeg {
		return
	}
	if err := media.NewFFmpegEncoder(cfg.FFmpegPath, cfg.VideoBitrate).Available(); err != nil {
		logger.Warn("ffmpeg not found; renders will fail until it is installed or ENCODER=mjpeg is set",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
			slog.String("error", err.Error()),
		)
	}
}

// DriverOptions translates rendering settings into animation options.
func DriverOptions(cfg *config.Config) ([]animation.Option, error) {
	interp, err := render.ParseInterpolator(cfg.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("interpolation: %w", err)
	}

	opts := []animation.Option{
		animation.WithInterpolator(interp),
		animation.WithMaxDimension(cfg.MaxDimension),
	}
	if !cfg.RealtimePacing {
		opts = append(opts, animation.WithFrameInterval(0))
	}
	return opts, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          "videos/",
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
