// Package main provides the image2video command line renderer.
//
// Single image:
//
//	image2video -in photo.png -out clip.avi -effect pan-left -duration 3
//
// Batch file (YAML list of input, output, effect, duration):
//
//	image2video -batch renders.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maauso/image2video-api/internal/batch"
	"github.com/maauso/image2video-api/internal/bootstrap"
	"github.com/maauso/image2video-api/internal/config"
	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/job"
	"github.com/maauso/image2video-api/internal/server"
	"github.com/maauso/image2video-api/internal/storage"
)

var errUsage = errors.New("either -in or -batch is required")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	names := make([]string, 0, len(effect.All()))
	for _, e := range effect.All() {
		names = append(names, string(e))
	}

	fs := flag.NewFlagSet("image2video", flag.ContinueOnError)
	in := fs.String("in", "", "input image (png, jpeg, gif, webp, bmp, tiff)")
	out := fs.String("out", "", "output video; extension set to match the encoder")
	effectName := fs.String("effect", string(server.DefaultEffect), "effect: "+strings.Join(names, ", "))
	duration := fs.Int("duration", server.DefaultDuration, "clip length in seconds (1-10)")
	batchFile := fs.String("batch", "", "YAML batch file")
	fs.StringVar(&cfg.Encoder, "encoder", cfg.Encoder, "encoder backend: ffmpeg (webm) or mjpeg (avi)")
	fs.BoolVar(&cfg.RealtimePacing, "realtime", false, "pace frames at the capture rate")
	fs.IntVar(&cfg.MaxConcurrentJobs, "workers", cfg.MaxConcurrentJobs, "parallel renders in batch mode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	defaultEffect, err := effect.Parse(*effectName)
	if err != nil {
		return err
	}

	var renders []batch.Render
	switch {
	case *batchFile != "":
		renders, err = batch.Read(*batchFile, defaultEffect, *duration)
		if err != nil {
			return err
		}
	case *in != "":
		r := batch.Render{Input: *in, Output: *out, Effect: defaultEffect, Duration: *duration}
		if err := r.Params().Validate(); err != nil {
			return err
		}
		renders = []batch.Render{r}
	default:
		fs.Usage()
		return errUsage
	}

	store, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("create local storage: %w", err)
	}
	driverOpts, err := bootstrap.DriverOptions(cfg)
	if err != nil {
		return err
	}
	bootstrap.CheckEncoder(cfg, logger)
	svc := job.NewService(job.NewMemoryRepository(), store, bootstrap.EncoderFactory(cfg), logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		job.WithDriverOptions(driverOpts...),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("rendering",
		slog.Int("videos", len(renders)),
		slog.String("encoder", cfg.Encoder),
		slog.Bool("realtime", cfg.RealtimePacing),
	)
	return batch.Run(ctx, svc, renders, cfg.MaxConcurrentJobs, logger)
}
