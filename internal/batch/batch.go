// Package batch renders a list of images to video files described in YAML.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/maauso/image2video-api/internal/animation"
	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/media"
)

// ErrEmpty is returned when a batch file lists no renders.
var ErrEmpty = errors.New("batch: no renders listed")

// Render is one image to animate.
type Render struct {
	Input    string        `yaml:"input"`
	Output   string        `yaml:"output"`
	Effect   effect.Effect `yaml:"effect"`
	Duration int           `yaml:"duration"`
}

// File is the on-disk batch document.
type File struct {
	Renders []Render `yaml:"renders"`
}

// Generator renders one image into a video artifact.
type Generator interface {
	Generate(ctx context.Context, image io.Reader, params animation.Params) (*media.Artifact, error)
}

// Read loads a batch file. Relative paths are resolved against the
// directory holding the file; missing effect and duration take the
// given defaults.
func Read(path string, defaultEffect effect.Effect, defaultDuration int) ([]Render, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(f.Renders) == 0 {
		return nil, ErrEmpty
	}

	base := filepath.Dir(path)
	for i := range f.Renders {
		r := &f.Renders[i]
		if r.Input == "" {
			return nil, fmt.Errorf("render %d: input is required", i)
		}
		if !filepath.IsAbs(r.Input) {
			r.Input = filepath.Join(base, r.Input)
		}
		if r.Output != "" && !filepath.IsAbs(r.Output) {
			r.Output = filepath.Join(base, r.Output)
		}
		if r.Effect == "" {
			r.Effect = defaultEffect
		}
		if r.Duration == 0 {
			r.Duration = defaultDuration
		}
		if err := r.Params().Validate(); err != nil {
			return nil, fmt.Errorf("render %d: %w", i, err)
		}
	}
	return f.Renders, nil
}

// Params returns the animation parameters of the render.
func (r Render) Params() animation.Params {
	return animation.Params{Duration: r.Duration, Effect: r.Effect}
}

// OutputPath returns where the artifact is written. Without an explicit
// output the video lands next to the input, named after it. An extension
// that does not match the artifact's container is replaced.
func (r Render) OutputPath(art *media.Artifact) string {
	out := r.Output
	if out == "" {
		out = strings.TrimSuffix(r.Input, filepath.Ext(r.Input)) + "-" + string(r.Effect)
	}
	ext := filepath.Ext(out)
	if strings.EqualFold(ext, "."+art.Extension) {
		return out
	}
	return art.FileName(strings.TrimSuffix(out, ext))
}

// Run renders every item with at most concurrency renders in flight. The
// first failure cancels the remaining renders.
func Run(ctx context.Context, gen Generator, renders []Render, concurrency int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, concurrency))

	for _, r := range renders {
		g.Go(func() error {
			_, err := RenderOne(gctx, gen, r, logger)
			return err
		})
	}
	return g.Wait()
}

// RenderOne renders a single item to disk and returns the written path.
func RenderOne(ctx context.Context, gen Generator, r Render, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	src, err := os.Open(r.Input)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = src.Close() }()

	art, err := gen.Generate(ctx, src, r.Params())
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", r.Input, err)
	}

	out := r.OutputPath(art)
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, art.Data, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	logger.Info("video written",
		slog.String("input", r.Input),
		slog.String("output", out),
		slog.String("effect", string(r.Effect)),
		slog.Int("frames", art.FrameCount),
		slog.Int("bytes", len(art.Data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
