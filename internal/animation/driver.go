// Package animation drives one generation run: decode the source image,
// render every frame of the chosen effect onto a surface, capture the
// frames into an encoder and publish the finished artifact.
package animation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/media"
	"github.com/maauso/image2video-api/internal/render"
)

// FrameRate is the fixed capture rate in frames per second.
const FrameRate = 30

// Duration bounds in seconds.
const (
	MinDuration = 1
	MaxDuration = 10
)

// FrameInterval is the pause between two frames when pacing is enabled.
const FrameInterval = time.Second / FrameRate

// Static errors for the driver.
var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("generation already in progress")
	// ErrInvalidDuration is returned for durations outside MinDuration..MaxDuration.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrPanic wraps a panic recovered while rendering or encoding.
	ErrPanic = errors.New("generation panicked")
)

// State is a step of the generation state machine.
type State string

const (
	// StateIdle means no run has happened yet.
	StateIdle State = "IDLE"
	// StatePriming means the source image is being decoded.
	StatePriming State = "PRIMING"
	// StateRunning means frames are being rendered and captured.
	StateRunning State = "RUNNING"
	// StateFinalizing means the encoder is draining.
	StateFinalizing State = "FINALIZING"
	// StateReady means the last run produced an artifact.
	StateReady State = "READY"
	// StateFailed means the last run failed.
	StateFailed State = "FAILED"
)

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == StatePriming || s == StateRunning || s == StateFinalizing
}

// Params are the user-chosen animation settings.
type Params struct {
	// Duration is the clip length in whole seconds.
	Duration int
	// Effect is the animation to apply.
	Effect effect.Effect
}

// Validate checks the duration range and the effect identifier.
func (p Params) Validate() error {
	if p.Duration < MinDuration || p.Duration > MaxDuration {
		return fmt.Errorf("%w: %d (want %d-%d seconds)", ErrInvalidDuration, p.Duration, MinDuration, MaxDuration)
	}
	if !p.Effect.Valid() {
		return fmt.Errorf("%w: %q", effect.ErrUnknownEffect, p.Effect)
	}
	return nil
}

// TotalFrames returns the number of frames for a clip of duration seconds.
func TotalFrames(duration, fps int) int {
	return duration * fps
}

// ProgressFunc is called after each captured frame.
type ProgressFunc func(done, total int)

// Driver owns one drawing surface, one renderer and, per run, one encoder.
// It runs at most one generation at a time and keeps the artifact of the
// last successful run.
type Driver struct {
	newEncoder    func() media.Encoder
	renderer      *render.Renderer
	logger        *slog.Logger
	frameInterval time.Duration
	maxDimension  int
	onProgress    ProgressFunc
	evaluate      func(e effect.Effect, progress float64, w, h int) effect.Transform

	mu       sync.Mutex
	state    State
	artifact *media.Artifact
}

// Option configures a Driver.
type Option func(*Driver)

// WithFrameInterval sets the pause between frames. Zero disables pacing.
func WithFrameInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d >= 0 {
			dr.frameInterval = d
		}
	}
}

// WithInterpolator sets the resampling kernel of the driver's renderer.
func WithInterpolator(interp draw.Interpolator) Option {
	return func(dr *Driver) {
		if interp != nil {
			dr.renderer = render.NewRenderer(interp)
		}
	}
}

// WithMaxDimension bounds the longer side of the decoded image.
func WithMaxDimension(n int) Option {
	return func(dr *Driver) {
		dr.maxDimension = n
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(dr *Driver) {
		dr.onProgress = fn
	}
}

// NewDriver creates a Driver. newEncoder is called once per run.
func NewDriver(newEncoder func() media.Encoder, logger *slog.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		newEncoder:    newEncoder,
		renderer:      render.NewRenderer(nil),
		logger:        logger,
		frameInterval: FrameInterval,
		evaluate:      effect.Evaluate,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Artifact returns the artifact of the last successful run, or nil.
func (d *Driver) Artifact() *media.Artifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artifact
}

// begin moves an inactive driver to Priming.
func (d *Driver) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Active() {
		return ErrBusy
	}
	d.state = StatePriming
	return nil
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Generate runs one generation from the encoded image in src. On success
// the artifact replaces the driver's current artifact. On failure the
// driver returns to an inactive state and no artifact is produced.
func (d *Driver) Generate(ctx context.Context, src io.Reader, params Params) (*media.Artifact, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := d.begin(); err != nil {
		return nil, err
	}

	art, err := d.runRecovered(ctx, src, params)
	if err != nil {
		d.setState(StateFailed)
		d.logger.Warn("generation failed",
			slog.String("effect", string(params.Effect)),
			slog.Int("duration", params.Duration),
			slog.String("class", Classify(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	d.mu.Lock()
	d.artifact = art
	d.state = StateReady
	d.mu.Unlock()
	return art, nil
}

// runRecovered turns a panic in run into an error so the driver never
// stays stuck in an active state.
func (d *Driver) runRecovered(ctx context.Context, src io.Reader, params Params) (art *media.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			art, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return d.run(ctx, src, params)
}

func (d *Driver) run(ctx context.Context, src io.Reader, params Params) (*media.Artifact, error) {
	img, format, err := render.Decode(src, d.maxDimension)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	total := TotalFrames(params.Duration, FrameRate)

	d.logger.Debug("image decoded",
		slog.String("format", format),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Int("frames", total),
	)

	rec := media.NewRecorder(d.newEncoder(), d.logger)
	if err := rec.Start(ctx, w, h, FrameRate); err != nil {
		return nil, err
	}
	stopping := false
	defer func() {
		if !stopping {
			rec.Abort()
		}
	}()
	d.setState(StateRunning)

	surface := render.GetSurface(w, h)
	defer render.PutSurface(surface)

	if err := d.loop(ctx, rec, surface, img, params.Effect, total); err != nil {
		return nil, err
	}

	d.setState(StateFinalizing)
	stopping = true
	select {
	case res := <-rec.Stop():
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Artifact, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// loop renders frames 0..total-1, pausing one frame interval after each.
func (d *Driver) loop(ctx context.Context, rec *media.Recorder, surface *image.RGBA, img image.Image, e effect.Effect, total int) error {
	w, h := surface.Bounds().Dx(), surface.Bounds().Dy()

	var tick <-chan time.Time
	if d.frameInterval > 0 {
		ticker := time.NewTicker(d.frameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for frame := 0; frame < total; frame++ {
		progress := float64(frame) / float64(total)
		d.renderer.Render(surface, img, d.evaluate(e, progress, w, h))

		if err := rec.Capture(surface); err != nil {
			return fmt.Errorf("capture frame %d: %w", frame, err)
		}
		if d.onProgress != nil {
			d.onProgress(frame+1, total)
		}

		if tick == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
	return nil
}
