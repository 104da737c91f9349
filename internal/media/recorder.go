package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/image2video-api/internal/render"
)

// ErrRecorderStopped is returned by Capture after Stop or Abort.
var ErrRecorderStopped = errors.New("recorder stopped")

// queueDepth is the number of captured frames that may wait for the encoder.
const queueDepth = 8

// Result is the outcome of a recording, delivered once by Stop.
type Result struct {
	Artifact *Artifact
	Err      error
}

// Recorder is a live capture of a drawing surface. Frames passed to
// Capture are snapshotted and handed to the Encoder by a single goroutine
// in capture order.
type Recorder struct {
	enc    Encoder
	logger *slog.Logger

	w, h     int
	frames   chan *image.RGBA
	g        *errgroup.Group
	gctx     context.Context
	captured int
	closeOne sync.Once
	stopped  bool
}

// NewRecorder creates a Recorder around enc.
func NewRecorder(enc Encoder, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{enc: enc, logger: logger}
}

// Start opens the encoder for a w×h stream at fps and begins draining
// captured frames into it.
func (r *Recorder) Start(ctx context.Context, w, h, fps int) error {
	if err := r.enc.Start(ctx, w, h, fps); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	r.w, r.h = w, h
	r.frames = make(chan *image.RGBA, queueDepth)
	r.g, r.gctx = errgroup.WithContext(ctx)
	r.g.Go(r.pump)

	r.logger.Debug("recorder started",
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Int("fps", fps),
	)
	return nil
}

// pump writes frames to the encoder until the queue is closed.
func (r *Recorder) pump() error {
	n := 0
	for frame := range r.frames {
		err := r.enc.WriteFrame(frame)
		render.PutSurface(frame)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", n, err)
		}
		n++
	}
	return nil
}

// Capture snapshots frame and queues it for encoding. It blocks while the
// queue is full and fails once encoding has failed or ctx is done.
func (r *Recorder) Capture(frame *image.RGBA) error {
	if r.frames == nil {
		return ErrNotStarted
	}
	if r.stopped {
		return ErrRecorderStopped
	}

	snap := render.GetSurface(r.w, r.h)
	if frame.Rect == snap.Rect && frame.Stride == snap.Stride {
		copy(snap.Pix, frame.Pix)
	} else {
		draw.Draw(snap, snap.Bounds(), frame, frame.Bounds().Min, draw.Src)
	}

	select {
	case r.frames <- snap:
		r.captured++
		return nil
	case <-r.gctx.Done():
		render.PutSurface(snap)
		return context.Cause(r.gctx)
	}
}

// Captured returns the number of frames accepted so far.
func (r *Recorder) Captured() int {
	return r.captured
}

// Stop ends the capture. The returned channel delivers exactly one
// Result after every queued frame has been encoded and the container
// finalised.
func (r *Recorder) Stop() <-chan Result {
	out := make(chan Result, 1)
	if r.frames == nil {
		out <- Result{Err: ErrNotStarted}
		return out
	}
	r.stopped = true
	r.closeOne.Do(func() { close(r.frames) })

	go func() {
		if err := r.g.Wait(); err != nil {
			r.enc.Abort()
			out <- Result{Err: err}
			return
		}
		art, err := r.enc.Close()
		if err != nil {
			out <- Result{Err: fmt.Errorf("finalize: %w", err)}
			return
		}
		r.logger.Debug("recorder finalized",
			slog.Int("frames", art.FrameCount),
			slog.Int("bytes", len(art.Data)),
		)
		out <- Result{Artifact: art}
	}()
	return out
}

// Abort discards the capture and releases the encoder.
func (r *Recorder) Abort() {
	if r.frames == nil {
		return
	}
	r.stopped = true
	r.closeOne.Do(func() { close(r.frames) })
	_ = r.g.Wait()
	r.enc.Abort()
}
