package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
)

// FFmpegEncoder pipes raw RGBA frames into the ffmpeg CLI and produces
// a VP9 WebM file.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// bitrate is the target video bitrate in bits per second.
	bitrate int

	w, h, fps int
	frames    int
	args      []string
	outPath   string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    bytes.Buffer
	ctx       context.Context
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
// A non-positive bitrate selects 2.5 Mbit/s.
func NewFFmpegEncoder(ffmpegPath string, bitrate int) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate <= 0 {
		bitrate = 2_500_000
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, bitrate: bitrate}
}

// Available reports whether the ffmpeg binary can be found.
func (e *FFmpegEncoder) Available() error {
	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoderUnavailable, err)
	}
	return nil
}

// Start launches ffmpeg reading w×h RGBA frames from stdin.
func (e *FFmpegEncoder) Start(ctx context.Context, w, h, fps int) error {
	if err := checkStream(w, h, fps); err != nil {
		return err
	}
	if err := e.Available(); err != nil {
		return err
	}

	out, err := os.CreateTemp("", "image2video-*.webm")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	_ = out.Close()

	e.w, e.h, e.fps = w, h, fps
	e.frames = 0
	e.outPath = out.Name()
	e.args = e.buildArgs(e.outPath)
	e.stderr.Reset()
	e.ctx = ctx

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, e.args...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(e.outPath)
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(e.outPath)
		return fmt.Errorf("%w: start ffmpeg: %w", ErrEncoderUnavailable, err)
	}

	e.cmd = cmd
	e.stdin = stdin
	return nil
}

// buildArgs returns the ffmpeg arguments for a raw RGBA stream on stdin.
func (e *FFmpegEncoder) buildArgs(output string) []string {
	return []string{
		"-y", // Overwrite output file
		"-loglevel", "error",
		"-f", "rawvideo", // Uncompressed input
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", e.w, e.h),
		"-framerate", fmt.Sprintf("%d", e.fps),
		"-i", "-", // Frames from stdin
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2", // yuv420p needs even dimensions
		"-c:v", "libvpx-vp9",
		"-b:v", fmt.Sprintf("%d", e.bitrate),
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
		"-an",
		"-f", "webm",
		output,
	}
}

// WriteFrame writes one frame's pixels to ffmpeg's stdin.
func (e *FFmpegEncoder) WriteFrame(img *image.RGBA) error {
	if e.cmd == nil {
		return ErrNotStarted
	}
	if img.Bounds().Dx() != e.w || img.Bounds().Dy() != e.h {
		return fmt.Errorf("%w: got %v, want %dx%d", ErrFrameSize, img.Bounds().Size(), e.w, e.h)
	}
	if err := writeRawRGBA(e.stdin, img); err != nil {
		return fmt.Errorf("write frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// writeRawRGBA writes the pixel rows of img without stride padding.
func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		_, err := w.Write(img.Pix[:rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes stdin, waits for ffmpeg and reads back the WebM file.
func (e *FFmpegEncoder) Close() (*Artifact, error) {
	if e.cmd == nil {
		return nil, ErrNotStarted
	}
	defer e.reset()

	if e.frames == 0 {
		_ = e.stdin.Close()
		_ = e.cmd.Wait()
		return nil, ErrNoFrames
	}

	_ = e.stdin.Close()
	if err := e.wait(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(e.outPath)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	return &Artifact{
		Data:       data,
		MIMEType:   "video/webm",
		Extension:  "webm",
		Width:      e.w,
		Height:     e.h,
		FrameRate:  e.fps,
		FrameCount: e.frames,
	}, nil
}

// wait waits for ffmpeg and returns an error
// containing stderr output if the command fails.
func (e *FFmpegEncoder) wait() error {
	err := e.cmd.Wait()
	if err == nil {
		return nil
	}
	if e.ctx != nil && e.ctx.Err() != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", e.ctx.Err())
	}
	return &FFmpegError{
		Args:   e.args,
		Stderr: e.stderr.String(),
		Err:    err,
	}
}

// Abort kills ffmpeg and removes its output.
func (e *FFmpegEncoder) Abort() {
	if e.cmd == nil {
		return
	}
	_ = e.stdin.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	_ = e.cmd.Wait()
	e.reset()
}

func (e *FFmpegEncoder) reset() {
	if e.outPath != "" {
		_ = os.Remove(e.outPath)
	}
	e.cmd = nil
	e.stdin = nil
	e.outPath = ""
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// IsCapabilityError reports whether err means the encoding backend itself
// is missing or rejected its configuration.
func IsCapabilityError(err error) bool {
	var ffErr *FFmpegError
	return errors.Is(err, ErrEncoderUnavailable) || errors.As(err, &ffErr)
}
