// Package media captures rendered frames and encodes them into a single
// video container.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not usable.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrEncoderUnavailable is returned when the encoding backend cannot be used.
	ErrEncoderUnavailable = errors.New("video encoder unavailable")
	// ErrNotStarted is returned when frames are written before Start.
	ErrNotStarted = errors.New("encoder not started")
	// ErrNoFrames is returned when an encoder is closed without any frames.
	ErrNoFrames = errors.New("no frames to encode")
	// ErrFrameSize is returned when a frame does not match the stream dimensions.
	ErrFrameSize = errors.New("frame size does not match stream")
)

// Artifact is one finished video.
type Artifact struct {
	// Data is the complete container.
	Data []byte
	// MIMEType is the container media type, e.g. "video/webm".
	MIMEType string
	// Extension is the file extension without the dot, e.g. "webm".
	Extension string
	// Width and Height are the frame dimensions.
	Width  int
	Height int
	// FrameRate is the nominal frames per second.
	FrameRate int
	// FrameCount is the number of frames in the container.
	FrameCount int
}

// DataURL returns the artifact as a base64 data URL.
func (a *Artifact) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// FileName returns base with the artifact's extension.
func (a *Artifact) FileName(base string) string {
	return base + "." + a.Extension
}

// Encoder turns an ordered stream of equally sized frames into a video.
// Implementations are used by a single goroutine.
type Encoder interface {
	// Start prepares a stream of w×h frames at fps frames per second.
	Start(ctx context.Context, w, h, fps int) error
	// WriteFrame appends one frame. The encoder must not retain img.
	WriteFrame(img *image.RGBA) error
	// Close flushes pending output and returns the finished container.
	Close() (*Artifact, error)
	// Abort releases resources without producing output.
	Abort()
}

func checkStream(w, h, fps int) error {
	if w <= 0 || h <= 0 {
		return ErrInvalidDimensions
	}
	if fps <= 0 {
		return ErrInvalidFrameRate
	}
	return nil
}
