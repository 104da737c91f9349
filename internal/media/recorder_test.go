package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeEncoder records the red channel of the first pixel of every frame.
type fakeEncoder struct {
	started bool
	order   []uint8
	failAt  int
	aborted bool
	delay   time.Duration
}

func (f *fakeEncoder) Start(_ context.Context, w, h, fps int) error {
	if err := checkStream(w, h, fps); err != nil {
		return err
	}
	f.started = true
	return nil
}

func (f *fakeEncoder) WriteFrame(img *image.RGBA) error {
	if f.failAt > 0 && len(f.order)+1 == f.failAt {
		return errBoom
	}
	time.Sleep(f.delay)
	f.order = append(f.order, img.Pix[0])
	return nil
}

func (f *fakeEncoder) Close() (*Artifact, error) {
	return &Artifact{MIMEType: "video/fake", Extension: "fake", FrameCount: len(f.order)}, nil
}

func (f *fakeEncoder) Abort() { f.aborted = true }

func TestRecorder_PreservesOrder(t *testing.T) {
	enc := &fakeEncoder{delay: time.Millisecond}
	rec := NewRecorder(enc, nil)
	require.NoError(t, rec.Start(context.Background(), 4, 4, 30))

	surface := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 40; i++ {
		surface.SetRGBA(0, 0, color.RGBA{R: uint8(i), A: 255})
		require.NoError(t, rec.Capture(surface))
	}
	assert.Equal(t, 40, rec.Captured())

	res := <-rec.Stop()
	require.NoError(t, res.Err)
	assert.Equal(t, 40, res.Artifact.FrameCount)

	require.Len(t, enc.order, 40)
	for i, v := range enc.order {
		assert.Equal(t, uint8(i), v)
	}
}

func TestRecorder_SnapshotsSurface(t *testing.T) {
	enc := &fakeEncoder{}
	rec := NewRecorder(enc, nil)
	require.NoError(t, rec.Start(context.Background(), 2, 2, 30))

	surface := image.NewRGBA(image.Rect(0, 0, 2, 2))
	surface.Pix[0] = 7
	require.NoError(t, rec.Capture(surface))
	surface.Pix[0] = 99

	res := <-rec.Stop()
	require.NoError(t, res.Err)
	assert.Equal(t, []uint8{7}, enc.order)
}

func TestRecorder_EncodeFailure(t *testing.T) {
	enc := &fakeEncoder{failAt: 3}
	rec := NewRecorder(enc, nil)
	require.NoError(t, rec.Start(context.Background(), 2, 2, 30))

	surface := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var captureErr error
	for i := 0; i < 100 && captureErr == nil; i++ {
		captureErr = rec.Capture(surface)
	}
	require.Error(t, captureErr)
	assert.ErrorIs(t, captureErr, errBoom)

	res := <-rec.Stop()
	assert.Nil(t, res.Artifact)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.True(t, enc.aborted)
}

func TestRecorder_StartFailure(t *testing.T) {
	rec := NewRecorder(&fakeEncoder{}, nil)
	err := rec.Start(context.Background(), 0, 0, 30)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	assert.ErrorIs(t, rec.Capture(image.NewRGBA(image.Rect(0, 0, 1, 1))), ErrNotStarted)
}

func TestRecorder_CaptureAfterStop(t *testing.T) {
	rec := NewRecorder(&fakeEncoder{}, nil)
	require.NoError(t, rec.Start(context.Background(), 2, 2, 30))
	require.NoError(t, rec.Capture(image.NewRGBA(image.Rect(0, 0, 2, 2))))

	res := <-rec.Stop()
	require.NoError(t, res.Err)
	assert.ErrorIs(t, rec.Capture(image.NewRGBA(image.Rect(0, 0, 2, 2))), ErrRecorderStopped)
}

func TestRecorder_Abort(t *testing.T) {
	enc := &fakeEncoder{}
	rec := NewRecorder(enc, nil)
	require.NoError(t, rec.Start(context.Background(), 2, 2, 30))
	require.NoError(t, rec.Capture(image.NewRGBA(image.Rect(0, 0, 2, 2))))

	rec.Abort()
	assert.True(t, enc.aborted)
}

func TestRecorder_WithMJPEG(t *testing.T) {
	rec := NewRecorder(NewMJPEGEncoder(70), nil)
	require.NoError(t, rec.Start(context.Background(), 16, 8, 30))

	surface := frameOf(16, 8, color.RGBA{B: 255, A: 255})
	for i := 0; i < 12; i++ {
		require.NoError(t, rec.Capture(surface))
	}

	res := <-rec.Stop()
	require.NoError(t, res.Err)
	assert.Equal(t, 12, res.Artifact.FrameCount)
	assert.Equal(t, "RIFF", string(res.Artifact.Data[:4]))
}
