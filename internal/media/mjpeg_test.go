package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestNewMJPEGEncoder_Quality(t *testing.T) {
	assert.Equal(t, 90, NewMJPEGEncoder(0).quality)
	assert.Equal(t, 1, NewMJPEGEncoder(-5).quality)
	assert.Equal(t, 100, NewMJPEGEncoder(500).quality)
	assert.Equal(t, 75, NewMJPEGEncoder(75).quality)
}

func TestMJPEGEncoder_WritesAVI(t *testing.T) {
	enc := NewMJPEGEncoder(80)
	require.NoError(t, enc.Start(context.Background(), 33, 17, 30))

	for i := 0; i < 5; i++ {
		require.NoError(t, enc.WriteFrame(frameOf(33, 17, color.RGBA{R: uint8(i * 40), A: 255})))
	}

	art, err := enc.Close()
	require.NoError(t, err)

	assert.Equal(t, "video/x-msvideo", art.MIMEType)
	assert.Equal(t, "avi", art.Extension)
	assert.Equal(t, 5, art.FrameCount)
	assert.Equal(t, 30, art.FrameRate)
	assert.Equal(t, "generated-video.avi", art.FileName("generated-video"))

	data := art.Data
	require.Greater(t, len(data), 224)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(len(data)-8), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, "AVI ", string(data[8:12]))
	assert.Equal(t, "hdrl", string(data[20:24]))
	assert.Equal(t, "avih", string(data[24:28]))
	assert.Equal(t, uint32(1_000_000/30), binary.LittleEndian.Uint32(data[32:36]))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[48:52]))
	assert.Equal(t, uint32(33), binary.LittleEndian.Uint32(data[64:68]))
	assert.Equal(t, uint32(17), binary.LittleEndian.Uint32(data[68:72]))

	// The first movi chunk is a decodable JPEG.
	movi := bytes.Index(data, []byte("movi"))
	require.Positive(t, movi)
	assert.Equal(t, "00dc", string(data[movi+4:movi+8]))
	size := binary.LittleEndian.Uint32(data[movi+8 : movi+12])
	img, err := jpeg.Decode(bytes.NewReader(data[movi+12 : movi+12+int(size)]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 33, 17), img.Bounds())

	idx := bytes.LastIndex(data, []byte("idx1"))
	require.Positive(t, idx)
	assert.Equal(t, uint32(5*16), binary.LittleEndian.Uint32(data[idx+4:idx+8]))
	assert.Equal(t, len(data), idx+8+5*16)
}

func TestMJPEGEncoder_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("write before start", func(t *testing.T) {
		enc := NewMJPEGEncoder(0)
		assert.ErrorIs(t, enc.WriteFrame(frameOf(2, 2, color.RGBA{})), ErrNotStarted)
	})

	t.Run("invalid dimensions", func(t *testing.T) {
		enc := NewMJPEGEncoder(0)
		assert.ErrorIs(t, enc.Start(ctx, 0, 10, 30), ErrInvalidDimensions)
		assert.ErrorIs(t, enc.Start(ctx, 70000, 10, 30), ErrInvalidDimensions)
	})

	t.Run("invalid frame rate", func(t *testing.T) {
		enc := NewMJPEGEncoder(0)
		assert.ErrorIs(t, enc.Start(ctx, 10, 10, 0), ErrInvalidFrameRate)
	})

	t.Run("frame size mismatch", func(t *testing.T) {
		enc := NewMJPEGEncoder(0)
		require.NoError(t, enc.Start(ctx, 10, 10, 30))
		assert.ErrorIs(t, enc.WriteFrame(frameOf(11, 10, color.RGBA{})), ErrFrameSize)
	})

	t.Run("close without frames", func(t *testing.T) {
		enc := NewMJPEGEncoder(0)
		require.NoError(t, enc.Start(ctx, 10, 10, 30))
		_, err := enc.Close()
		assert.ErrorIs(t, err, ErrNoFrames)
	})
}

func TestArtifact_DataURL(t *testing.T) {
	art := &Artifact{Data: []byte("abc"), MIMEType: "video/webm"}
	assert.Equal(t, "data:video/webm;base64,YWJj", art.DataURL())
}

func TestPadded(t *testing.T) {
	assert.Equal(t, uint32(4), padded(3))
	assert.Equal(t, uint32(4), padded(4))
	assert.Equal(t, uint32(0), padded(0))
}
