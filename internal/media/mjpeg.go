package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
)

// MJPEGEncoder writes an AVI container holding one Motion-JPEG stream.
// It needs no external tools.
type MJPEGEncoder struct {
	quality int

	w, h, fps int
	started   bool
	chunks    [][]byte
	buf       bytes.Buffer
}

// NewMJPEGEncoder creates an MJPEGEncoder. Quality is clamped to 1..100;
// zero selects 90.
func NewMJPEGEncoder(quality int) *MJPEGEncoder {
	switch {
	case quality == 0:
		quality = 90
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}
	return &MJPEGEncoder{quality: quality}
}

// Start implements Encoder.
func (e *MJPEGEncoder) Start(_ context.Context, w, h, fps int) error {
	if err := checkStream(w, h, fps); err != nil {
		return err
	}
	if w > math.MaxUint16 || h > math.MaxUint16 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, w, h)
	}
	e.w, e.h, e.fps = w, h, fps
	e.chunks = e.chunks[:0]
	e.started = true
	return nil
}

// WriteFrame implements Encoder. Each frame becomes one JPEG chunk.
func (e *MJPEGEncoder) WriteFrame(img *image.RGBA) error {
	if !e.started {
		return ErrNotStarted
	}
	if img.Bounds().Dx() != e.w || img.Bounds().Dy() != e.h {
		return fmt.Errorf("%w: got %v, want %dx%d", ErrFrameSize, img.Bounds().Size(), e.w, e.h)
	}

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("encode JPEG frame: %w", err)
	}
	chunk := make([]byte, e.buf.Len())
	copy(chunk, e.buf.Bytes())
	e.chunks = append(e.chunks, chunk)
	return nil
}

// Close implements Encoder.
func (e *MJPEGEncoder) Close() (*Artifact, error) {
	if !e.started {
		return nil, ErrNotStarted
	}
	e.started = false
	if len(e.chunks) == 0 {
		return nil, ErrNoFrames
	}

	var out bytes.Buffer
	if err := writeAVI(&out, e.w, e.h, e.fps, e.chunks); err != nil {
		return nil, err
	}
	frames := len(e.chunks)
	e.chunks = nil

	return &Artifact{
		Data:       out.Bytes(),
		MIMEType:   "video/x-msvideo",
		Extension:  "avi",
		Width:      e.w,
		Height:     e.h,
		FrameRate:  e.fps,
		FrameCount: frames,
	}, nil
}

// Abort implements Encoder.
func (e *MJPEGEncoder) Abort() {
	e.started = false
	e.chunks = nil
}

// binaryWriter keeps the first write error so the container can be
// assembled without checking every call.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) fourCC(s string) {
	if bw.err != nil {
		return
	}
	_, bw.err = io.WriteString(bw.w, s)
}

func (bw *binaryWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) bytes(data []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(data)
}

const (
	avifHasIndex  = 0x10
	aviifKeyframe = 0x10
	// "hdrl" + avih chunk (8+56) + strl list (8+4 + strh 8+56 + strf 8+40)
	hdrlSize = 4 + 64 + 124
)

// writeAVI writes a RIFF AVI with one MJPG video stream made of chunks,
// followed by an idx1 index marking every frame as a keyframe.
func writeAVI(w io.Writer, width, height, fps int, chunks [][]byte) error {
	frames := uint32(len(chunks))

	var moviSize, maxChunk uint32 = 4, 0
	for _, c := range chunks {
		n := uint32(len(c))
		moviSize += 8 + padded(n)
		maxChunk = max(maxChunk, n)
	}
	idx1Size := 8 + frames*16
	fileSize := 4 + (8 + hdrlSize) + (8 + moviSize) + idx1Size

	imgW, imgH := uint32(width), uint32(height)
	bw := &binaryWriter{w: w}

	bw.fourCC("RIFF")
	bw.u32(fileSize)
	bw.fourCC("AVI ")

	bw.fourCC("LIST")
	bw.u32(hdrlSize)
	bw.fourCC("hdrl")

	// avih
	bw.fourCC("avih")
	bw.u32(56)
	bw.u32(uint32(1_000_000 / fps)) // microseconds per frame
	bw.u32(maxChunk * uint32(fps))  // max bytes per second
	bw.u32(0)                       // padding granularity
	bw.u32(avifHasIndex)
	bw.u32(frames)
	bw.u32(0) // initial frames
	bw.u32(1) // streams
	bw.u32(maxChunk)
	bw.u32(imgW)
	bw.u32(imgH)
	for range 4 {
		bw.u32(0) // reserved
	}

	bw.fourCC("LIST")
	bw.u32(116)
	bw.fourCC("strl")

	// strh
	bw.fourCC("strh")
	bw.u32(56)
	bw.fourCC("vids")
	bw.fourCC("MJPG")
	bw.u32(0) // flags
	bw.u16(0) // priority
	bw.u16(0) // language
	bw.u32(0) // initial frames
	bw.u32(1) // scale
	bw.u32(uint32(fps))
	bw.u32(0) // start
	bw.u32(frames)
	bw.u32(maxChunk)
	bw.u32(0xFFFFFFFF) // quality: default
	bw.u32(0)          // sample size
	bw.u16(0)
	bw.u16(0)
	bw.u16(uint16(imgW))
	bw.u16(uint16(imgH))

	// strf: BITMAPINFOHEADER
	bw.fourCC("strf")
	bw.u32(40)
	bw.u32(40)
	bw.u32(imgW)
	bw.u32(imgH)
	bw.u16(1)  // planes
	bw.u16(24) // bits per pixel
	bw.fourCC("MJPG")
	bw.u32(imgW * imgH * 3)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)
	bw.u32(0)

	bw.fourCC("LIST")
	bw.u32(moviSize)
	bw.fourCC("movi")

	pad := []byte{0}
	for _, c := range chunks {
		bw.fourCC("00dc")
		bw.u32(uint32(len(c)))
		bw.bytes(c)
		if len(c)%2 != 0 {
			bw.bytes(pad)
		}
	}

	bw.fourCC("idx1")
	bw.u32(frames * 16)
	offset := uint32(4) // relative to the "movi" fourCC
	for _, c := range chunks {
		n := uint32(len(c))
		bw.fourCC("00dc")
		bw.u32(aviifKeyframe)
		bw.u32(offset)
		bw.u32(n)
		offset += 8 + padded(n)
	}

	if bw.err != nil {
		return fmt.Errorf("write AVI: %w", bw.err)
	}
	return nil
}

// padded rounds n up to the even size RIFF chunks require.
func padded(n uint32) uint32 {
	return n + n%2
}
