// Package render decodes source images and draws them onto frame surfaces
// under an effect transform.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"strings"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Static errors for image loading.
var (
	// ErrDecode is returned when the input cannot be decoded as an image.
	ErrDecode = errors.New("decode image")
	// ErrImageTooLarge is returned when the decoded image would exceed MaxPixels.
	ErrImageTooLarge = errors.New("image too large")
)

// MaxPixels bounds the pixel count of images accepted by Decode.
const MaxPixels = 40_000_000

// Decode reads an image in any registered format. When maxDim is positive
// and the longer side exceeds it, the image is scaled down to fit while
// keeping its aspect ratio. It returns the image and its format name.
func Decode(r io.Reader, maxDim int) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read: %w", ErrDecode, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %w: %dx%d", ErrDecode, ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return Fit(img, maxDim), format, nil
}

// DecodeDataURL decodes a "data:<mime>;base64,<payload>" URL or a bare
// base64 payload.
func DecodeDataURL(s string, maxDim int) (image.Image, string, error) {
	data, err := DataURLBytes(s)
	if err != nil {
		return nil, "", err
	}
	return Decode(bytes.NewReader(data), maxDim)
}

// DataURLBytes returns the raw bytes of a base64 data URL or of a bare
// base64 payload. Errors wrap ErrDecode.
func DataURLBytes(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URL", ErrDecode)
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: data URL is not base64 encoded", ErrDecode)
		}
		payload = rest
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
	}
	return data, nil
}

// Fit scales img down so that neither side exceeds maxDim. Images that
// already fit, or a non-positive maxDim, return img unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = max(1, h*maxDim/w)
	} else {
		nh = maxDim
		nw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
