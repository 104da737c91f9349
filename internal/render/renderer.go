package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/maauso/image2video-api/internal/effect"
)

// ErrUnknownInterpolator is returned by ParseInterpolator for unsupported names.
var ErrUnknownInterpolator = errors.New("unknown interpolator")

// ParseInterpolator maps a configuration name to a draw.Interpolator.
// Accepted names: nearest, approx-bilinear, bilinear, catmull-rom.
func ParseInterpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "", "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "catmull-rom":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterpolator, name)
	}
}

// Renderer draws a source image onto a surface under an effect.Transform.
// A Renderer keeps a scratch buffer for translucent frames and must not be
// used from more than one goroutine at a time.
type Renderer struct {
	interp  draw.Interpolator
	scratch *image.RGBA
}

// NewRenderer creates a Renderer. A nil interpolator defaults to
// draw.ApproxBiLinear.
func NewRenderer(interp draw.Interpolator) *Renderer {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	return &Renderer{interp: interp}
}

// Render clears dst, then draws src stretched to fill dst with the
// transform applied and the transform's alpha as global opacity.
func (r *Renderer) Render(dst *image.RGBA, src image.Image, t effect.Transform) {
	clear(dst.Pix)

	if t.Alpha <= 0 {
		return
	}

	m := surfaceMatrix(dst.Bounds(), src.Bounds(), t)

	if t.Alpha >= 1 {
		r.interp.Transform(dst, m, src, src.Bounds(), draw.Over, nil)
		return
	}

	scratch := r.scratchFor(dst.Bounds())
	clear(scratch.Pix)
	r.interp.Transform(scratch, m, src, src.Bounds(), draw.Over, nil)

	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(t.Alpha * 255))})
	draw.DrawMask(dst, dst.Bounds(), scratch, scratch.Bounds().Min, mask, image.Point{}, draw.Over)
}

func (r *Renderer) scratchFor(bounds image.Rectangle) *image.RGBA {
	if r.scratch == nil || r.scratch.Rect != bounds {
		r.scratch = image.NewRGBA(bounds)
	}
	return r.scratch
}

// surfaceMatrix maps source pixel coordinates to destination coordinates:
// the source rectangle is stretched onto the surface, then the effect
// transform is applied in surface space.
func surfaceMatrix(dstB, srcB image.Rectangle, t effect.Transform) f64.Aff3 {
	sx := float64(dstB.Dx()) / float64(srcB.Dx())
	sy := float64(dstB.Dy()) / float64(srcB.Dy())
	stretch := f64.Aff3{
		sx, 0, -float64(srcB.Min.X) * sx,
		0, sy, -float64(srcB.Min.Y) * sy,
	}

	m := mul(t.Matrix(), stretch)
	m[2] += float64(dstB.Min.X)
	m[5] += float64(dstB.Min.Y)
	return m
}

// mul returns a·b for 2×3 affine matrices.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
