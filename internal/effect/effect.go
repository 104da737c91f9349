// Package effect maps an animation effect and a progress fraction to the
// 2D affine transform and opacity used to draw one frame.
package effect

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/image/math/f64"
)

// ErrUnknownEffect is returned by Parse for identifiers outside the closed set.
var ErrUnknownEffect = errors.New("unknown effect")

// Effect identifies one of the supported animations.
type Effect string

const (
	// ZoomIn scales from 1.0 to 1.5 about the center.
	ZoomIn Effect = "zoom-in"
	// ZoomOut scales from 1.5 to 1.0 about the center.
	ZoomOut Effect = "zoom-out"
	// PanLeft slides a 1.3x image left by up to 30% of the width.
	PanLeft Effect = "pan-left"
	// PanRight slides a 1.3x image right by up to 30% of the width.
	PanRight Effect = "pan-right"
	// PanUp slides a 1.3x image up by up to 30% of the height.
	PanUp Effect = "pan-up"
	// PanDown slides a 1.3x image down by up to 30% of the height.
	PanDown Effect = "pan-down"
	// Rotate turns the image one full revolution about the center.
	Rotate Effect = "rotate"
	// Fade fades the image in over the first half and out over the second.
	Fade Effect = "fade"
)

var all = []Effect{ZoomIn, ZoomOut, PanLeft, PanRight, PanUp, PanDown, Rotate, Fade}

// All returns the supported effects in presentation order.
func All() []Effect {
	out := make([]Effect, len(all))
	copy(out, all)
	return out
}

// Valid reports whether e is one of the supported effects.
func (e Effect) Valid() bool {
	for _, v := range all {
		if e == v {
			return true
		}
	}
	return false
}

// Parse converts s to an Effect, ignoring case and surrounding space.
func Parse(s string) (Effect, error) {
	e := Effect(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEffect, s)
	}
	return e, nil
}

// Transform describes how the source image is placed on the surface for
// a single frame. Scale and rotation are applied about (PivotX, PivotY);
// the translation is applied last, in surface space.
type Transform struct {
	ScaleX     float64
	ScaleY     float64
	TranslateX float64
	TranslateY float64
	Rotation   float64 // radians, clockwise in surface coordinates
	PivotX     float64
	PivotY     float64
	Alpha      float64 // 0 transparent, 1 opaque
}

// Identity returns the transform that draws the image unchanged.
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1, Alpha: 1}
}

// Matrix returns the surface transform
// T(tx,ty) · T(px,py) · R(θ) · S(sx,sy) · T(-px,-py)
// in the row-major layout used by golang.org/x/image/draw.
func (t Transform) Matrix() f64.Aff3 {
	sin, cos := math.Sincos(t.Rotation)
	a := cos * t.ScaleX
	b := -sin * t.ScaleY
	d := sin * t.ScaleX
	e := cos * t.ScaleY
	return f64.Aff3{
		a, b, t.PivotX - a*t.PivotX - b*t.PivotY + t.TranslateX,
		d, e, t.PivotY - d*t.PivotX - e*t.PivotY + t.TranslateY,
	}
}

// Apply maps the point (x, y) through the transform.
func (t Transform) Apply(x, y float64) (float64, float64) {
	m := t.Matrix()
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

const (
	zoomRange = 0.5
	panScale  = 1.3
	panTravel = 0.3
)

// Evaluate returns the transform for effect e at the given progress on a
// width×height surface. It is pure and total: unknown effects yield the
// identity transform. Progress is not clamped.
func Evaluate(e Effect, progress float64, width, height int) Transform {
	w, h := float64(width), float64(height)
	cx, cy := w/2, h/2
	t := Identity()

	switch e {
	case ZoomIn:
		s := 1 + progress*zoomRange
		t.ScaleX, t.ScaleY = s, s
		t.PivotX, t.PivotY = cx, cy
	case ZoomOut:
		s := 1 + zoomRange - progress*zoomRange
		t.ScaleX, t.ScaleY = s, s
		t.PivotX, t.PivotY = cx, cy
	case PanLeft:
		t.ScaleX, t.ScaleY = panScale, panScale
		t.TranslateX = -progress * w * panTravel
	case PanRight:
		t.ScaleX, t.ScaleY = panScale, panScale
		t.TranslateX = progress * w * panTravel
	case PanUp:
		t.ScaleX, t.ScaleY = panScale, panScale
		t.TranslateY = -progress * h * panTravel
	case PanDown:
		t.ScaleX, t.ScaleY = panScale, panScale
		t.TranslateY = progress * h * panTravel
	case Rotate:
		t.Rotation = progress * 2 * math.Pi
		t.PivotX, t.PivotY = cx, cy
	case Fade:
		t.Alpha = fadeAlpha(progress)
	}

	return t
}

// fadeAlpha ramps 0→1 over the first half and 1→0 over the second.
func fadeAlpha(p float64) float64 {
	if p < 0.5 {
		return p * 2
	}
	return 2 - p*2
}
