package effect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestParse(t *testing.T) {
	for _, e := range All() {
		got, err := Parse(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	got, err := Parse("  Zoom-In ")
	require.NoError(t, err)
	assert.Equal(t, ZoomIn, got)

	_, err = Parse("spin")
	assert.ErrorIs(t, err, ErrUnknownEffect)
}

func TestAll_ReturnsCopy(t *testing.T) {
	effects := All()
	require.Len(t, effects, 8)
	effects[0] = "mutated"
	assert.Equal(t, ZoomIn, All()[0])
}

func TestEvaluate_Table(t *testing.T) {
	const w, h = 800, 600
	progresses := []float64{0, 0.25, 0.5, 0.75, 1}

	for _, p := range progresses {
		tests := []struct {
			effect Effect
			want   Transform
		}{
			{ZoomIn, Transform{ScaleX: 1 + p*0.5, ScaleY: 1 + p*0.5, PivotX: 400, PivotY: 300, Alpha: 1}},
			{ZoomOut, Transform{ScaleX: 1.5 - p*0.5, ScaleY: 1.5 - p*0.5, PivotX: 400, PivotY: 300, Alpha: 1}},
			{PanLeft, Transform{ScaleX: 1.3, ScaleY: 1.3, TranslateX: -p * w * 0.3, Alpha: 1}},
			{PanRight, Transform{ScaleX: 1.3, ScaleY: 1.3, TranslateX: p * w * 0.3, Alpha: 1}},
			{PanUp, Transform{ScaleX: 1.3, ScaleY: 1.3, TranslateY: -p * h * 0.3, Alpha: 1}},
			{PanDown, Transform{ScaleX: 1.3, ScaleY: 1.3, TranslateY: p * h * 0.3, Alpha: 1}},
			{Rotate, Transform{ScaleX: 1, ScaleY: 1, Rotation: p * 2 * math.Pi, PivotX: 400, PivotY: 300, Alpha: 1}},
		}
		for _, tt := range tests {
			got := Evaluate(tt.effect, p, w, h)
			assertTransform(t, tt.want, got, "%s at %v", tt.effect, p)
		}
	}
}

func TestEvaluate_PanRightExample(t *testing.T) {
	// 800x600, 2 s: frame 30 of 60 is progress 0.5.
	got := Evaluate(PanRight, 30.0/60.0, 800, 600)
	assert.InDelta(t, 120, got.TranslateX, eps)
	assert.InDelta(t, 0, got.TranslateY, eps)
	assert.InDelta(t, 1.3, got.ScaleX, eps)
	assert.InDelta(t, 1.3, got.ScaleY, eps)
	assert.InDelta(t, 0, got.Rotation, eps)
	assert.InDelta(t, 1, got.Alpha, eps)
}

func TestEvaluate_ZoomInEnd(t *testing.T) {
	got := Evaluate(ZoomIn, 1, 640, 480)
	assert.InDelta(t, 1.5, got.ScaleX, eps)
	assert.InDelta(t, 1, got.Alpha, eps)

	// The pivot stays fixed.
	x, y := got.Apply(320, 240)
	assert.InDelta(t, 320, x, eps)
	assert.InDelta(t, 240, y, eps)
}

func TestEvaluate_RotateFullTurn(t *testing.T) {
	got := Evaluate(Rotate, 1, 100, 50)
	assert.InDelta(t, 2*math.Pi, got.Rotation, eps)

	x, y := got.Apply(10, 20)
	assert.InDelta(t, 10, x, 1e-6)
	assert.InDelta(t, 20, y, 1e-6)
}

func TestEvaluate_FadeSymmetric(t *testing.T) {
	alpha := func(p float64) float64 { return Evaluate(Fade, p, 10, 10).Alpha }

	assert.InDelta(t, 0, alpha(0), eps)
	assert.InDelta(t, 0.5, alpha(0.25), eps)
	assert.InDelta(t, 1, alpha(0.5), eps)
	assert.InDelta(t, 0.5, alpha(0.75), eps)
	assert.InDelta(t, 0, alpha(1), eps)

	for i := 0; i <= 100; i++ {
		p := float64(i) / 100
		assert.InDelta(t, alpha(p), alpha(1-p), 1e-9, "p=%v", p)
	}

	got := Evaluate(Fade, 0.3, 10, 10)
	assert.Equal(t, 1.0, got.ScaleX)
	assert.Equal(t, 0.0, got.Rotation)
	assert.Equal(t, 0.0, got.TranslateX)
}

func TestEvaluate_UnknownIsIdentity(t *testing.T) {
	assert.NotPanics(t, func() {
		got := Evaluate("wobble", 0.7, 100, 100)
		assert.Equal(t, Identity(), got)
	})
}

func TestTransform_MatrixPan(t *testing.T) {
	// translate then scale: the origin lands on the translation.
	tr := Evaluate(PanRight, 0.5, 800, 600)
	x, y := tr.Apply(0, 0)
	assert.InDelta(t, 120, x, eps)
	assert.InDelta(t, 0, y, eps)

	x, y = tr.Apply(100, 100)
	assert.InDelta(t, 250, x, eps)
	assert.InDelta(t, 130, y, eps)
}

func TestTransform_MatrixZoomAboutCenter(t *testing.T) {
	tr := Evaluate(ZoomOut, 0, 200, 100)
	x, y := tr.Apply(0, 0)
	// (0,0) is 100,50 from the center; at 1.5x it moves to -50,-25.
	assert.InDelta(t, -50, x, eps)
	assert.InDelta(t, -25, y, eps)
}

func assertTransform(t *testing.T, want, got Transform, msg string, args ...any) {
	t.Helper()
	assert.InDelta(t, want.ScaleX, got.ScaleX, eps, append([]any{msg + " ScaleX"}, args...)...)
	assert.InDelta(t, want.ScaleY, got.ScaleY, eps, append([]any{msg + " ScaleY"}, args...)...)
	assert.InDelta(t, want.TranslateX, got.TranslateX, eps, append([]any{msg + " TranslateX"}, args...)...)
	assert.InDelta(t, want.TranslateY, got.TranslateY, eps, append([]any{msg + " TranslateY"}, args...)...)
	assert.InDelta(t, want.Rotation, got.Rotation, eps, append([]any{msg + " Rotation"}, args...)...)
	assert.InDelta(t, want.PivotX, got.PivotX, eps, append([]any{msg + " PivotX"}, args...)...)
	assert.InDelta(t, want.PivotY, got.PivotY, eps, append([]any{msg + " PivotY"}, args...)...)
	assert.InDelta(t, want.Alpha, got.Alpha, eps, append([]any{msg + " Alpha"}, args...)...)
}
