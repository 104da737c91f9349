package batch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/image2video-api/internal/animation"
	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/media"
)

// fakeGenerator echoes the input bytes as the video payload.
type fakeGenerator struct {
	mu     sync.Mutex
	params []animation.Params
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, image io.Reader, params animation.Params) (*media.Artifact, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(image)
	if err != nil {
		return nil, err
	}
	return &media.Artifact{Data: data, MIMEType: "video/x-msvideo", Extension: "avi", FrameCount: params.Duration * 30}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renders.yaml")
	writeFile(t, path, `
renders:
  - input: a.png
    output: out/a.avi
    effect: pan-left
    duration: 5
  - input: /abs/b.jpg
`)

	renders, err := Read(path, effect.ZoomIn, 3)
	require.NoError(t, err)
	require.Len(t, renders, 2)

	assert.Equal(t, Render{
		Input:    filepath.Join(dir, "a.png"),
		Output:   filepath.Join(dir, "out", "a.avi"),
		Effect:   effect.PanLeft,
		Duration: 5,
	}, renders[0])
	assert.Equal(t, Render{Input: "/abs/b.jpg", Effect: effect.ZoomIn, Duration: 3}, renders[1])
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "renders: []\n", ErrEmpty},
		{"unknown effect", "renders:\n  - input: a.png\n    effect: wobble\n", effect.ErrUnknownEffect},
		{"duration too long", "renders:\n  - input: a.png\n    duration: 11\n", animation.ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "renders.yaml")
			writeFile(t, path, tt.content)

			_, err := Read(path, effect.ZoomIn, 3)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing input", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "renders.yaml")
		writeFile(t, path, "renders:\n  - output: x.avi\n")

		_, err := Read(path, effect.ZoomIn, 3)
		assert.ErrorContains(t, err, "input is required")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "renders.yaml")
		writeFile(t, path, "renders: [\n")

		_, err := Read(path, effect.ZoomIn, 3)
		assert.ErrorContains(t, err, "parse batch file")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"), effect.ZoomIn, 3)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestOutputPath(t *testing.T) {
	webm := &media.Artifact{Extension: "webm"}
	avi := &media.Artifact{Extension: "avi"}

	tests := []struct {
		name   string
		render Render
		art    *media.Artifact
		want   string
	}{
		{"named after input", Render{Input: "/img/cat.png", Effect: effect.Fade}, webm, "/img/cat-fade.webm"},
		{"extension added", Render{Input: "/img/cat.png", Output: "/out/clip"}, webm, "/out/clip.webm"},
		{"matching extension kept", Render{Input: "/img/cat.png", Output: "/out/clip.webm"}, webm, "/out/clip.webm"},
		{"matching extension any case", Render{Input: "/img/cat.png", Output: "/out/clip.WEBM"}, webm, "/out/clip.WEBM"},
		{"webm name with avi bytes", Render{Input: "/img/cat.png", Output: "/out/clip.webm"}, avi, "/out/clip.avi"},
		{"foreign extension replaced", Render{Input: "/img/cat.png", Output: "/out/clip.mp4"}, webm, "/out/clip.webm"},
		{"dotted directory", Render{Input: "/img/cat.png", Output: "/out.v2/clip"}, avi, "/out.v2/clip.avi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.render.OutputPath(tt.art))
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "image-a")
	writeFile(t, filepath.Join(dir, "b.png"), "image-b")

	renders := []Render{
		{Input: filepath.Join(dir, "a.png"), Output: filepath.Join(dir, "out", "a"), Effect: effect.Rotate, Duration: 1},
		{Input: filepath.Join(dir, "b.png"), Effect: effect.Fade, Duration: 2},
	}
	gen := &fakeGenerator{}

	require.NoError(t, Run(context.Background(), gen, renders, 2, nil))

	data, err := os.ReadFile(filepath.Join(dir, "out", "a.avi"))
	require.NoError(t, err)
	assert.Equal(t, "image-a", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "b-fade.avi"))
	require.NoError(t, err)
	assert.Equal(t, "image-b", string(data))

	assert.ElementsMatch(t, []animation.Params{
		{Duration: 1, Effect: effect.Rotate},
		{Duration: 2, Effect: effect.Fade},
	}, gen.params)
}

func TestRun_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), "image-a")
	boom := errors.New("encoder exploded")

	err := Run(context.Background(), &fakeGenerator{err: boom},
		[]Render{{Input: filepath.Join(dir, "a.png"), Effect: effect.ZoomOut, Duration: 1}}, 1, nil)

	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(filepath.Join(dir, "a-zoom-out.avi"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRenderOne_MissingInput(t *testing.T) {
	_, err := RenderOne(context.Background(), &fakeGenerator{},
		Render{Input: filepath.Join(t.TempDir(), "missing.png"), Effect: effect.Fade, Duration: 1}, nil)

	assert.ErrorIs(t, err, os.ErrNotExist)
}
