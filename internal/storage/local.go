package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrS3NotConfigured is returned by Publish when no bucket is configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// ErrOutsideTempDir is returned when a path does not belong to the temp directory.
var ErrOutsideTempDir = errors.New("path is outside the temp directory")

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage stores files in a single directory on local disk.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates the temp directory if needed.
// An empty tempDir falls back to $TMPDIR/image2video.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "image2video")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// SaveTemp writes data to <name>_<random><ext> inside the temp directory.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.CreateTemp(s.tempDir, tempPattern(name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// LoadTemp opens a file inside the temp directory. The returned reader is an
// *os.File, so callers may seek it.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if !s.owns(path) {
		return nil, fmt.Errorf("open temp file %s: %w", path, ErrOutsideTempDir)
	}

	f, err := os.Open(path) // #nosec G304 - path is checked against tempDir
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// CleanupTemp removes the given files and returns the first error.
// Empty paths and files that are already gone are skipped; paths outside
// the temp directory are never removed.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		switch {
		case p == "":
			continue
		case !s.owns(p):
			keep(fmt.Errorf("remove temp file %s: %w", p, ErrOutsideTempDir))
			continue
		}

		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			keep(fmt.Errorf("remove temp file %s: %w", p, err))
		}
	}
	return firstErr
}

// Publish is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Publish(_ context.Context, _, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

func (s *LocalStorage) owns(path string) bool {
	rel, err := filepath.Rel(s.tempDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// tempPattern turns "video.webm" into "video_*.webm" for os.CreateTemp.
func tempPattern(name string) string {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "file"
	}
	return base + "_*" + ext
}
