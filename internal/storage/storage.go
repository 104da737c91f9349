// Package storage keeps uploaded images and rendered videos on local disk
// and optionally publishes finished videos to S3.
package storage

import (
	"context"
	"io"
)

// Storage is the port the job service uses for every file it touches.
type Storage interface {
	// SaveTemp writes data to a new file in the temp directory and returns
	// its path. name is a hint; its extension, if any, is kept.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a file previously returned by SaveTemp.
	// The caller must close it.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the given files, continuing past failures.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data under key with the given content type and
	// returns its URL. Returns ErrS3NotConfigured without S3.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
