// Package services implements higher-level business logic that coordinates across
// repositories, storage backends, and external systems. The entry writer owns
// catalog entry lifecycle operations, the store writer owns purpose-routed file
// placement, and the processor drives the scan-then-pin publication pipeline.
package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/storage"
)

// StoredFile is what a store operation hands back: where the file landed, how to
// reach it, and the SHA-256 of the bytes actually written.
type StoredFile struct {
	URL  string
	Path string
	Hash string
	Size int64
}

// StoreWriter routes uploads to the right bucket by purpose: template archives
// go to the private bucket, preview images to the public one. Writes are
// upserts — storing to an occupied path overwrites silently, which is what
// re-publishing a version to the same deterministic path needs.
type StoreWriter struct {
	archives     storage.Storage
	previews     storage.Storage
	signedURLTTL time.Duration
}

// NewStoreWriter creates a store writer over the two bucket backends.
func NewStoreWriter(archives, previews storage.Storage, signedURLTTL time.Duration) *StoreWriter {
	return &StoreWriter{
		archives:     archives,
		previews:     previews,
		signedURLTTL: signedURLTTL,
	}
}

// StoreArchive writes a template archive to the private bucket at dir/fileName
// and returns its location and content hash.
func (w *StoreWriter) StoreArchive(ctx context.Context, dir, fileName string, content io.Reader, size int64) (*StoredFile, error) {
	path := dir + "/" + fileName

	result, err := w.archives.Upload(ctx, path, content, size)
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	return &StoredFile{
		Path: result.Path,
		Hash: result.Checksum,
		Size: result.Size,
	}, nil
}

// StorePreview writes a preview image to the public bucket and returns its
// location including a publicly reachable URL.
func (w *StoreWriter) StorePreview(ctx context.Context, dir, fileName string, content io.Reader, size int64) (*StoredFile, error) {
	path := dir + "/" + fileName

	result, err := w.previews.Upload(ctx, path, content, size)
	if err != nil {
		return nil, fmt.Errorf("failed to store preview image: %w", err)
	}

	url, err := w.previews.GetURL(ctx, path, w.signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve preview URL: %w", err)
	}

	return &StoredFile{
		URL:  url,
		Path: result.Path,
		Hash: result.Checksum,
		Size: result.Size,
	}, nil
}

// ArchiveDownloadURL generates a time-limited signed URL for an archive in the
// private bucket.
func (w *StoreWriter) ArchiveDownloadURL(ctx context.Context, path string) (string, error) {
	url, err := w.archives.GetURL(ctx, path, w.signedURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign archive URL: %w", err)
	}
	return url, nil
}

// OpenArchive opens an archive in the private bucket for reading. The caller
// must close the returned reader.
func (w *StoreWriter) OpenArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := w.archives.Download(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return rc, nil
}
