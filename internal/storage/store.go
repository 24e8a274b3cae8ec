package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore is the contract for the audio object storage collaborator.
// Upload returns a stable URL that the other methods accept back.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
	DeleteMany(ctx context.Context, urls []string) (deleted int, errs []error)
}

// LocalStore serves objects from a directory on disk, addressing them as
// baseURL/key. It backs development and single-node deployments; a cloud
// implementation can replace it behind the same interface.
type LocalStore struct {
	rootDir string
	baseURL string
}

// NewLocalStore creates a disk-backed object store rooted at rootDir.
func NewLocalStore(rootDir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", rootDir, err)
	}

	return &LocalStore{
		rootDir: rootDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload writes the object under its key and returns its URL.
func (s *LocalStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}

	return s.baseURL + "/" + key, nil
}

// Download reads back an object by the URL Upload returned.
func (s *LocalStore) Download(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.pathForURL(url)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", url, err)
	}

	return data, nil
}

// Delete removes a single object.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForURL(url)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %s: %w", url, err)
	}

	return nil
}

// DeleteMany removes a set of objects, continuing past individual
// failures, and reports how many were deleted.
func (s *LocalStore) DeleteMany(ctx context.Context, urls []string) (int, []error) {
	deleted := 0
	errs := make([]error, 0)

	for _, url := range urls {
		if err := s.Delete(ctx, url); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	return deleted, errs
}

func (s *LocalStore) pathForKey(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.rootDir, clean), nil
}

func (s *LocalStore) pathForURL(url string) (string, error) {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return "", fmt.Errorf("url %q does not belong to this store", url)
	}
	return s.pathForKey(strings.TrimPrefix(url, s.baseURL+"/"))
}
