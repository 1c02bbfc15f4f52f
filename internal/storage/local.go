package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage implements ObjectStore on local disk.
// It is meant for development; files are served from publicBaseURL by
// whatever fronts the directory.
type LocalStorage struct {
	root          string
	publicBaseURL string
}

// NewLocalStorage creates a LocalStorage rooted at dir.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "clearmedia")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{root: dir, publicBaseURL: publicBaseURL}, nil
}

// Root returns the storage directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes data to root/key and returns the public URL.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close object: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move object into place: %w", err)
	}

	return s.PublicURL(k), nil
}

// Open reads an object previously stored with Put.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(k))) // #nosec G304 - key is confined to root by cleanKey
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}

	return f, nil
}

// Presign is not supported by LocalStorage and returns ErrPresignUnsupported.
func (s *LocalStorage) Presign(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// PublicURL returns publicBaseURL/key, or a file:// URL when no base is set.
func (s *LocalStorage) PublicURL(key string) string {
	if s.publicBaseURL == "" {
		return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(key)))
	}
	return joinURL(s.publicBaseURL, key)
}

var (
	_ ObjectStore  = (*LocalStorage)(nil)
	_ ObjectReader = (*LocalStorage)(nil)
)
