// Package storage keeps uploaded sources and processed results.
// It defines the ObjectStore port and implementations for S3-compatible
// object storage and local disk.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Static errors for storage operations.
var (
	// ErrPresignUnsupported is returned by stores that cannot hand out
	// direct upload URLs.
	ErrPresignUnsupported = errors.New("storage: presigned uploads are not supported")
	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("storage: invalid object key")
)

// DefaultPresignTTL is how long a presigned upload URL stays valid.
const DefaultPresignTTL = time.Hour

// ObjectStore stores objects by key and resolves their public URLs.
type ObjectStore interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)

	// Presign returns a URL the client can PUT the object to directly.
	// Returns ErrPresignUnsupported if the store has no such capability.
	Presign(ctx context.Context, key, contentType string, ttl time.Duration) (url string, err error)

	// PublicURL returns the URL an object key is served from.
	PublicURL(key string) string
}

// ObjectReader is implemented by stores whose objects the API serves itself.
type ObjectReader interface {
	// Open reads the object stored under key. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewKey builds a unique object key under prefix, keeping the extension of
// the original filename.
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	key := uuid.NewString() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// cleanKey normalizes a key and rejects ones that would escape the root.
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(key, "/")
	if k == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(k)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// SafeSegment turns an arbitrary identifier into a single key segment.
// Characters outside [A-Za-z0-9._-] are replaced with '_'.
func SafeSegment(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	if out == "" || strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}
