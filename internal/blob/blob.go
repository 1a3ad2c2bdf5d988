// Package blob stores uploaded image bytes under the upload root.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned by Open for keys with no stored object.
var ErrNotExist = errors.New("blob does not exist")

// Store addresses objects by slash-separated keys relative to the upload root.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a Store backend.
type Config struct {
	Backend   string // "filesystem" (default) or "s3"
	Root      string
	S3Bucket  string
	S3Prefix  string
	S3Region  string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewFromConfig creates a Store implementation based on the backend type.
func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem blob store requires an upload directory")
		}
		return NewFileSystem(cfg.Root)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 blob store requires a bucket")
		}
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Backend)
	}
}

// ValidKey reports whether key is in canonical form and stays inside the upload root.
func ValidKey(key string) bool {
	if key == "" || strings.Contains(key, "\\") || path.Clean(key) != key {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(key))
}
