// Package fs implements storage.Bucket against the local filesystem, for
// development and tests where standing up a GCS bucket isn't worth it.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	storageiface "github.com/neardata-eu/lithops-hpc/internal/storage"
)

// Bucket roots all keys under a base directory, created on first use.
type Bucket struct {
	root string
}

// New returns a Bucket rooted at root. root need not already exist.
func New(root string) *Bucket {
	return &Bucket{root: root}
}

func (b *Bucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte) error {
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fs: mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(p, value, 0o644); err != nil {
		return fmt.Errorf("fs: write %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storageiface.ErrNotExist
		}
		return nil, fmt.Errorf("fs: read %s: %w", key, err)
	}
	return data, nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fs: delete %s: %w", key, err)
	}
	return nil
}
