// Package gcs implements storage.Bucket against a Google Cloud Storage
// bucket, the production backend for the runtime registry.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gstorage "cloud.google.com/go/storage"

	storageiface "github.com/neardata-eu/lithops-hpc/internal/storage"
)

// Bucket wraps a single GCS bucket.
type Bucket struct {
	client *gstorage.Client
	bucket string
}

// New opens a client-backed handle to bucket. The caller owns the returned
// *storage.Client and should Close it; Bucket borrows it.
func New(client *gstorage.Client, bucket string) *Bucket {
	return &Bucket{client: client, bucket: bucket}
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(value); err != nil {
		w.Close()
		return fmt.Errorf("gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: close writer %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, storageiface.ErrNotExist
		}
		return nil, fmt.Errorf("gcs: open reader %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", key, err)
	}
	return data, nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", key, err)
	}
	return nil
}
