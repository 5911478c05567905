// Package registry persists the scheduler job ID of a deployed runtime so a
// later controller invocation (in a different process) can find and stop
// it, without re-deploying.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/neardata-eu/lithops-hpc/internal/storage"
)

// ErrNotDeployed is returned by Load when no job ID is on record for a
// runtime key, meaning it is either never deployed or already torn down.
var ErrNotDeployed = errors.New("registry: runtime not deployed")

// runtimesPrefix namespaces runtime records within the bucket, mirroring
// the original backend's RUNTIMES_PREFIX object path.
const runtimesPrefix = "runtimes"

// Registry records the scheduler job ID backing each deployed runtime key.
type Registry struct {
	bucket storage.Bucket
}

// New returns a Registry backed by bucket.
func New(bucket storage.Bucket) *Registry {
	return &Registry{bucket: bucket}
}

func objectKey(runtimeKey string) string {
	return fmt.Sprintf("%s/%s.jid", runtimesPrefix, runtimeKey)
}

// Save records jobID as the scheduler job backing runtimeKey.
func (r *Registry) Save(ctx context.Context, runtimeKey, jobID string) error {
	if err := r.bucket.Put(ctx, objectKey(runtimeKey), []byte(jobID)); err != nil {
		return fmt.Errorf("registry: save %s: %w", runtimeKey, err)
	}
	return nil
}

// Load returns the scheduler job ID backing runtimeKey, or ErrNotDeployed if
// none is recorded.
func (r *Registry) Load(ctx context.Context, runtimeKey string) (string, error) {
	data, err := r.bucket.Get(ctx, objectKey(runtimeKey))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", ErrNotDeployed
		}
		return "", fmt.Errorf("registry: load %s: %w", runtimeKey, err)
	}
	return string(data), nil
}

// Delete removes the record for runtimeKey.
func (r *Registry) Delete(ctx context.Context, runtimeKey string) error {
	if err := r.bucket.Delete(ctx, objectKey(runtimeKey)); err != nil {
		return fmt.Errorf("registry: delete %s: %w", runtimeKey, err)
	}
	return nil
}
