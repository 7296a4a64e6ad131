// factory.go implements the storage backend registry and factory, mapping backend type
// strings (local, s3, azure, gcs) to constructor functions and dispatching NewStorage calls.
package storage

import (
	"fmt"

	"github.com/mvpmarket/mvpmarket/internal/config"
)

// FactoryFunc creates a storage backend for one logical bucket. baseURL is the
// server's public URL, used by backends that serve files through the API.
type FactoryFunc func(bucket *config.BucketConfig, baseURL string) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates a storage backend for the given bucket configuration
func NewStorage(bucket *config.BucketConfig, baseURL string) (Storage, error) {
	factory, ok := factories[bucket.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 'azure', 's3', or 'gcs')", bucket.Backend)
	}

	return factory(bucket, baseURL)
}
