package store

import (
	"context"
	"io"
	"time"
)

// An Object is the metadata for one deployed object, as reported by the
// remote store. The deployment prefix has already been stripped from the key
// so that it's directly comparable to local build paths.
type Object struct {
	// Key is the object's path relative to the deployment prefix.
	Key string

	// ETag is the store-reported content fingerprint, with the surrounding
	// quotes removed. For objects uploaded in a single part it's the hex MD5
	// digest of the contents. For multipart uploads it's the digest of the
	// concatenated part digests, suffixed with the part count.
	ETag string

	// Size is the object's size in bytes.
	Size int64

	// LastModified is when the object was last written.
	LastModified time.Time
}

// A PutRequest describes one object upload.
type PutRequest struct {
	Key          string
	Body         io.ReadSeeker
	ContentType  string
	CacheControl string
}

// Store is the subset of remote object store operations that the deployer
// consumes. All keys are relative to the deployment prefix configured on the
// implementation.
type Store interface {
	// List returns every object under the deployment prefix, following
	// continuation pages until the listing is complete.
	List(ctx context.Context) ([]Object, error)

	// Get returns the contents of the object at the given key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads an object with the given content type and caching
	// directive.
	Put(ctx context.Context, req PutRequest) error

	// Delete removes the object at the given key.
	Delete(ctx context.Context, key string) error
}
