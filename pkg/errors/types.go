package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ScanError represents a failure to read the local build directory. It's
// fatal, and aborts the run before any remote call is made.
type ScanError struct {
	Path  string
	Cause error
}

func (err ScanError) Error() string {
	return fmt.Sprintf("scan build directory %q: %s", err.Path, err.Cause)
}

// RemoteListError represents a failure to list the objects deployed under the
// target's prefix.
type RemoteListError struct {
	Bucket string
	Prefix string
	Cause  error
}

func (err RemoteListError) Error() string {
	return fmt.Sprintf("list s3://%s/%s: %s", err.Bucket, err.Prefix, err.Cause)
}

// MutationError represents a failed upload or deletion of a single object.
// One failed mutation doesn't abort the others, but the run as a whole is
// reported as failed.
type MutationError struct {
	Op    string
	Key   string
	Cause error
}

func (err MutationError) Error() string {
	return fmt.Sprintf("%s %q: %s", err.Op, err.Key, err.Cause)
}

// ManifestReadError represents a build manifest that couldn't be fetched or
// parsed. The assets it references can't be retained, so any browser still on
// that build may break, but the deploy itself continues.
type ManifestReadError struct {
	Key   string
	Cause error
}

func (err ManifestReadError) Error() string {
	return fmt.Sprintf("read manifest %q: %s", err.Key, err.Cause)
}

// InvalidationError represents a failed cache invalidation request. The
// deployed files are already correct, so it doesn't fail the run; only edge
// caches stay stale until the invalidation is retried or expires.
type InvalidationError struct {
	Distribution string
	Cause        error
}

func (err InvalidationError) Error() string {
	return fmt.Sprintf("invalidate distribution %s: %s", err.Distribution, err.Cause)
}

// PolicyError represents a misconfigured cache or retention rule. It's fatal,
// and aborts the run before any mutation.
type PolicyError struct {
	Rule  string
	Cause error
}

func (err PolicyError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", err.Rule, err.Cause)
}
