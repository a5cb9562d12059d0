// Package storage is the durable system of record for per-tenant credential blobs.
//
// Blobs live under a tenant-scoped key namespace, session/<tenantId>/<file>, so a
// tenant's whole credential set can be listed or removed by prefix. Backends are
// expected to be independently consistent; no cross-tenant atomicity is offered.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
)

// KeyRoot is the first segment of every credential key
const KeyRoot = "session"

// ErrNotFound is returned by Get when no blob is stored under the key
var ErrNotFound = errors.ErrNotFound

// Store is a byte blob store keyed by slash separated paths
type Store interface {
	// Put writes data under key, replacing any previous value
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// ListKeys returns every key that starts with prefix, sorted
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a single key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeleteAll removes every key that starts with prefix. Nothing to delete is not an error.
	DeleteAll(ctx context.Context, prefix string) error
}

// TenantPrefix returns the namespace holding all of a tenant's blobs, with a trailing slash
// so "t1" never matches "t10".
func TenantPrefix(tenantID string) string {
	return KeyRoot + "/" + tenantID + "/"
}

// Key builds the key of a single file in the tenant's namespace. name may contain
// forward slashes for nested files.
func Key(tenantID, name string) string {
	return TenantPrefix(tenantID) + strings.TrimPrefix(path.Clean("/"+name), "/")
}

// RelativeName strips the tenant prefix from key. ok is false for keys outside the namespace.
func RelativeName(tenantID, key string) (name string, ok bool) {
	prefix := TenantPrefix(tenantID)
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// Unavailable wraps a backend failure so callers can classify it with ErrStorageUnavailable
func Unavailable(err error, op, key string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(errors.ErrStorageUnavailable, "[%s %s] %v", op, key, err)
}
