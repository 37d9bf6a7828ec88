// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider, the Dropbox
// implementation talks to the Dropbox HTTP API, and the memory implementation
// backs development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no object exists at the requested path.
var ErrNotFound = errors.New("object not found")

// ErrVersionConflict is returned by conditional writes when the object was
// modified since the expected version token was read.
var ErrVersionConflict = errors.New("object version conflict")

// ErrUpstream is returned when the store itself is unreachable or failing.
var ErrUpstream = errors.New("object store unavailable")

// SharedLinkExistsError reports that a shared link already exists for a path.
// It carries the existing link so callers can reuse it.
type SharedLinkExistsError struct {
	URL string
}

func (e *SharedLinkExistsError) Error() string {
	return fmt.Sprintf("shared link already exists: %s", e.URL)
}

// StorageRef identifies a stored object within the store's namespace. The
// path may differ from the one requested when the store renamed on collision.
type StorageRef struct {
	Path string
}

// PutOptions controls write behavior for PutObject.
type PutOptions struct {
	// Overwrite replaces any existing object at the path.
	Overwrite bool
	// Autorename stores under a derived name instead of failing when the
	// path is taken. Never combined with Overwrite.
	Autorename bool
}

// BlobStore is the interface for reading and writing objects and resolving
// browser-accessible links to them.
type BlobStore interface {
	// PutObject writes data under path. The returned ref carries the final
	// path, which differs from the requested one after an autorename.
	PutObject(ctx context.Context, path string, data []byte, opts PutOptions) (StorageRef, error)
	// GetObject returns the object's bytes and its current version token.
	// Returns ErrNotFound when nothing exists at path.
	GetObject(ctx context.Context, path string) (data []byte, versionToken string, err error)
	// CreateSharedLink requests a durable public link for path. When one
	// already exists the error is a *SharedLinkExistsError carrying it.
	CreateSharedLink(ctx context.Context, path string) (string, error)
	// CreateTemporaryLink requests a short-lived public link for path.
	CreateTemporaryLink(ctx context.Context, path string) (string, error)
}

// ConditionalWriter is the optional conditional-write capability of a store.
// Stores without it leave concurrent read-modify-write cycles racy; callers
// must detect the absence and warn rather than assume safety.
type ConditionalWriter interface {
	// PutObjectIfMatch replaces the object at path only while its version
	// token still equals expectedToken. An empty expectedToken requires
	// that the object does not exist yet. Returns the new token on
	// success and ErrVersionConflict when the precondition failed.
	PutObjectIfMatch(ctx context.Context, path string, data []byte, expectedToken string) (string, error)
}
