// Package media stores submitted attachments in the object store and
// resolves browser-renderable links for them.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/komentar/service/internal/storage"
)

// maxNameLen caps the sanitized portion of an upload path. Anything longer is
// user noise; the timestamp prefix keeps paths unique regardless.
const maxNameLen = 64

// Uploader stores attachment bytes under a collision-resistant path.
type Uploader struct {
	store  storage.BlobStore
	prefix string

	// Overridable for testing.
	now func() time.Time
}

// NewUploader creates an Uploader writing under the given key prefix.
func NewUploader(store storage.BlobStore, prefix string) *Uploader {
	return &Uploader{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// Upload writes data to the store under a timestamped, sanitized path.
// The write never overwrites existing content: a colliding path is renamed
// by the store instead.
func (u *Uploader) Upload(ctx context.Context, data []byte, originalName string) (storage.StorageRef, error) {
	if len(data) == 0 {
		return storage.StorageRef{}, fmt.Errorf("empty upload payload")
	}

	path := fmt.Sprintf("%s/%d_%s", u.prefix, u.now().UnixNano(), SanitizeName(originalName))
	ref, err := u.store.PutObject(ctx, path, data, storage.PutOptions{Autorename: true})
	if err != nil {
		return storage.StorageRef{}, fmt.Errorf("upload media: %w", err)
	}
	return ref, nil
}

// SanitizeName reduces a user-supplied filename to a safe object-key
// fragment: whitespace collapses to "-", anything outside [A-Za-z0-9._-] is
// dropped, and the result is capped and never empty.
func SanitizeName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastDash = false
		}
	}

	out := strings.Trim(b.String(), "-.")
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" {
		return "file"
	}
	return out
}
