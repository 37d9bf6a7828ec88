package media

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/komentar/service/internal/storage"
)

// Resolver turns a stored path into a URL a browser can render directly.
type Resolver struct {
	store storage.BlobStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store storage.BlobStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve tries, in order: creating a durable shared link, reusing an
// existing shared link reported by the store's conflict response, and
// requesting a short-lived temporary link. The result is normalized to
// render raw media. An empty string means no link could be resolved; that is
// a valid, non-fatal outcome for the caller.
func (r *Resolver) Resolve(ctx context.Context, ref storage.StorageRef) string {
	link, err := r.store.CreateSharedLink(ctx, ref.Path)
	if err != nil {
		var exists *storage.SharedLinkExistsError
		if errors.As(err, &exists) {
			// the existing link is the one we wanted
			link = exists.URL
		} else {
			slog.Debug("shared link creation failed, falling back to temporary link",
				"path", ref.Path, "err", err)
			link, err = r.store.CreateTemporaryLink(ctx, ref.Path)
			if err != nil {
				slog.Info("media link unresolved, storing comment without media URL",
					"path", ref.Path, "err", err)
				return ""
			}
		}
	}
	return NormalizeLink(link)
}

// NormalizeLink rewrites a share link so it serves raw bytes instead of an
// HTML viewer page: a dl=0 viewer flag becomes raw=1, links already
// requesting direct rendering (dl=1 or raw=1) pass through unchanged, and a
// link with no recognizable flag gains raw=1.
func NormalizeLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	q := u.Query()
	switch {
	case q.Get("dl") == "0":
		q.Del("dl")
		q.Set("raw", "1")
	case q.Get("dl") == "1", q.Get("raw") == "1":
		return link
	default:
		q.Set("raw", "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
