package media

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/komentar/service/internal/storage"
)

func TestUploadPathShape(t *testing.T) {
	store := storage.NewMemoryStore()
	u := NewUploader(store, "komentar-web")
	u.now = func() time.Time { return time.Unix(0, 1700000000000000000) }

	ref, err := u.Upload(context.Background(), []byte("img"), "My Photo.jpg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	want := "komentar-web/1700000000000000000_My-Photo.jpg"
	if ref.Path != want {
		t.Errorf("path = %q, want %q", ref.Path, want)
	}
}

func TestUploadEmptyPayload(t *testing.T) {
	u := NewUploader(storage.NewMemoryStore(), "komentar-web")

	if _, err := u.Upload(context.Background(), nil, "a.jpg"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestUploadCollisionRenames(t *testing.T) {
	store := storage.NewMemoryStore()
	u := NewUploader(store, "komentar-web")
	u.now = func() time.Time { return time.Unix(0, 42) } // frozen clock forces collisions

	first, err := u.Upload(context.Background(), []byte("one"), "pic.jpg")
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := u.Upload(context.Background(), []byte("two"), "pic.jpg")
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first.Path == second.Path {
		t.Fatalf("both uploads landed at %q", first.Path)
	}

	data, _, err := store.GetObject(context.Background(), first.Path)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("first upload = %q, want %q (must never be clobbered)", data, "one")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"My Summer Photo.jpg", "My-Summer-Photo.jpg"},
		{"weird/..\\name!!.png", "weird..name.png"},
		{"   ", "file"},
		{"", "file"},
		{"héllo wörld.gif", "hllo-wrld.gif"},
		{"...---", "file"},
		{strings.Repeat("a", 100) + ".jpg", strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeNameSafeAlphabet(t *testing.T) {
	for _, in := range []string{"a b\tc\nd", "x?y&z=1.png", "☃☃☃.jpg", "../../etc/passwd"} {
		out := SanitizeName(in)
		if out == "" {
			t.Errorf("SanitizeName(%q) produced empty name", in)
			continue
		}
		for _, r := range out {
			safe := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
				r == '.' || r == '_' || r == '-'
			if !safe {
				t.Errorf("SanitizeName(%q) emitted unsafe rune %q in %q", in, r, out)
			}
		}
	}
}

func TestUploadPropagatesStoreError(t *testing.T) {
	u := NewUploader(failingStore{}, "komentar-web")

	_, err := u.Upload(context.Background(), []byte("img"), "pic.jpg")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) PutObject(context.Context, string, []byte, storage.PutOptions) (storage.StorageRef, error) {
	return storage.StorageRef{}, fmt.Errorf("put: %w", storage.ErrUpstream)
}

func (failingStore) GetObject(context.Context, string) ([]byte, string, error) {
	return nil, "", fmt.Errorf("get: %w", storage.ErrUpstream)
}

func (failingStore) CreateSharedLink(context.Context, string) (string, error) {
	return "", fmt.Errorf("shared link: %w", storage.ErrUpstream)
}

func (failingStore) CreateTemporaryLink(context.Context, string) (string, error) {
	return "", fmt.Errorf("temporary link: %w", storage.ErrUpstream)
}
