package comment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/komentar/service/internal/media"
	"github.com/komentar/service/internal/storage"
)

func TestSubmitEmptyBody(t *testing.T) {
	store := &countingStore{inner: storage.NewMemoryStore()}
	svc := testService(t, store)

	_, err := svc.Submit(context.Background(), Input{Name: "Ana", Comment: "   "})
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}
	if store.calls != 0 {
		t.Errorf("store saw %d calls, want 0 (validation must precede any network use)", store.calls)
	}
}

func TestSubmitWithoutMedia(t *testing.T) {
	store := &countingStore{inner: storage.NewMemoryStore()}
	svc := testService(t, store)

	rec, err := svc.Submit(context.Background(), Input{Name: "Budi", Comment: "Halo!", Rating: 4})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if rec.ID == "" {
		t.Error("expected server-assigned ID")
	}
	if rec.Name != "Budi" || rec.Comment != "Halo!" || rec.Rating != 4 {
		t.Errorf("record = %+v", rec)
	}
	if rec.MediaURL != nil || rec.MediaPath != nil {
		t.Error("media fields must be null without an attachment")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected server-assigned timestamp")
	}

	records, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Errorf("ledger = %+v, want the appended record", records)
	}
}

func TestSubmitDefaultsAuthor(t *testing.T) {
	svc := testService(t, storage.NewMemoryStore())

	rec, err := svc.Submit(context.Background(), Input{Comment: "no name"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Name != DefaultAuthor {
		t.Errorf("name = %q, want %q", rec.Name, DefaultAuthor)
	}
}

func TestSubmitWithMedia(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := testService(t, store)

	rec, err := svc.Submit(context.Background(), Input{
		Comment:   "with photo",
		Photo:     []byte("jpeg bytes"),
		PhotoName: "pic.jpg",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if rec.MediaPath == nil {
		t.Fatal("expected media path")
	}
	if rec.MediaURL == nil {
		t.Fatal("expected media URL")
	}
	if got := *rec.MediaURL; !strings.Contains(got, "raw=1") || strings.Contains(got, "dl=0") {
		t.Errorf("media URL %q not normalized for raw rendering", got)
	}

	// photo object and ledger object both exist
	if store.Len() != 2 {
		t.Errorf("store holds %d objects, want 2", store.Len())
	}
}

func TestSubmitUnresolvedLinkIsNotFatal(t *testing.T) {
	store := &noLinkStore{inner: storage.NewMemoryStore()}
	svc := testService(t, store)

	rec, err := svc.Submit(context.Background(), Input{
		Comment:   "photo without link",
		Photo:     []byte("img"),
		PhotoName: "pic.jpg",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.MediaURL != nil {
		t.Errorf("media URL = %q, want null", *rec.MediaURL)
	}
	if rec.MediaPath == nil {
		t.Error("media path must still be recorded for audit")
	}
}

func TestSubmitUploadFailureAbortsBeforeLedger(t *testing.T) {
	store := &failingPutStore{inner: storage.NewMemoryStore()}
	svc := testService(t, store)

	_, err := svc.Submit(context.Background(), Input{
		Comment:   "doomed",
		Photo:     []byte("img"),
		PhotoName: "pic.jpg",
	})
	if !errors.Is(err, storage.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	records, listErr := svc.List(context.Background())
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(records) != 0 {
		t.Errorf("ledger has %d records after failed upload, want 0", len(records))
	}
}

// testService wires a Service over store with short ledger backoff.
func testService(t *testing.T, store storage.BlobStore) *Service {
	t.Helper()
	uploader := media.NewUploader(store, "komentar-web")
	resolver := media.NewResolver(store)
	ledger := NewLedger(store, testLedgerPath)
	ledger.backoffBase = time.Millisecond
	return NewService(uploader, resolver, ledger)
}

// countingStore counts every store operation.
type countingStore struct {
	inner *storage.MemoryStore
	calls int
}

func (s *countingStore) PutObject(ctx context.Context, path string, data []byte, opts storage.PutOptions) (storage.StorageRef, error) {
	s.calls++
	return s.inner.PutObject(ctx, path, data, opts)
}

func (s *countingStore) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	s.calls++
	return s.inner.GetObject(ctx, path)
}

func (s *countingStore) PutObjectIfMatch(ctx context.Context, path string, data []byte, token string) (string, error) {
	s.calls++
	return s.inner.PutObjectIfMatch(ctx, path, data, token)
}

func (s *countingStore) CreateSharedLink(ctx context.Context, path string) (string, error) {
	s.calls++
	return s.inner.CreateSharedLink(ctx, path)
}

func (s *countingStore) CreateTemporaryLink(ctx context.Context, path string) (string, error) {
	s.calls++
	return s.inner.CreateTemporaryLink(ctx, path)
}

// noLinkStore stores objects but cannot produce any link.
type noLinkStore struct {
	inner *storage.MemoryStore
}

func (s *noLinkStore) PutObject(ctx context.Context, path string, data []byte, opts storage.PutOptions) (storage.StorageRef, error) {
	return s.inner.PutObject(ctx, path, data, opts)
}

func (s *noLinkStore) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	return s.inner.GetObject(ctx, path)
}

func (s *noLinkStore) PutObjectIfMatch(ctx context.Context, path string, data []byte, token string) (string, error) {
	return s.inner.PutObjectIfMatch(ctx, path, data, token)
}

func (s *noLinkStore) CreateSharedLink(context.Context, string) (string, error) {
	return "", fmt.Errorf("sharing disabled: %w", storage.ErrUpstream)
}

func (s *noLinkStore) CreateTemporaryLink(context.Context, string) (string, error) {
	return "", fmt.Errorf("sharing disabled: %w", storage.ErrUpstream)
}

// failingPutStore fails every write but reads fine.
type failingPutStore struct {
	inner *storage.MemoryStore
}

func (s *failingPutStore) PutObject(context.Context, string, []byte, storage.PutOptions) (storage.StorageRef, error) {
	return storage.StorageRef{}, fmt.Errorf("put: %w", storage.ErrUpstream)
}

func (s *failingPutStore) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	return s.inner.GetObject(ctx, path)
}

func (s *failingPutStore) PutObjectIfMatch(context.Context, string, []byte, string) (string, error) {
	return "", fmt.Errorf("put: %w", storage.ErrUpstream)
}

func (s *failingPutStore) CreateSharedLink(ctx context.Context, path string) (string, error) {
	return s.inner.CreateSharedLink(ctx, path)
}

func (s *failingPutStore) CreateTemporaryLink(ctx context.Context, path string) (string, error) {
	return s.inner.CreateTemporaryLink(ctx, path)
}
