package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore implements BlobStore entirely in memory. It backs local
// development without credentials and doubles as the simulated store in
// tests. Conditional writes are fully supported.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	nextRev int64
}

type memObject struct {
	data  []byte
	token string
}

var _ BlobStore = (*MemoryStore)(nil)
var _ ConditionalWriter = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// PutObject stores data under path, renaming on collision when requested.
func (s *MemoryStore) PutObject(_ context.Context, path string, data []byte, opts PutOptions) (StorageRef, error) {
	key := strings.TrimPrefix(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !opts.Overwrite {
		if _, exists := s.objects[key]; exists {
			if !opts.Autorename {
				return StorageRef{}, fmt.Errorf("put object %q: %w", key, ErrVersionConflict)
			}
			key = s.renameLocked(key)
		}
	}

	s.objects[key] = memObject{data: cloneBytes(data), token: s.newTokenLocked()}
	return StorageRef{Path: key}, nil
}

// GetObject returns a copy of the stored bytes and the current version token.
func (s *MemoryStore) GetObject(_ context.Context, path string) ([]byte, string, error) {
	key := strings.TrimPrefix(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("get object %q: %w", key, ErrNotFound)
	}
	return cloneBytes(obj.data), obj.token, nil
}

// PutObjectIfMatch replaces the object only while its token still equals
// expectedToken; an empty token requires that the object does not exist.
func (s *MemoryStore) PutObjectIfMatch(_ context.Context, path string, data []byte, expectedToken string) (string, error) {
	key := strings.TrimPrefix(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[key]
	if expectedToken == "" {
		if exists {
			return "", fmt.Errorf("conditional put %q: %w", key, ErrVersionConflict)
		}
	} else if !exists || obj.token != expectedToken {
		return "", fmt.Errorf("conditional put %q: %w", key, ErrVersionConflict)
	}

	token := s.newTokenLocked()
	s.objects[key] = memObject{data: cloneBytes(data), token: token}
	return token, nil
}

// CreateSharedLink returns a stable pseudo-URL. It carries the dl=0 viewer
// flag the way real share links do, so link normalization stays exercised in
// development.
func (s *MemoryStore) CreateSharedLink(_ context.Context, path string) (string, error) {
	return "memory://share/" + strings.TrimPrefix(path, "/") + "?dl=0", nil
}

// CreateTemporaryLink returns a pseudo-URL distinct from the shared form.
func (s *MemoryStore) CreateTemporaryLink(_ context.Context, path string) (string, error) {
	return "memory://tmp/" + strings.TrimPrefix(path, "/"), nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemoryStore) newTokenLocked() string {
	s.nextRev++
	return fmt.Sprintf("rev-%d", s.nextRev)
}

// renameLocked finds the first free numbered variant of key.
func (s *MemoryStore) renameLocked(key string) string {
	for n := 1; ; n++ {
		candidate := renameCandidate(key, n)
		if _, exists := s.objects[candidate]; !exists {
			return candidate
		}
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
