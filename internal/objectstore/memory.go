package objectstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dealflow/pkg/platform/sentinel"
)

// MemoryStore holds object bytes in process. Tests use it to observe hard
// deletes and to fail writes on demand.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailPuts / FailDeletes force errors to exercise abort paths.
	FailPuts    bool
	FailDeletes bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key, filename, contentType string, size int64, r io.Reader) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts {
		return Handle{}, fmt.Errorf("put object %s: %w", key, sentinel.ErrUnavailable)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Handle{}, err
	}
	s.objects[key] = data
	return Handle{Key: key, Filename: filename, ContentType: contentType, Size: size}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeletes {
		return fmt.Errorf("remove object %s: %w", key, sentinel.ErrUnavailable)
	}
	delete(s.objects, key)
	return nil
}

// Has reports whether an object is still stored.
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
