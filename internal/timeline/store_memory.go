package timeline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and single-node dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry // keyed by transaction id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]*Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.TransactionID] = append(s.entries[e.TransactionID], &cp)
	return nil
}

func (s *MemoryStore) ListByTransaction(_ context.Context, transactionID string, visibleOnly bool) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries[transactionID] {
		if e.DeletedAt != nil {
			continue
		}
		if visibleOnly && !e.VisibleToClient {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, transactionIDs []string, offset, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var merged []*Entry
	for _, id := range transactionIDs {
		for _, e := range s.entries[id] {
			if e.DeletedAt != nil {
				continue
			}
			cp := *e
			merged = append(merged, &cp)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp.After(merged[j].Timestamp) })
	if offset >= len(merged) {
		return nil, nil
	}
	merged = merged[offset:]
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *MemoryStore) TombstoneByTransaction(_ context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.entries[transactionID] {
		if e.DeletedAt != nil {
			continue
		}
		at := deletedAt
		e.DeletedAt = &at
		e.DeletedBy = deletedBy
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *MemoryStore) RestoreByTransaction(_ context.Context, transactionID string, deletedAt time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.entries[transactionID] {
		if e.DeletedAt == nil || !e.DeletedAt.Equal(deletedAt) {
			continue
		}
		e.DeletedAt = nil
		e.DeletedBy = ""
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListByTransactionIncludingDeleted(_ context.Context, transactionID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries[transactionID]))
	for _, e := range s.entries[transactionID] {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
