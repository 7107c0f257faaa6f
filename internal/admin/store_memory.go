package admin

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process audit log used by tests and by deployments
// without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []*AuditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, copyRecord(rec))
	return nil
}

func (s *MemoryStore) ListByResource(_ context.Context, resourceType ResourceType, resourceID string) ([]*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AuditRecord
	for _, r := range s.recs {
		if r.ResourceType == resourceType && r.ResourceID == resourceID {
			out = append(out, copyRecord(r))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, copyRecord(r))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(recs []*AuditRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}

func copyRecord(rec *AuditRecord) *AuditRecord {
	cp := *rec
	cp.Cascade = append([]CascadedOp(nil), rec.Cascade...)
	return &cp
}
