package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dealflow/pkg/platform/sentinel"
)

// MemoryStore is the in-process Store used by tests and single-node dev runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func copyDoc(d *Document) *Document {
	cp := *d
	cp.Versions = append([]Version(nil), d.Versions...)
	return &cp
}

func (s *MemoryStore) Create(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; ok {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrConflict)
	}
	d.RowVersion = 1
	s.docs[d.ID] = copyDoc(d)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok || d.DeletedAt != nil {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return copyDoc(d), nil
}

func (s *MemoryStore) GetIncludingDeleted(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return copyDoc(d), nil
}

func (s *MemoryStore) Update(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[d.ID]
	if !ok {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrNotFound)
	}
	if cur.RowVersion != d.RowVersion {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrConflict)
	}
	d.RowVersion++
	d.UpdatedAt = time.Now().UTC()
	stored := copyDoc(d)
	stored.Versions = cur.Versions
	s.docs[d.ID] = stored
	d.Versions = append([]Version(nil), cur.Versions...)
	return nil
}

func (s *MemoryStore) AddVersion(_ context.Context, v *Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[v.DocumentID]
	if !ok {
		return fmt.Errorf("document %s: %w", v.DocumentID, sentinel.ErrNotFound)
	}
	d.Versions = append(d.Versions, *v)
	return nil
}

func (s *MemoryStore) ListByTransaction(_ context.Context, transactionID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, d := range s.docs {
		if d.TransactionID == transactionID && d.DeletedAt == nil {
			out = append(out, copyDoc(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByTransactionStageType(_ context.Context, transactionID, stageName string, docType Type) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.TransactionID == transactionID && d.DeletedAt == nil &&
			d.Stage != nil && d.Stage.Name() == stageName && d.Type == docType {
			return copyDoc(d), nil
		}
	}
	return nil, fmt.Errorf("document for %s/%s/%s: %w", transactionID, stageName, docType, sentinel.ErrNotFound)
}

func (s *MemoryStore) TombstoneByTransaction(_ context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, d := range s.docs {
		if d.TransactionID != transactionID || d.DeletedAt != nil {
			continue
		}
		at := deletedAt
		d.DeletedAt = &at
		d.DeletedBy = deletedBy
		for i := range d.Versions {
			if d.Versions[i].DeletedAt == nil {
				d.Versions[i].DeletedAt = &at
				d.Versions[i].DeletedBy = deletedBy
			}
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *MemoryStore) RestoreByTransaction(_ context.Context, transactionID string, deletedAt time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, d := range s.docs {
		if d.TransactionID != transactionID || d.DeletedAt == nil || !d.DeletedAt.Equal(deletedAt) {
			continue
		}
		d.DeletedAt = nil
		d.DeletedBy = ""
		for i := range d.Versions {
			if d.Versions[i].DeletedAt != nil && d.Versions[i].DeletedAt.Equal(deletedAt) {
				d.Versions[i].DeletedAt = nil
				d.Versions[i].DeletedBy = ""
			}
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *MemoryStore) Tombstone(_ context.Context, id string, deletedAt time.Time, deletedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.DeletedAt != nil {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	at := deletedAt
	d.DeletedAt = &at
	d.DeletedBy = deletedBy
	for i := range d.Versions {
		if d.Versions[i].DeletedAt == nil {
			d.Versions[i].DeletedAt = &at
			d.Versions[i].DeletedBy = deletedBy
		}
	}
	return nil
}

func (s *MemoryStore) Restore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	d.DeletedAt = nil
	d.DeletedBy = ""
	for i := range d.Versions {
		d.Versions[i].DeletedAt = nil
		d.Versions[i].DeletedBy = ""
	}
	return nil
}

func (s *MemoryStore) MarkFileLost(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			d.FileLost = true
		}
	}
	return nil
}

func (s *MemoryStore) ListByTransactionIncludingDeleted(_ context.Context, transactionID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, d := range s.docs {
		if d.TransactionID == transactionID {
			out = append(out, copyDoc(d))
		}
	}
	return out, nil
}
