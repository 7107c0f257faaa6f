package checklist

import (
	"context"
	"sync"
)

type stateKey struct {
	transactionID string
	stageName     string
	itemKey       string
}

// MemoryStore is the in-process Store used by tests and single-node dev runs.
// The map key enforces tuple uniqueness the way the table constraint does.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[stateKey]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[stateKey]*State)}
}

func (s *MemoryStore) Get(_ context.Context, transactionID, stageName, itemKey string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[stateKey{transactionID, stageName, itemKey}]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.rows[stateKey{st.TransactionID, st.StageName, st.ItemKey}] = &cp
	return nil
}

func (s *MemoryStore) ListByStage(_ context.Context, transactionID, stageName string) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*State
	for k, row := range s.rows {
		if k.transactionID == transactionID && k.stageName == stageName {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteByTransaction(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.rows {
		if k.transactionID == transactionID {
			delete(s.rows, k)
		}
	}
	return nil
}
