package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dealflow/pkg/platform/sentinel"
)

type grantKey struct {
	transactionID string
	brokerID      string
}

// MemoryStore is the in-process Store used by tests and single-node dev runs.
type MemoryStore struct {
	mu     sync.RWMutex
	txns   map[string]*Transaction
	grants map[grantKey]*CoBrokerGrant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txns:   make(map[string]*Transaction),
		grants: make(map[grantKey]*CoBrokerGrant),
	}
}

func copyTxn(t *Transaction) *Transaction {
	cp := *t
	return &cp
}

func (s *MemoryStore) Create(_ context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.ID]; ok {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
	}
	t.RowVersion = 1
	s.txns[t.ID] = copyTxn(t)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok || t.DeletedAt != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return copyTxn(t), nil
}

func (s *MemoryStore) GetIncludingDeleted(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return copyTxn(t), nil
}

func (s *MemoryStore) Update(_ context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[t.ID]
	if !ok || cur.DeletedAt != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrNotFound)
	}
	if cur.RowVersion != t.RowVersion {
		return fmt.Errorf("transaction %s: %w", t.ID, sentinel.ErrConflict)
	}
	t.RowVersion++
	s.txns[t.ID] = copyTxn(t)
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	t.LastUpdatedAt = ts
	return nil
}

func (s *MemoryStore) ListByBroker(_ context.Context, brokerID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, t := range s.txns {
		if t.BrokerID == brokerID && t.DeletedAt == nil {
			out = append(out, copyTxn(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByClient(_ context.Context, clientID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, t := range s.txns {
		if t.ClientID == clientID && t.DeletedAt == nil {
			out = append(out, copyTxn(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) Tombstone(_ context.Context, id string, deletedAt time.Time, deletedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok || t.DeletedAt != nil {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	at := deletedAt
	t.DeletedAt = &at
	t.DeletedBy = deletedBy
	return nil
}

func (s *MemoryStore) Restore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	t.DeletedAt = nil
	t.DeletedBy = ""
	return nil
}

func (s *MemoryStore) GrantCoBroker(_ context.Context, grant CoBrokerGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := grant
	cp.Permissions = append([]Permission(nil), grant.Permissions...)
	s.grants[grantKey{grant.TransactionID, grant.BrokerID}] = &cp
	return nil
}

func (s *MemoryStore) GetCoBrokerGrant(_ context.Context, transactionID, brokerID string) (*CoBrokerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey{transactionID, brokerID}]
	if !ok {
		return nil, fmt.Errorf("co-broker grant: %w", sentinel.ErrNotFound)
	}
	cp := *g
	cp.Permissions = append([]Permission(nil), g.Permissions...)
	return &cp, nil
}
