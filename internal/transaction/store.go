package transaction

import (
	"context"
	"time"
)

// Store persists transactions and co-broker grants. Normal reads exclude
// tombstoned rows.
type Store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Transaction, error)
	// Update persists mutable fields with an optimistic row-version check;
	// a stale version yields sentinel.ErrConflict.
	Update(ctx context.Context, t *Transaction) error
	// Touch bumps the denormalized last-updated timestamp only.
	Touch(ctx context.Context, id string, ts time.Time) error
	ListByBroker(ctx context.Context, brokerID string) ([]*Transaction, error)
	ListByClient(ctx context.Context, clientID string) ([]*Transaction, error)
	Tombstone(ctx context.Context, id string, deletedAt time.Time, deletedBy string) error
	Restore(ctx context.Context, id string) error
	GrantCoBroker(ctx context.Context, grant CoBrokerGrant) error
	GetCoBrokerGrant(ctx context.Context, transactionID, brokerID string) (*CoBrokerGrant, error)
}
