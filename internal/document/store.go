package document

import (
	"context"
	"time"
)

// Store persists documents and their version history. Normal reads exclude
// tombstoned rows; IncludingDeleted variants exist for admin review only.
type Store interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	GetIncludingDeleted(ctx context.Context, id string) (*Document, error)
	// Update persists mutable fields with an optimistic row-version check;
	// a stale version yields sentinel.ErrConflict.
	Update(ctx context.Context, d *Document) error
	AddVersion(ctx context.Context, v *Version) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*Document, error)
	// FindByTransactionStageType locates the document backing a checklist
	// item. Returns sentinel.ErrNotFound when absent.
	FindByTransactionStageType(ctx context.Context, transactionID, stageName string, docType Type) (*Document, error)
	// Cascade operations for the soft-delete subsystem.
	TombstoneByTransaction(ctx context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error)
	// RestoreByTransaction clears tombstones stamped with the given cascade
	// deletion time. Documents deleted individually beforehand keep their
	// own tombstone.
	RestoreByTransaction(ctx context.Context, transactionID string, deletedAt time.Time) ([]string, error)
	Tombstone(ctx context.Context, id string, deletedAt time.Time, deletedBy string) error
	Restore(ctx context.Context, id string) error
	// MarkFileLost flags documents whose storage objects were hard-deleted.
	MarkFileLost(ctx context.Context, ids []string) error
	ListByTransactionIncludingDeleted(ctx context.Context, transactionID string) ([]*Document, error)
}
