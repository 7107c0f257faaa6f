package timeline

import (
	"context"
	"time"
)

// Store persists timeline entries. Append-only: there is no update path, only
// tombstoning driven by the soft-delete subsystem.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// ListByTransaction returns entries for one transaction ordered by
	// timestamp ascending, excluding tombstoned rows. With visibleOnly set
	// it is the client-filtered read path.
	ListByTransaction(ctx context.Context, transactionID string, visibleOnly bool) ([]*Entry, error)
	// ListRecent merges entries across the given transaction ids, sorted by
	// timestamp descending. offset/limit paginate; limit <= 0 means no cap.
	ListRecent(ctx context.Context, transactionIDs []string, offset, limit int) ([]*Entry, error)
	// TombstoneByTransaction marks all live entries of a transaction deleted
	// and returns the affected entry ids.
	TombstoneByTransaction(ctx context.Context, transactionID string, deletedAt time.Time, deletedBy string) ([]string, error)
	// RestoreByTransaction clears tombstones set by a prior cascade. Only
	// entries stamped with that cascade's deletion time are touched, so an
	// entry deleted on its own stays deleted.
	RestoreByTransaction(ctx context.Context, transactionID string, deletedAt time.Time) ([]string, error)
	// ListByTransactionIncludingDeleted is the admin review path.
	ListByTransactionIncludingDeleted(ctx context.Context, transactionID string) ([]*Entry, error)
}
