package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/domain"
	"dealflow/pkg/dlerrors"
)

// TransactionToucher bumps the denormalized last-updated timestamp on the
// parent transaction. Implemented by the transaction store; a narrow port
// keeps this package from depending on the aggregate.
type TransactionToucher interface {
	Touch(ctx context.Context, transactionID string, ts time.Time) error
}

// Service is the single ingestion point for timeline entries.
type Service struct {
	store   Store
	toucher TransactionToucher
	deduper Deduper
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, toucher TransactionToucher, deduper Deduper, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		toucher: toucher,
		deduper: deduper,
		logger:  logger,
		now:     time.Now,
	}
}

// AddEntry validates the entry type, derives client visibility, appends the
// entry and bumps the parent transaction's last-updated timestamp. It must be
// called inside the caller's transactional boundary so the entry and the
// touch commit together.
func (s *Service) AddEntry(ctx context.Context, transactionID string, actor domain.Actor, t EntryType, note, docType string, snapshot *ContextSnapshot) (*Entry, error) {
	visible, err := Classify(t)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeBadRequest, "unknown timeline entry type")
	}

	// Stage changes skip the dedup window: retried moves are already no-ops
	// at the aggregate (same-stage Advance appends nothing), and a change
	// re-applied after a rollback is a distinct event that must be kept.
	if s.deduper != nil && t != TypeStageChange {
		seen, derr := s.deduper.Seen(ctx, Token(transactionID, t, docType, note, actor.ID))
		if derr != nil {
			// Dedup is an optimization; a broken cache must not block writes.
			s.logger.WarnContext(ctx, "timeline dedup check failed", "error", derr)
		} else if seen {
			s.logger.DebugContext(ctx, "duplicate timeline entry suppressed",
				"transaction_id", transactionID, "type", string(t))
			return nil, nil
		}
	}

	e := &Entry{
		ID:              uuid.NewString(),
		TransactionID:   transactionID,
		Timestamp:       s.now().UTC(),
		ActorID:         actor.ID,
		ActorName:       actor.Name,
		Type:            t,
		Note:            note,
		DocumentType:    docType,
		VisibleToClient: visible,
		Snapshot:        snapshot,
	}
	if err := s.store.Append(ctx, e); err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "append timeline entry")
	}
	if err := s.toucher.Touch(ctx, transactionID, e.Timestamp); err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "touch transaction")
	}
	return e, nil
}

// ListForBroker returns the full timeline of one transaction.
func (s *Service) ListForBroker(ctx context.Context, transactionID string) ([]*Entry, error) {
	return s.store.ListByTransaction(ctx, transactionID, false)
}

// ListForClient returns only client-visible entries.
func (s *Service) ListForClient(ctx context.Context, transactionID string) ([]*Entry, error) {
	return s.store.ListByTransaction(ctx, transactionID, true)
}

// RecentActivity merges entries across transactions, newest first.
func (s *Service) RecentActivity(ctx context.Context, transactionIDs []string, offset, limit int) ([]*Entry, error) {
	return s.store.ListRecent(ctx, transactionIDs, offset, limit)
}
