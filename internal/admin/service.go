package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"dealflow/internal/checklist"
	"dealflow/internal/document"
	"dealflow/internal/domain"
	"dealflow/internal/objectstore"
	"dealflow/internal/timeline"
	"dealflow/internal/transaction"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/platform/tx"
)

var tracer = otel.Tracer("dealflow/admin")

// Service performs soft deletes with full cascade, previews them, and undoes
// them. Object-storage files are the only state that is hard-deleted; a
// storage failure therefore aborts the whole delete before any row changes.
type Service struct {
	runner     tx.Runner
	txns       transaction.Store
	docs       document.Store
	entries    timeline.Store
	checklists checklist.Store
	files      objectstore.Store
	audit      Store
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	runner tx.Runner,
	txns transaction.Store,
	docs document.Store,
	entries timeline.Store,
	checklists checklist.Store,
	files objectstore.Store,
	audit Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		runner:     runner,
		txns:       txns,
		docs:       docs,
		entries:    entries,
		checklists: checklists,
		files:      files,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// PreviewDeletion reports what Delete would touch. Read-only.
func (s *Service) PreviewDeletion(ctx context.Context, resourceType ResourceType, resourceID string, actor domain.Actor) (*Preview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch resourceType {
	case ResourceTransaction:
		return s.previewTransaction(ctx, resourceID)
	case ResourceDocument:
		return s.previewDocument(ctx, resourceID)
	default:
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "cannot delete resource type %q", resourceType)
	}
}

func (s *Service) previewTransaction(ctx context.Context, id string) (*Preview, error) {
	if _, err := s.txns.Get(ctx, id); err != nil {
		return nil, fromStore(err, "load transaction")
	}
	docs, err := s.docs.ListByTransaction(ctx, id)
	if err != nil {
		return nil, fromStore(err, "list documents")
	}
	entries, err := s.entries.ListByTransaction(ctx, id, false)
	if err != nil {
		return nil, fromStore(err, "list timeline entries")
	}

	p := &Preview{ResourceType: ResourceTransaction, ResourceID: id}
	for _, d := range docs {
		p.Documents++
		p.Cascade = append(p.Cascade, CascadedOp{ResourceType: ResourceDocument, ResourceID: d.ID})
		live := d.LiveVersions()
		p.Versions += len(live)
		for _, v := range live {
			if v.StorageKey != "" {
				p.StorageObjects++
			}
		}
	}
	for _, e := range entries {
		p.TimelineEntries++
		p.Cascade = append(p.Cascade, CascadedOp{ResourceType: ResourceTimelineEntry, ResourceID: e.ID})
	}
	return p, nil
}

func (s *Service) previewDocument(ctx context.Context, id string) (*Preview, error) {
	d, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fromStore(err, "load document")
	}
	p := &Preview{ResourceType: ResourceDocument, ResourceID: id, Documents: 1}
	live := d.LiveVersions()
	p.Versions = len(live)
	for _, v := range live {
		if v.StorageKey != "" {
			p.StorageObjects++
		}
	}
	return p, nil
}

// Delete tombstones the resource and its cascade and writes one DELETE audit
// row. It refuses to run without confirmed. Storage files are hard-deleted
// first; if any removal fails, nothing else happens.
func (s *Service) Delete(ctx context.Context, resourceType ResourceType, resourceID string, actor domain.Actor, confirmed bool) (*AuditRecord, error) {
	ctx, span := tracer.Start(ctx, "admin.delete")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "deletion requires explicit confirmation")
	}
	switch resourceType {
	case ResourceTransaction:
		return s.deleteTransaction(ctx, resourceID, actor)
	case ResourceDocument:
		return s.deleteDocument(ctx, resourceID, actor)
	default:
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "cannot delete resource type %q", resourceType)
	}
}

func (s *Service) deleteTransaction(ctx context.Context, id string, actor domain.Actor) (*AuditRecord, error) {
	t, err := s.txns.Get(ctx, id)
	if err != nil {
		return nil, fromStore(err, "load transaction")
	}
	docs, err := s.docs.ListByTransaction(ctx, id)
	if err != nil {
		return nil, fromStore(err, "list documents")
	}

	lostDocIDs, err := s.purgeFiles(ctx, docs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &AuditRecord{
		ID:           uuid.NewString(),
		Action:       ActionDelete,
		ResourceType: ResourceTransaction,
		ResourceID:   id,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Timestamp:    now,
		Snapshot: Snapshot{
			TransactionID: t.ID,
			ClientName:    t.ClientName,
			BrokerName:    t.BrokerName,
			Side:          string(t.Side),
			Stage:         t.Stage.Name(),
			Status:        string(t.Status),
		},
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		docIDs, err := s.docs.TombstoneByTransaction(ctx, id, now, actor.ID)
		if err != nil {
			return fromStore(err, "tombstone documents")
		}
		for _, docID := range docIDs {
			rec.Cascade = append(rec.Cascade, CascadedOp{ResourceType: ResourceDocument, ResourceID: docID})
		}
		if err := s.docs.MarkFileLost(ctx, lostDocIDs); err != nil {
			return fromStore(err, "mark files lost")
		}
		entryIDs, err := s.entries.TombstoneByTransaction(ctx, id, now, actor.ID)
		if err != nil {
			return fromStore(err, "tombstone timeline entries")
		}
		for _, entryID := range entryIDs {
			rec.Cascade = append(rec.Cascade, CascadedOp{ResourceType: ResourceTimelineEntry, ResourceID: entryID})
		}
		// Checklist rows are derived state; they are removed outright and
		// recomputed after a restore. Manual overrides do not survive.
		if err := s.checklists.DeleteByTransaction(ctx, id); err != nil {
			return fromStore(err, "delete checklist rows")
		}
		if err := s.txns.Tombstone(ctx, id, now, actor.ID); err != nil {
			return fromStore(err, "tombstone transaction")
		}
		if err := s.audit.Append(ctx, rec); err != nil {
			return fromStore(err, "append audit record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "transaction deleted",
		"transaction_id", id,
		"actor_id", actor.ID,
		"cascade_size", len(rec.Cascade),
	)
	return rec, nil
}

func (s *Service) deleteDocument(ctx context.Context, id string, actor domain.Actor) (*AuditRecord, error) {
	d, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fromStore(err, "load document")
	}

	lostDocIDs, err := s.purgeFiles(ctx, []*document.Document{d})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &AuditRecord{
		ID:           uuid.NewString(),
		Action:       ActionDelete,
		ResourceType: ResourceDocument,
		ResourceID:   id,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Timestamp:    now,
		Snapshot: Snapshot{
			TransactionID: d.TransactionID,
			DocumentTitle: d.Title,
			DocumentType:  string(d.Type),
			Stage:         d.Stage.Name(),
		},
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.docs.Tombstone(ctx, id, now, actor.ID); err != nil {
			return fromStore(err, "tombstone document")
		}
		if err := s.docs.MarkFileLost(ctx, lostDocIDs); err != nil {
			return fromStore(err, "mark files lost")
		}
		if err := s.audit.Append(ctx, rec); err != nil {
			return fromStore(err, "append audit record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "document deleted",
		"document_id", id,
		"actor_id", actor.ID,
	)
	return rec, nil
}

// purgeFiles hard-deletes every live version's storage object. Returns the
// ids of documents that had at least one object removed. Any failure aborts
// the caller before rows change; objects already removed stay removed and the
// documents are not yet flagged, which the retry resolves.
func (s *Service) purgeFiles(ctx context.Context, docs []*document.Document) ([]string, error) {
	var lost []string
	for _, d := range docs {
		removed := false
		for _, v := range d.LiveVersions() {
			if v.StorageKey == "" {
				continue
			}
			if err := s.files.Delete(ctx, v.StorageKey); err != nil {
				return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "remove storage object")
			}
			removed = true
		}
		if removed {
			lost = append(lost, d.ID)
		}
	}
	return lost, nil
}

// Restore undoes a prior delete. Documents whose storage files were purged
// come back as metadata only and are listed as non-recoverable.
func (s *Service) Restore(ctx context.Context, resourceType ResourceType, resourceID string, actor domain.Actor) (*RestoreResult, error) {
	ctx, span := tracer.Start(ctx, "admin.restore")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch resourceType {
	case ResourceTransaction:
		return s.restoreTransaction(ctx, resourceID, actor)
	case ResourceDocument:
		return s.restoreDocument(ctx, resourceID, actor)
	default:
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "cannot restore resource type %q", resourceType)
	}
}

func (s *Service) restoreTransaction(ctx context.Context, id string, actor domain.Actor) (*RestoreResult, error) {
	t, err := s.txns.GetIncludingDeleted(ctx, id)
	if err != nil {
		return nil, fromStore(err, "load transaction")
	}
	if t.DeletedAt == nil {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "transaction is not deleted")
	}
	// Only rows stamped by this cascade come back. Resources deleted on
	// their own before the transaction delete keep their tombstone.
	cascadeAt := *t.DeletedAt

	now := s.now().UTC()
	rec := &AuditRecord{
		ID:           uuid.NewString(),
		Action:       ActionRestore,
		ResourceType: ResourceTransaction,
		ResourceID:   id,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Timestamp:    now,
		Snapshot: Snapshot{
			TransactionID: t.ID,
			ClientName:    t.ClientName,
			BrokerName:    t.BrokerName,
			Side:          string(t.Side),
			Stage:         t.Stage.Name(),
			Status:        string(t.Status),
		},
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.txns.Restore(ctx, id); err != nil {
			return fromStore(err, "restore transaction")
		}
		docIDs, err := s.docs.RestoreByTransaction(ctx, id, cascadeAt)
		if err != nil {
			return fromStore(err, "restore documents")
		}
		for _, docID := range docIDs {
			rec.Cascade = append(rec.Cascade, CascadedOp{ResourceType: ResourceDocument, ResourceID: docID})
		}
		entryIDs, err := s.entries.RestoreByTransaction(ctx, id, cascadeAt)
		if err != nil {
			return fromStore(err, "restore timeline entries")
		}
		for _, entryID := range entryIDs {
			rec.Cascade = append(rec.Cascade, CascadedOp{ResourceType: ResourceTimelineEntry, ResourceID: entryID})
		}
		if err := s.audit.Append(ctx, rec); err != nil {
			return fromStore(err, "append audit record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	docs, err := s.docs.ListByTransaction(ctx, id)
	if err != nil {
		return nil, fromStore(err, "list restored documents")
	}
	result := &RestoreResult{
		ResourceType: ResourceTransaction,
		ResourceID:   id,
		Cascade:      rec.Cascade,
	}
	for _, d := range docs {
		if d.FileLost {
			result.NonRecoverable = append(result.NonRecoverable, d.ID)
		}
	}

	s.logger.InfoContext(ctx, "transaction restored",
		"transaction_id", id,
		"actor_id", actor.ID,
		"non_recoverable", len(result.NonRecoverable),
	)
	return result, nil
}

func (s *Service) restoreDocument(ctx context.Context, id string, actor domain.Actor) (*RestoreResult, error) {
	d, err := s.docs.GetIncludingDeleted(ctx, id)
	if err != nil {
		return nil, fromStore(err, "load document")
	}
	if d.DeletedAt == nil {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "document is not deleted")
	}

	now := s.now().UTC()
	rec := &AuditRecord{
		ID:           uuid.NewString(),
		Action:       ActionRestore,
		ResourceType: ResourceDocument,
		ResourceID:   id,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Timestamp:    now,
		Snapshot: Snapshot{
			TransactionID: d.TransactionID,
			DocumentTitle: d.Title,
			DocumentType:  string(d.Type),
			Stage:         d.Stage.Name(),
		},
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.docs.Restore(ctx, id); err != nil {
			return fromStore(err, "restore document")
		}
		if err := s.audit.Append(ctx, rec); err != nil {
			return fromStore(err, "append audit record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{ResourceType: ResourceDocument, ResourceID: id}
	if d.FileLost {
		result.NonRecoverable = append(result.NonRecoverable, d.ID)
	}
	return result, nil
}

// AuditTrail lists audit rows for one resource, newest first.
func (s *Service) AuditTrail(ctx context.Context, resourceType ResourceType, resourceID string, actor domain.Actor) ([]*AuditRecord, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	recs, err := s.audit.ListByResource(ctx, resourceType, resourceID)
	if err != nil {
		return nil, fromStore(err, "list audit records")
	}
	return recs, nil
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return dlerrors.New(dlerrors.CodeForbidden, "admin access required")
	}
	return nil
}

func fromStore(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dlerrors.Wrap(err, dlerrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dlerrors.Wrap(err, dlerrors.CodeConflict, msg)
	default:
		return dlerrors.Wrap(err, dlerrors.CodeInternal, msg)
	}
}
