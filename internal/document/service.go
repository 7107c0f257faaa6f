package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"dealflow/internal/domain"
	"dealflow/internal/notify"
	"dealflow/internal/objectstore"
	"dealflow/internal/stage"
	"dealflow/internal/timeline"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/platform/tx"
)

var tracer = otel.Tracer("dealflow/document")

// TransactionRef is the slice of the transaction aggregate this package needs
// for authorization and timeline snapshots.
type TransactionRef struct {
	ID         string
	ClientID   string
	BrokerID   string
	ClientName string
	BrokerName string
	Side       stage.Side
	Stage      stage.Stage
}

// TransactionReader is the narrow port onto the transaction aggregate.
type TransactionReader interface {
	GetRef(ctx context.Context, transactionID string) (*TransactionRef, error)
	// BrokerCanEdit covers the owning broker and co-brokers with an edit grant.
	BrokerCanEdit(ctx context.Context, transactionID, brokerID string) (bool, error)
}

// ChecklistRecomputer re-derives auto-checked state after a review so the
// persisted checklist never drifts from document reality.
type ChecklistRecomputer interface {
	Recompute(ctx context.Context, transactionID string, st stage.Stage) error
}

// Upload carries one file to attach as a new version.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service owns the document lifecycle state machine.
type Service struct {
	runner       tx.Runner
	store        Store
	transactions TransactionReader
	checklist    ChecklistRecomputer
	timeline     *timeline.Service
	files        objectstore.Store
	notifier     notify.Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(
	runner tx.Runner,
	store Store,
	transactions TransactionReader,
	checklist ChecklistRecomputer,
	tl *timeline.Service,
	files objectstore.Store,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		runner:       runner,
		store:        store,
		transactions: transactions,
		checklist:    checklist,
		timeline:     tl,
		files:        files,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateParams describes a new document request or upload.
type CreateParams struct {
	TransactionID string
	Type          Type
	Title         string
	Flow          Flow
	ExpectedFrom  Party
	StageName     string
	DueDate       *time.Time
	// AsDraft keeps a REQUEST-flow document in DRAFT until an explicit Send.
	AsDraft bool
}

// Create opens a new document on a transaction. REQUEST-flow documents start
// at REQUESTED (or DRAFT when created as a draft); UPLOAD-flow documents start
// at DRAFT and reach the client only via Share.
func (s *Service) Create(ctx context.Context, actor domain.Actor, p CreateParams) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.create")
	defer span.End()

	ref, err := s.requireBroker(ctx, p.TransactionID, actor)
	if err != nil {
		return nil, err
	}
	if p.Flow != FlowRequest && p.Flow != FlowUpload {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "unknown document flow %q", p.Flow)
	}
	st, err := stage.ParseForSide(ref.Side, p.StageName)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeBadRequest, "invalid stage for document")
	}

	now := s.now().UTC()
	d := &Document{
		ID:            uuid.NewString(),
		TransactionID: ref.ID,
		ClientID:      ref.ClientID,
		Side:          ref.Side,
		Type:          p.Type,
		Title:         p.Title,
		Flow:          p.Flow,
		ExpectedFrom:  p.ExpectedFrom,
		Stage:         st,
		DueDate:       p.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch {
	case p.Flow == FlowRequest && p.AsDraft:
		d.Status = StatusDraft
	case p.Flow == FlowRequest:
		d.Status = StatusRequested
		d.VisibleToClient = true
	default:
		d.Status = StatusDraft
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, d); err != nil {
			return fromStore(err, "create document")
		}
		if d.Status == StatusRequested {
			if _, err := s.timeline.AddEntry(ctx, ref.ID, actor, timeline.TypeDocumentRequested,
				d.Title, string(d.Type), timeline.SnapshotOf(ref.ClientName, ref.BrokerName, ref.Stage)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.Status == StatusRequested {
		notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
			Kind:          notify.KindDocumentRequested,
			RecipientID:   ref.ClientID,
			TransactionID: ref.ID,
			Subject:       "Document requested: " + d.Title,
		})
	}
	return d, nil
}

// Send moves a drafted REQUEST-flow document to REQUESTED and notifies the
// client.
func (s *Service) Send(ctx context.Context, actor domain.Actor, documentID string) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.send")
	defer span.End()

	var (
		d   *Document
		ref *TransactionRef
	)
	err := s.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		d, ref, err = s.load(ctx, documentID)
		if err != nil {
			return err
		}
		if _, err := s.requireBroker(ctx, ref.ID, actor); err != nil {
			return err
		}
		if d.Flow != FlowRequest {
			return dlerrors.New(dlerrors.CodeBadRequest, "send applies to request-flow documents only")
		}
		if err := s.transition(d, StatusRequested); err != nil {
			return err
		}
		d.VisibleToClient = true
		if err := s.store.Update(ctx, d); err != nil {
			return fromStore(err, "update document")
		}
		_, err = s.timeline.AddEntry(ctx, ref.ID, actor, timeline.TypeDocumentRequested,
			d.Title, string(d.Type), timeline.SnapshotOf(ref.ClientName, ref.BrokerName, ref.Stage))
		return err
	})
	if err != nil {
		return nil, err
	}

	notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
		Kind:          notify.KindDocumentRequested,
		RecipientID:   ref.ClientID,
		TransactionID: ref.ID,
		Subject:       "Document requested: " + d.Title,
	})
	return d, nil
}

// Submit attaches a new version and moves the document to SUBMITTED. Allowed
// from REQUESTED and NEEDS_REVISION; the uploader is the transaction's client
// or its broker, gated by flow.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, documentID string, up Upload) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.submit")
	defer span.End()

	d, ref, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if d.Flow != FlowRequest {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "submit applies to request-flow documents only")
	}
	if err := s.authorizeUploader(ctx, ref, actor); err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, StatusSubmitted) {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest,
			"document in status %s does not accept a submission", d.Status)
	}

	// Object storage is written before the database transaction; a failed
	// commit leaves an orphan object, cleaned up best-effort below.
	key := fmt.Sprintf("%s/%s/%s", ref.ID, d.ID, uuid.NewString())
	handle, err := s.files.Put(ctx, key, up.Filename, up.ContentType, up.Size, up.Body)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "store file")
	}

	version := &Version{
		ID:           uuid.NewString(),
		DocumentID:   d.ID,
		UploadedAt:   s.now().UTC(),
		UploaderType: actor.Type,
		UploaderID:   actor.ID,
		UploaderName: actor.Name,
		StorageKey:   handle.Key,
		Filename:     handle.Filename,
		ContentType:  handle.ContentType,
		Size:         handle.Size,
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		// Re-read inside the boundary so the row-version check races fairly.
		cur, _, err := s.load(ctx, documentID)
		if err != nil {
			return err
		}
		if err := s.transition(cur, StatusSubmitted); err != nil {
			return err
		}
		if err := s.store.Update(ctx, cur); err != nil {
			return fromStore(err, "update document")
		}
		if err := s.store.AddVersion(ctx, version); err != nil {
			return fromStore(err, "add version")
		}
		d = cur
		_, err = s.timeline.AddEntry(ctx, ref.ID, actor, timeline.TypeDocumentSubmitted,
			fmt.Sprintf("%s (%s)", d.Title, handle.Filename), string(d.Type),
			timeline.SnapshotOf(ref.ClientName, ref.BrokerName, ref.Stage))
		return err
	})
	if err != nil {
		if derr := s.files.Delete(ctx, handle.Key); derr != nil {
			s.logger.WarnContext(ctx, "orphan file cleanup failed", "key", handle.Key, "error", derr)
		}
		return nil, err
	}
	d.Versions = append(d.Versions, *version)

	notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
		Kind:          notify.KindDocumentSubmitted,
		RecipientID:   ref.BrokerID,
		TransactionID: ref.ID,
		Subject:       "Document submitted: " + d.Title,
	})
	return d, nil
}

// ReviewDecision is the broker's terminal review outcome.
type ReviewDecision string

const (
	DecisionApprove       ReviewDecision = "APPROVED"
	DecisionNeedsRevision ReviewDecision = "NEEDS_REVISION"
)

// Review resolves a SUBMITTED document to APPROVED or NEEDS_REVISION and
// reconciles the stage checklist in the same transaction.
func (s *Service) Review(ctx context.Context, actor domain.Actor, documentID string, decision ReviewDecision, comments string) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.review")
	defer span.End()

	var target Status
	switch decision {
	case DecisionApprove:
		target = StatusApproved
	case DecisionNeedsRevision:
		target = StatusNeedsRevision
	default:
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "invalid review decision %q", decision)
	}

	var (
		d   *Document
		ref *TransactionRef
	)
	err := s.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		d, ref, err = s.load(ctx, documentID)
		if err != nil {
			return err
		}
		if _, err := s.requireBroker(ctx, ref.ID, actor); err != nil {
			return err
		}
		if target == StatusApproved && len(d.LiveVersions()) == 0 {
			return dlerrors.New(dlerrors.CodeBadRequest, "cannot approve a document without a version")
		}
		if err := s.transition(d, target); err != nil {
			return err
		}
		if err := s.store.Update(ctx, d); err != nil {
			return fromStore(err, "update document")
		}

		entryType := timeline.TypeDocumentApproved
		if target == StatusNeedsRevision {
			entryType = timeline.TypeDocumentNeedsRevision
		}
		if _, err := s.timeline.AddEntry(ctx, ref.ID, actor, entryType,
			reviewNote(d.Title, comments), string(d.Type),
			timeline.SnapshotOf(ref.ClientName, ref.BrokerName, ref.Stage)); err != nil {
			return err
		}
		return s.checklist.Recompute(ctx, ref.ID, d.Stage)
	})
	if err != nil {
		return nil, err
	}

	notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
		Kind:          notify.KindDocumentReviewed,
		RecipientID:   ref.ClientID,
		TransactionID: ref.ID,
		Subject:       fmt.Sprintf("Document %s: %s", decision, d.Title),
		Body:          comments,
	})
	return d, nil
}

// UploadFile attaches a version to an UPLOAD-flow document while it is still
// a draft, without changing status.
func (s *Service) UploadFile(ctx context.Context, actor domain.Actor, documentID string, up Upload) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.upload_file")
	defer span.End()

	d, ref, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireBroker(ctx, ref.ID, actor); err != nil {
		return nil, err
	}
	if d.Flow != FlowUpload {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "upload applies to upload-flow documents only")
	}
	if d.Status != StatusDraft {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "cannot attach a file in status %s", d.Status)
	}

	key := fmt.Sprintf("%s/%s/%s", ref.ID, d.ID, uuid.NewString())
	handle, err := s.files.Put(ctx, key, up.Filename, up.ContentType, up.Size, up.Body)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "store file")
	}
	version := &Version{
		ID:           uuid.NewString(),
		DocumentID:   d.ID,
		UploadedAt:   s.now().UTC(),
		UploaderType: actor.Type,
		UploaderID:   actor.ID,
		UploaderName: actor.Name,
		StorageKey:   handle.Key,
		Filename:     handle.Filename,
		ContentType:  handle.ContentType,
		Size:         handle.Size,
	}
	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.AddVersion(ctx, version); err != nil {
			return fromStore(err, "add version")
		}
		return nil
	})
	if err != nil {
		if derr := s.files.Delete(ctx, handle.Key); derr != nil {
			s.logger.WarnContext(ctx, "orphan file cleanup failed", "key", handle.Key, "error", derr)
		}
		return nil, err
	}
	d.Versions = append(d.Versions, *version)
	return d, nil
}

// Share makes an UPLOAD-flow draft visible to the client as SUBMITTED.
func (s *Service) Share(ctx context.Context, actor domain.Actor, documentID string) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.share")
	defer span.End()

	var (
		d   *Document
		ref *TransactionRef
	)
	err := s.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		d, ref, err = s.load(ctx, documentID)
		if err != nil {
			return err
		}
		if _, err := s.requireBroker(ctx, ref.ID, actor); err != nil {
			return err
		}
		if d.Flow != FlowUpload {
			return dlerrors.New(dlerrors.CodeBadRequest, "share applies to upload-flow documents only")
		}
		if err := s.transition(d, StatusSubmitted); err != nil {
			return err
		}
		d.VisibleToClient = true
		if err := s.store.Update(ctx, d); err != nil {
			return fromStore(err, "update document")
		}
		_, err = s.timeline.AddEntry(ctx, ref.ID, actor, timeline.TypeDocumentShared,
			d.Title, string(d.Type), timeline.SnapshotOf(ref.ClientName, ref.BrokerName, ref.Stage))
		return err
	})
	if err != nil {
		return nil, err
	}

	notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
		Kind:          notify.KindDocumentShared,
		RecipientID:   ref.ClientID,
		TransactionID: ref.ID,
		Subject:       "Document shared: " + d.Title,
	})
	return d, nil
}

// Get returns one document, restricted to the transaction's participants.
// Clients only see documents marked visible to them.
func (s *Service) Get(ctx context.Context, actor domain.Actor, documentID string) (*Document, error) {
	d, ref, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeReader(ctx, ref, actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListByTransaction returns the transaction's documents; clients get only the
// ones visible to them.
func (s *Service) ListByTransaction(ctx context.Context, actor domain.Actor, transactionID string) ([]*Document, error) {
	ref, err := s.ref(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fromStore(err, "list documents")
	}
	if actor.IsClient() {
		if ref.ClientID != actor.ID {
			return nil, dlerrors.New(dlerrors.CodeForbidden, "not a participant of this transaction")
		}
		var visible []*Document
		for _, d := range docs {
			if d.VisibleToClient {
				visible = append(visible, d)
			}
		}
		return visible, nil
	}
	if _, err := s.requireBroker(ctx, transactionID, actor); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Service) transition(d *Document, to Status) error {
	if !CanTransition(d.Status, to) {
		return dlerrors.Newf(dlerrors.CodeBadRequest,
			"document transition %s -> %s is not allowed", d.Status, to)
	}
	d.Status = to
	return nil
}

func (s *Service) load(ctx context.Context, documentID string) (*Document, *TransactionRef, error) {
	d, err := s.store.Get(ctx, documentID)
	if err != nil {
		return nil, nil, fromStore(err, "get document")
	}
	ref, err := s.ref(ctx, d.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	return d, ref, nil
}

func (s *Service) ref(ctx context.Context, transactionID string) (*TransactionRef, error) {
	ref, err := s.transactions.GetRef(ctx, transactionID)
	if err != nil {
		return nil, fromStore(err, "get transaction")
	}
	return ref, nil
}

func (s *Service) requireBroker(ctx context.Context, transactionID string, actor domain.Actor) (*TransactionRef, error) {
	ref, err := s.ref(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsBroker() {
		return nil, dlerrors.New(dlerrors.CodeForbidden, "broker access required")
	}
	ok, err := s.transactions.BrokerCanEdit(ctx, transactionID, actor.ID)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeInternal, "check broker access")
	}
	if !ok {
		return nil, dlerrors.New(dlerrors.CodeForbidden, "not the broker of this transaction")
	}
	return ref, nil
}

func (s *Service) authorizeUploader(ctx context.Context, ref *TransactionRef, actor domain.Actor) error {
	if actor.IsClient() {
		if ref.ClientID != actor.ID {
			return dlerrors.New(dlerrors.CodeForbidden, "not the client of this transaction")
		}
		return nil
	}
	if actor.IsBroker() {
		ok, err := s.transactions.BrokerCanEdit(ctx, ref.ID, actor.ID)
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "check broker access")
		}
		if !ok {
			return dlerrors.New(dlerrors.CodeForbidden, "not the broker of this transaction")
		}
		return nil
	}
	return dlerrors.New(dlerrors.CodeForbidden, "only the broker or client may submit")
}

func (s *Service) authorizeReader(ctx context.Context, ref *TransactionRef, actor domain.Actor, d *Document) error {
	if actor.IsClient() {
		if ref.ClientID != actor.ID || !d.VisibleToClient {
			return dlerrors.New(dlerrors.CodeForbidden, "document not visible to client")
		}
		return nil
	}
	if actor.IsBroker() {
		ok, err := s.transactions.BrokerCanEdit(ctx, ref.ID, actor.ID)
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "check broker access")
		}
		if !ok {
			return dlerrors.New(dlerrors.CodeForbidden, "not the broker of this transaction")
		}
		return nil
	}
	if actor.IsAdmin() {
		return nil
	}
	return dlerrors.New(dlerrors.CodeForbidden, "not a participant of this transaction")
}

func reviewNote(title, comments string) string {
	if comments == "" {
		return title
	}
	return title + ": " + comments
}

// fromStore translates sentinel infrastructure errors into the domain
// taxonomy at the service boundary.
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
