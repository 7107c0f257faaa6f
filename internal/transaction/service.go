package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"dealflow/internal/domain"
	"dealflow/internal/notify"
	"dealflow/internal/stage"
	"dealflow/internal/timeline"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/platform/tx"
)

var tracer = otel.Tracer("dealflow/transaction")

// Service owns the transaction aggregate and its stage state machine.
type Service struct {
	runner   tx.Runner
	store    Store
	timeline *timeline.Service
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	runner tx.Runner,
	store Store,
	tl *timeline.Service,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		runner:   runner,
		store:    store,
		timeline: tl,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateParams opens a transaction for a client. The side fixes the stage
// catalog for the whole lifetime.
type CreateParams struct {
	ClientID        string
	ClientName      string
	Side            string
	PropertyAddress string
}

func (s *Service) Create(ctx context.Context, p CreateParams, actor domain.Actor) (*Transaction, error) {
	ctx, span := tracer.Start(ctx, "transaction.create")
	defer span.End()

	if !actor.IsBroker() {
		return nil, dlerrors.New(dlerrors.CodeForbidden, "only brokers open transactions")
	}
	side, err := stage.ParseSide(p.Side)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeBadRequest, "invalid side")
	}
	if p.ClientID == "" {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "client id is required")
	}

	now := s.now().UTC()
	t := &Transaction{
		ID:              uuid.NewString(),
		ClientID:        p.ClientID,
		ClientName:      p.ClientName,
		BrokerID:        actor.ID,
		BrokerName:      actor.Name,
		Side:            side,
		Stage:           stage.First(side),
		Status:          StatusActive,
		PropertyAddress: p.PropertyAddress,
		OpenedAt:        now,
		LastUpdatedAt:   now,
	}

	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, t); err != nil {
			return fromStore(err, "create transaction")
		}
		_, err := s.timeline.AddEntry(ctx, t.ID, actor, timeline.TypeCreated,
			"Transaction opened", "", timeline.SnapshotOf(t.ClientName, t.BrokerName, t.Stage))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Advance moves the transaction to another stage of its side. Requires the
// owning broker or a co-broker holding EDIT_STAGE.
func (s *Service) Advance(ctx context.Context, transactionID, newStageName string, actor domain.Actor) (*Transaction, error) {
	ctx, span := tracer.Start(ctx, "transaction.advance")
	defer span.End()

	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStageEditor(ctx, t, actor); err != nil {
		return nil, err
	}
	if t.Status != StatusActive {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "transaction is %s", t.Status)
	}
	next, err := stage.ParseForSide(t.Side, newStageName)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeBadRequest, "invalid stage for side")
	}
	if next == t.Stage {
		return t, nil
	}

	prev := t.Stage
	t.Stage = next
	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, t); err != nil {
			return fromStore(err, "update transaction stage")
		}
		snap := timeline.SnapshotOf(t.ClientName, t.BrokerName, next)
		snap.PreviousStageName = prev.Name()
		_, err := s.timeline.AddEntry(ctx, t.ID, actor, timeline.TypeStageChange,
			fmt.Sprintf("%s to %s", prev.Name(), next.Name()), "", snap)
		return err
	})
	if err != nil {
		return nil, err
	}

	notify.BestEffort(ctx, s.logger, s.notifier, notify.Message{
		Kind:          notify.KindStageChanged,
		RecipientID:   t.ClientID,
		TransactionID: t.ID,
		Subject:       "Stage updated: " + next.Name(),
	})
	return t, nil
}

// SetStatus closes or terminates the transaction. Owner broker only. The
// STATUS_CHANGE entry stays off the client timeline.
func (s *Service) SetStatus(ctx context.Context, transactionID string, status Status, actor domain.Actor) (*Transaction, error) {
	ctx, span := tracer.Start(ctx, "transaction.set_status")
	defer span.End()

	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(t, actor); err != nil {
		return nil, err
	}
	if status != StatusClosed && status != StatusTerminated {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "cannot set status %q", status)
	}
	if t.Status == status {
		return t, nil
	}
	if t.Status != StatusActive {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "transaction already %s", t.Status)
	}

	prev := t.Status
	t.Status = status
	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, t); err != nil {
			return fromStore(err, "update transaction status")
		}
		_, err := s.timeline.AddEntry(ctx, t.ID, actor, timeline.TypeStatusChange,
			fmt.Sprintf("%s to %s", prev, status), "",
			timeline.SnapshotOf(t.ClientName, t.BrokerName, t.Stage))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetArchived hides or unhides the transaction from default broker listings
// without touching its lifecycle state.
func (s *Service) SetArchived(ctx context.Context, transactionID string, archived bool, actor domain.Actor) (*Transaction, error) {
	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(t, actor); err != nil {
		return nil, err
	}
	if t.Archived == archived {
		return t, nil
	}
	t.Archived = archived
	if err := s.store.Update(ctx, t); err != nil {
		return nil, fromStore(err, "update transaction archive flag")
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, transactionID string, actor domain.Actor) (*Transaction, error) {
	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeReader(ctx, t, actor); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListForBroker(ctx context.Context, actor domain.Actor) ([]*Transaction, error) {
	if !actor.IsBroker() && !actor.IsAdmin() {
		return nil, dlerrors.New(dlerrors.CodeForbidden, "broker listing requires a broker")
	}
	out, err := s.store.ListByBroker(ctx, actor.ID)
	if err != nil {
		return nil, fromStore(err, "list transactions by broker")
	}
	return out, nil
}

func (s *Service) ListForClient(ctx context.Context, actor domain.Actor) ([]*Transaction, error) {
	if !actor.IsClient() {
		return nil, dlerrors.New(dlerrors.CodeForbidden, "client listing requires a client")
	}
	out, err := s.store.ListByClient(ctx, actor.ID)
	if err != nil {
		return nil, fromStore(err, "list transactions by client")
	}
	return out, nil
}

// GrantCoBroker lets the owning broker delegate a permission set to another
// broker. Re-granting replaces the previous permission set.
func (s *Service) GrantCoBroker(ctx context.Context, transactionID, coBrokerID string, permissions []Permission, actor domain.Actor) (*CoBrokerGrant, error) {
	t, err := s.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(t, actor); err != nil {
		return nil, err
	}
	if coBrokerID == "" || coBrokerID == t.BrokerID {
		return nil, dlerrors.New(dlerrors.CodeBadRequest, "co-broker must be another broker")
	}
	for _, p := range permissions {
		if p != PermissionEditStage && p != PermissionEditDocuments {
			return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "unknown permission %q", p)
		}
	}
	grant := CoBrokerGrant{
		TransactionID: t.ID,
		BrokerID:      coBrokerID,
		Permissions:   permissions,
		GrantedAt:     s.now().UTC(),
	}
	if err := s.store.GrantCoBroker(ctx, grant); err != nil {
		return nil, fromStore(err, "grant co-broker")
	}
	return &grant, nil
}

func (s *Service) load(ctx context.Context, transactionID string) (*Transaction, error) {
	t, err := s.store.Get(ctx, transactionID)
	if err != nil {
		return nil, fromStore(err, "load transaction")
	}
	return t, nil
}

func (s *Service) requireOwner(t *Transaction, actor domain.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsBroker() && actor.ID == t.BrokerID {
		return nil
	}
	return dlerrors.New(dlerrors.CodeForbidden, "only the owning broker may do this")
}

func (s *Service) requireStageEditor(ctx context.Context, t *Transaction, actor domain.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsBroker() {
		return dlerrors.New(dlerrors.CodeForbidden, "stage changes require a broker")
	}
	if actor.ID == t.BrokerID {
		return nil
	}
	grant, err := s.store.GetCoBrokerGrant(ctx, t.ID, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dlerrors.New(dlerrors.CodeForbidden, "no stage permission on this transaction")
		}
		return fromStore(err, "check co-broker grant")
	}
	if !grant.Has(PermissionEditStage) {
		return dlerrors.New(dlerrors.CodeForbidden, "co-broker grant lacks stage permission")
	}
	return nil
}

func (s *Service) authorizeReader(ctx context.Context, t *Transaction, actor domain.Actor) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsClient() && actor.ID == t.ClientID:
		return nil
	case actor.IsBroker() && actor.ID == t.BrokerID:
		return nil
	case actor.IsBroker():
		if _, err := s.store.GetCoBrokerGrant(ctx, t.ID, actor.ID); err == nil {
			return nil
		}
	}
	return dlerrors.New(dlerrors.CodeForbidden, "not a participant of this transaction")
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
