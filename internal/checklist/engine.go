package checklist

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"dealflow/internal/document"
	"dealflow/internal/domain"
	"dealflow/internal/stage"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/tx"
)

var tracer = otel.Tracer("dealflow/checklist")

// DocumentApprovals answers whether the document backing an item is approved.
type DocumentApprovals interface {
	IsApproved(ctx context.Context, transactionID, stageName string, docType document.Type) (bool, error)
}

// TransactionGuard is the slice of transaction access control the engine needs.
type TransactionGuard interface {
	BrokerCanEdit(ctx context.Context, transactionID, brokerID string) (bool, error)
}

// Engine computes and persists the merged checklist for a (transaction,
// stage) pair.
type Engine struct {
	runner tx.Runner
	store  Store
	docs   DocumentApprovals
	guard  TransactionGuard
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(runner tx.Runner, store Store, docs DocumentApprovals, guard TransactionGuard, logger *slog.Logger) *Engine {
	return &Engine{
		runner: runner,
		store:  store,
		docs:   docs,
		guard:  guard,
		logger: logger,
		now:    time.Now,
	}
}

// Recompute re-derives auto-checked for every document-backed item of the
// stage and persists it, leaving manual overrides untouched. Called inside
// the document review transaction and on every checklist read.
func (e *Engine) Recompute(ctx context.Context, transactionID string, st stage.Stage) error {
	now := e.now().UTC()
	for _, item := range ItemsForStage(st) {
		if !item.HasDocument() {
			continue
		}
		approved, err := e.docs.IsApproved(ctx, transactionID, st.Name(), item.DocType)
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "check document approval")
		}
		row, err := e.store.Get(ctx, transactionID, st.Name(), item.Key)
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "get checklist state")
		}
		if row == nil {
			row = &State{TransactionID: transactionID, StageName: st.Name(), ItemKey: item.Key}
		}
		row.AutoChecked = approved
		row.AutoAt = &now
		if err := e.store.Upsert(ctx, row); err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "persist checklist state")
		}
	}
	return nil
}

// Compute returns the merged checklist for the stage, recomputing and
// persisting auto state first so reads never serve stale derivations.
func (e *Engine) Compute(ctx context.Context, actor domain.Actor, transactionID string, st stage.Stage) ([]*Entry, error) {
	ctx, span := tracer.Start(ctx, "checklist.compute")
	defer span.End()

	if err := e.requireBroker(ctx, transactionID, actor); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := e.runner.InTx(ctx, func(ctx context.Context) error {
		if err := e.Recompute(ctx, transactionID, st); err != nil {
			return err
		}
		rows, err := e.store.ListByStage(ctx, transactionID, st.Name())
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "list checklist state")
		}
		byKey := make(map[string]*State, len(rows))
		for _, r := range rows {
			byKey[r.ItemKey] = r
		}
		for _, item := range ItemsForStage(st) {
			entry := &Entry{Item: item}
			if row, ok := byKey[item.Key]; ok {
				entry.ManualChecked = row.ManualChecked
				entry.ManualBy = row.ManualBy
				entry.ManualAt = row.ManualAt
				entry.AutoChecked = row.AutoChecked
				entry.AutoAt = row.AutoAt
			}
			// Manual override wins for display; auto still reflects the
			// document reality underneath.
			if entry.ManualAt != nil {
				entry.Checked = entry.ManualChecked
			} else {
				entry.Checked = entry.AutoChecked
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Item.Key < entries[j].Item.Key })
	return entries, nil
}

// ToggleManual sets or clears the manual flag on one item. Toggling to the
// current value is idempotent: only the timestamp moves, nothing else happens.
func (e *Engine) ToggleManual(ctx context.Context, actor domain.Actor, transactionID string, st stage.Stage, itemKey string, checked bool) (*State, error) {
	ctx, span := tracer.Start(ctx, "checklist.toggle_manual")
	defer span.End()

	if err := e.requireBroker(ctx, transactionID, actor); err != nil {
		return nil, err
	}
	if !itemExists(st, itemKey) {
		return nil, dlerrors.Newf(dlerrors.CodeBadRequest, "unknown checklist item %q for stage %s", itemKey, st.Name())
	}

	var row *State
	err := e.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		row, err = e.store.Get(ctx, transactionID, st.Name(), itemKey)
		if err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "get checklist state")
		}
		if row == nil {
			row = &State{TransactionID: transactionID, StageName: st.Name(), ItemKey: itemKey}
		}
		now := e.now().UTC()
		row.ManualChecked = checked
		row.ManualBy = actor.ID
		row.ManualAt = &now
		if err := e.store.Upsert(ctx, row); err != nil {
			return dlerrors.Wrap(err, dlerrors.CodeInternal, "persist checklist state")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (e *Engine) requireBroker(ctx context.Context, transactionID string, actor domain.Actor) error {
	if !actor.IsBroker() {
		return dlerrors.New(dlerrors.CodeForbidden, "broker access required")
	}
	ok, err := e.guard.BrokerCanEdit(ctx, transactionID, actor.ID)
	if err != nil {
		return dlerrors.Wrap(err, dlerrors.CodeInternal, "check broker access")
	}
	if !ok {
		return dlerrors.New(dlerrors.CodeForbidden, "not the broker of this transaction")
	}
	return nil
}

func itemExists(st stage.Stage, itemKey string) bool {
	for _, item := range ItemsForStage(st) {
		if item.Key == itemKey {
			return true
		}
	}
	return false
}
