package checklist

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"dealflow/internal/document"
	"dealflow/internal/domain"
	"dealflow/internal/stage"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/tx"
)

type fakeGuard struct {
	editors map[string]bool
}

func (f *fakeGuard) BrokerCanEdit(_ context.Context, _, brokerID string) (bool, error) {
	return f.editors[brokerID], nil
}

type EngineSuite struct {
	suite.Suite
	store  *MemoryStore
	docs   *document.MemoryStore
	engine *Engine
	broker domain.Actor
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.broker = domain.Actor{ID: "broker-1", Type: domain.ActorBroker, Name: "Rae Broker"}
	s.store = NewMemoryStore()
	s.docs = document.NewMemoryStore()
	guard := &fakeGuard{editors: map[string]bool{s.broker.ID: true}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.engine = NewEngine(tx.Passthrough{}, s.store, document.ApprovalChecker{Store: s.docs}, guard, logger)
}

func (s *EngineSuite) addDocument(status document.Status, st stage.Stage, docType document.Type) *document.Document {
	d := &document.Document{
		ID:            "doc-" + string(docType),
		TransactionID: "txn-1",
		Side:          st.Side(),
		Type:          docType,
		Title:         string(docType),
		Status:        status,
		Stage:         st,
	}
	s.Require().NoError(s.docs.Create(context.Background(), d))
	return d
}

func (s *EngineSuite) entryByKey(entries []*Entry, key string) *Entry {
	for _, e := range entries {
		if e.Item.Key == key {
			return e
		}
	}
	s.Require().Failf("missing entry", "no checklist entry with key %q", key)
	return nil
}

func (s *EngineSuite) TestCompute() {
	ctx := context.Background()

	s.Run("returns the full catalog for the stage", func() {
		entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
		s.Require().NoError(err)
		s.Len(entries, len(ItemsForStage(stage.BuyerAgreement)))
		for _, e := range entries {
			s.False(e.Checked)
		}
	})

	s.Run("approved documents auto-check their items", func() {
		s.addDocument(document.StatusApproved, stage.BuyerAgreement, document.TypePreApprovalLetter)

		entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
		s.Require().NoError(err)

		e := s.entryByKey(entries, "pre_approval_letter")
		s.True(e.AutoChecked)
		s.True(e.Checked)

		// Items without an approved document stay unchecked.
		s.False(s.entryByKey(entries, "buyer_representation_agreement").Checked)
	})

	s.Run("submitted but unreviewed documents do not auto-check", func() {
		s.addDocument(document.StatusSubmitted, stage.BuyerConditions, document.TypeInspectionReport)

		entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerConditions)
		s.Require().NoError(err)
		s.False(s.entryByKey(entries, "inspection_report").Checked)
	})

	s.Run("non-brokers are rejected", func() {
		client := domain.Actor{ID: "client-1", Type: domain.ActorClient}
		_, err := s.engine.Compute(ctx, client, "txn-1", stage.BuyerAgreement)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("a broker without access is rejected", func() {
		other := domain.Actor{ID: "broker-2", Type: domain.ActorBroker}
		_, err := s.engine.Compute(ctx, other, "txn-1", stage.BuyerAgreement)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})
}

func (s *EngineSuite) TestToggleManual() {
	ctx := context.Background()

	s.Run("sets the manual flag", func() {
		row, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "intake_call", true)
		s.Require().NoError(err)
		s.True(row.ManualChecked)
		s.Equal(s.broker.ID, row.ManualBy)
		s.Require().NotNil(row.ManualAt)

		entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
		s.Require().NoError(err)
		s.True(s.entryByKey(entries, "intake_call").Checked)
	})

	s.Run("toggling to the same value is idempotent", func() {
		first, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "intake_call", true)
		s.Require().NoError(err)
		second, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "intake_call", true)
		s.Require().NoError(err)
		s.Equal(first.ManualChecked, second.ManualChecked)
		s.Equal(first.ManualBy, second.ManualBy)
	})

	s.Run("unchecking clears the display state", func() {
		_, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "intake_call", false)
		s.Require().NoError(err)

		entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
		s.Require().NoError(err)
		s.False(s.entryByKey(entries, "intake_call").Checked)
	})

	s.Run("unknown item key is rejected", func() {
		_, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "made_up", true)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *EngineSuite) TestManualOverrideAndRecompute() {
	ctx := context.Background()

	// Broker manually checks a document-backed item before any document lands.
	_, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "pre_approval_letter", true)
	s.Require().NoError(err)

	entries, err := s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
	s.Require().NoError(err)
	e := s.entryByKey(entries, "pre_approval_letter")
	s.True(e.Checked)
	s.False(e.AutoChecked)

	// The document is approved afterwards; auto catches up, manual still set.
	d := s.addDocument(document.StatusApproved, stage.BuyerAgreement, document.TypePreApprovalLetter)

	entries, err = s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
	s.Require().NoError(err)
	e = s.entryByKey(entries, "pre_approval_letter")
	s.True(e.AutoChecked)
	s.True(e.ManualChecked)
	s.True(e.Checked)

	// Manual unchecked wins over an approved document for display; the auto
	// flag keeps reflecting document reality.
	_, err = s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "pre_approval_letter", false)
	s.Require().NoError(err)

	entries, err = s.engine.Compute(ctx, s.broker, "txn-1", stage.BuyerAgreement)
	s.Require().NoError(err)
	e = s.entryByKey(entries, "pre_approval_letter")
	s.False(e.Checked)
	s.True(e.AutoChecked)

	// Recompute after the document regresses clears auto.
	d.Status = document.StatusNeedsRevision
	s.Require().NoError(s.docs.Update(ctx, d))

	s.Require().NoError(s.engine.Recompute(ctx, "txn-1", stage.BuyerAgreement))
	row, err := s.store.Get(ctx, "txn-1", stage.BuyerAgreement.Name(), "pre_approval_letter")
	s.Require().NoError(err)
	s.Require().NotNil(row)
	s.False(row.AutoChecked)
	s.Require().NotNil(row.AutoAt)
}

func (s *EngineSuite) TestDeleteByTransaction() {
	ctx := context.Background()

	_, err := s.engine.ToggleManual(ctx, s.broker, "txn-1", stage.BuyerAgreement, "intake_call", true)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteByTransaction(ctx, "txn-1"))

	row, err := s.store.Get(ctx, "txn-1", stage.BuyerAgreement.Name(), "intake_call")
	s.Require().NoError(err)
	s.Nil(row)

	rows, err := s.store.ListByStage(ctx, "txn-1", stage.BuyerAgreement.Name())
	s.Require().NoError(err)
	s.Empty(rows)
}
