package transaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"dealflow/internal/domain"
	"dealflow/internal/notify"
	"dealflow/internal/stage"
	"dealflow/internal/timeline"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/platform/tx"
)

type ServiceSuite struct {
	suite.Suite
	store    *MemoryStore
	entries  *timeline.MemoryStore
	notifier *notify.Memory
	service  *Service

	broker domain.Actor
	client domain.Actor
	admin  domain.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.broker = domain.Actor{ID: "broker-1", Type: domain.ActorBroker, Name: "Rae Broker"}
	s.client = domain.Actor{ID: "client-1", Type: domain.ActorClient, Name: "Dana Client"}
	s.admin = domain.Actor{ID: "admin-1", Type: domain.ActorAdmin, Name: "Ada Admin"}

	s.store = NewMemoryStore()
	s.entries = timeline.NewMemoryStore()
	s.notifier = &notify.Memory{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tl := timeline.NewService(s.entries, s.store, nil, logger)
	s.service = NewService(tx.Passthrough{}, s.store, tl, s.notifier, logger)
}

func (s *ServiceSuite) open(side string) *Transaction {
	t, err := s.service.Create(context.Background(), CreateParams{
		ClientID:        s.client.ID,
		ClientName:      s.client.Name,
		Side:            side,
		PropertyAddress: "12 Main St",
	}, s.broker)
	s.Require().NoError(err)
	return t
}

func (s *ServiceSuite) entriesOf(transactionID string, visibleOnly bool) []*timeline.Entry {
	entries, err := s.entries.ListByTransaction(context.Background(), transactionID, visibleOnly)
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("opens at the side's first stage with a CREATED entry", func() {
		t := s.open("BUY")
		s.Equal(stage.BuyerAgreement, t.Stage)
		s.Equal(StatusActive, t.Status)
		s.Equal(s.broker.ID, t.BrokerID)
		s.False(t.OpenedAt.IsZero())

		entries := s.entriesOf(t.ID, false)
		s.Require().Len(entries, 1)
		s.Equal(timeline.TypeCreated, entries[0].Type)
		s.True(entries[0].VisibleToClient)
		s.Require().NotNil(entries[0].Snapshot)
		s.Equal("BUYER_AGREEMENT", entries[0].Snapshot.StageName)
	})

	s.Run("sell side opens at the listing agreement", func() {
		t := s.open("SELL")
		s.Equal(stage.SellerListingAgreement, t.Stage)
	})

	s.Run("clients cannot open transactions", func() {
		_, err := s.service.Create(ctx, CreateParams{ClientID: "x", Side: "BUY"}, s.client)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("invalid side is rejected", func() {
		_, err := s.service.Create(ctx, CreateParams{ClientID: "x", Side: "BOTH"}, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("client id is required", func() {
		_, err := s.service.Create(ctx, CreateParams{Side: "BUY"}, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestAdvance() {
	ctx := context.Background()

	s.Run("records one visible stage change per move", func() {
		t := s.open("BUY")

		t, err := s.service.Advance(ctx, t.ID, stage.BuyerPropertySearch.Name(), s.broker)
		s.Require().NoError(err)
		s.Equal(stage.BuyerPropertySearch, t.Stage)

		t, err = s.service.Advance(ctx, t.ID, stage.BuyerOfferAndNegotiation.Name(), s.broker)
		s.Require().NoError(err)
		s.Equal(stage.BuyerOfferAndNegotiation, t.Stage)

		var changes []*timeline.Entry
		for _, e := range s.entriesOf(t.ID, true) {
			if e.Type == timeline.TypeStageChange {
				changes = append(changes, e)
			}
		}
		s.Require().Len(changes, 2)
		s.Equal("BUYER_PROPERTY_SEARCH to BUYER_OFFER_AND_NEGOTIATION", changes[1].Note)
		s.Require().NotNil(changes[1].Snapshot)
		s.Equal("BUYER_PROPERTY_SEARCH", changes[1].Snapshot.PreviousStageName)
		s.Equal("BUYER_OFFER_AND_NEGOTIATION", changes[1].Snapshot.StageName)

		s.Require().NotEmpty(s.notifier.Messages)
		last := s.notifier.Messages[len(s.notifier.Messages)-1]
		s.Equal(notify.KindStageChanged, last.Kind)
		s.Equal(s.client.ID, last.RecipientID)
	})

	s.Run("moving backwards is allowed", func() {
		t := s.open("BUY")
		t, err := s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), s.broker)
		s.Require().NoError(err)
		t, err = s.service.Advance(ctx, t.ID, stage.BuyerPropertySearch.Name(), s.broker)
		s.Require().NoError(err)
		s.Equal(stage.BuyerPropertySearch, t.Stage)
	})

	s.Run("same stage is a no-op", func() {
		t := s.open("BUY")
		before := len(s.entriesOf(t.ID, false))

		got, err := s.service.Advance(ctx, t.ID, stage.BuyerAgreement.Name(), s.broker)
		s.Require().NoError(err)
		s.Equal(stage.BuyerAgreement, got.Stage)
		s.Len(s.entriesOf(t.ID, false), before)
	})

	s.Run("other side's stage is rejected", func() {
		t := s.open("BUY")
		_, err := s.service.Advance(ctx, t.ID, stage.SellerConditions.Name(), s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("a stranger broker is rejected", func() {
		t := s.open("BUY")
		other := domain.Actor{ID: "broker-2", Type: domain.ActorBroker, Name: "Sam Broker"}
		_, err := s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), other)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("a co-broker with EDIT_STAGE may advance", func() {
		t := s.open("BUY")
		co := domain.Actor{ID: "broker-2", Type: domain.ActorBroker, Name: "Sam Broker"}
		_, err := s.service.GrantCoBroker(ctx, t.ID, co.ID, []Permission{PermissionEditStage}, s.broker)
		s.Require().NoError(err)

		got, err := s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), co)
		s.Require().NoError(err)
		s.Equal(stage.BuyerConditions, got.Stage)
	})

	s.Run("a document-only co-broker may not advance", func() {
		t := s.open("BUY")
		co := domain.Actor{ID: "broker-3", Type: domain.ActorBroker, Name: "Kit Broker"}
		_, err := s.service.GrantCoBroker(ctx, t.ID, co.ID, []Permission{PermissionEditDocuments}, s.broker)
		s.Require().NoError(err)

		_, err = s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), co)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("closed transactions reject stage changes", func() {
		t := s.open("BUY")
		_, err := s.service.SetStatus(ctx, t.ID, StatusClosed, s.broker)
		s.Require().NoError(err)

		_, err = s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("a failed notification never fails the advance", func() {
		t := s.open("BUY")
		s.notifier.Err = errors.New("broker unreachable")
		defer func() { s.notifier.Err = nil }()

		got, err := s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), s.broker)
		s.Require().NoError(err)
		s.Equal(stage.BuyerConditions, got.Stage)
	})
}

func (s *ServiceSuite) TestSetStatus() {
	ctx := context.Background()

	s.Run("closing records an invisible status change", func() {
		t := s.open("BUY")
		got, err := s.service.SetStatus(ctx, t.ID, StatusClosed, s.broker)
		s.Require().NoError(err)
		s.Equal(StatusClosed, got.Status)

		all := s.entriesOf(t.ID, false)
		visible := s.entriesOf(t.ID, true)
		s.Len(all, 2)
		s.Len(visible, 1)
	})

	s.Run("terminal states are final", func() {
		t := s.open("BUY")
		_, err := s.service.SetStatus(ctx, t.ID, StatusTerminated, s.broker)
		s.Require().NoError(err)

		_, err = s.service.SetStatus(ctx, t.ID, StatusClosed, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("reactivation is not a status transition", func() {
		t := s.open("BUY")
		_, err := s.service.SetStatus(ctx, t.ID, StatusActive, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("only the owning broker may change status", func() {
		t := s.open("BUY")
		other := domain.Actor{ID: "broker-2", Type: domain.ActorBroker}
		_, err := s.service.SetStatus(ctx, t.ID, StatusClosed, other)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestSetArchived() {
	ctx := context.Background()
	t := s.open("BUY")

	got, err := s.service.SetArchived(ctx, t.ID, true, s.broker)
	s.Require().NoError(err)
	s.True(got.Archived)

	// Idempotent repeat bumps nothing.
	version := got.RowVersion
	got, err = s.service.SetArchived(ctx, t.ID, true, s.broker)
	s.Require().NoError(err)
	s.True(got.Archived)
	s.Equal(version, got.RowVersion)

	got, err = s.service.SetArchived(ctx, t.ID, false, s.broker)
	s.Require().NoError(err)
	s.False(got.Archived)
}

func (s *ServiceSuite) TestGetAndListing() {
	ctx := context.Background()
	t := s.open("BUY")

	s.Run("participants and admins may read", func() {
		for _, actor := range []domain.Actor{s.broker, s.client, s.admin} {
			got, err := s.service.Get(ctx, t.ID, actor)
			s.Require().NoError(err, "actor %s", actor.ID)
			s.Equal(t.ID, got.ID)
		}
	})

	s.Run("a stranger client is rejected", func() {
		stranger := domain.Actor{ID: "client-2", Type: domain.ActorClient}
		_, err := s.service.Get(ctx, t.ID, stranger)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("a granted co-broker may read", func() {
		co := domain.Actor{ID: "broker-2", Type: domain.ActorBroker}
		_, err := s.service.GrantCoBroker(ctx, t.ID, co.ID, []Permission{PermissionEditDocuments}, s.broker)
		s.Require().NoError(err)

		got, err := s.service.Get(ctx, t.ID, co)
		s.Require().NoError(err)
		s.Equal(t.ID, got.ID)
	})

	s.Run("broker and client listings are scoped to the caller", func() {
		txns, err := s.service.ListForBroker(ctx, s.broker)
		s.Require().NoError(err)
		s.Len(txns, 1)

		txns, err = s.service.ListForClient(ctx, s.client)
		s.Require().NoError(err)
		s.Len(txns, 1)

		other := domain.Actor{ID: "client-9", Type: domain.ActorClient}
		txns, err = s.service.ListForClient(ctx, other)
		s.Require().NoError(err)
		s.Empty(txns)
	})

	s.Run("unknown transaction is not found", func() {
		_, err := s.service.Get(ctx, "missing", s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGrantCoBroker() {
	ctx := context.Background()
	t := s.open("BUY")

	s.Run("granting to self is rejected", func() {
		_, err := s.service.GrantCoBroker(ctx, t.ID, s.broker.ID, []Permission{PermissionEditStage}, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("unknown permissions are rejected", func() {
		_, err := s.service.GrantCoBroker(ctx, t.ID, "broker-2", []Permission{"DELETE_EVERYTHING"}, s.broker)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("only the owner may grant", func() {
		other := domain.Actor{ID: "broker-2", Type: domain.ActorBroker}
		_, err := s.service.GrantCoBroker(ctx, t.ID, "broker-3", []Permission{PermissionEditStage}, other)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("re-granting replaces the permission set", func() {
		_, err := s.service.GrantCoBroker(ctx, t.ID, "broker-2", []Permission{PermissionEditStage, PermissionEditDocuments}, s.broker)
		s.Require().NoError(err)
		_, err = s.service.GrantCoBroker(ctx, t.ID, "broker-2", []Permission{PermissionEditDocuments}, s.broker)
		s.Require().NoError(err)

		grant, err := s.store.GetCoBrokerGrant(ctx, t.ID, "broker-2")
		s.Require().NoError(err)
		s.False(grant.Has(PermissionEditStage))
		s.True(grant.Has(PermissionEditDocuments))
	})
}

func (s *ServiceSuite) TestOptimisticConcurrency() {
	ctx := context.Background()
	t := s.open("BUY")

	stale := *t
	_, err := s.service.Advance(ctx, t.ID, stage.BuyerConditions.Name(), s.broker)
	s.Require().NoError(err)

	err = s.store.Update(ctx, &stale)
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrConflict))
}
