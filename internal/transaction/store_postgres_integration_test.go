//go:build integration

package transaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dealflow/internal/stage"
	"dealflow/internal/transaction"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *transaction.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t, "../../migrations/001_init.sql")
	s := new(PostgresStoreSuite)
	s.postgres = pg
	suite.Run(t, s)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.postgres.Pool.Exec(ctx,
		"TRUNCATE transaction_co_brokers, timeline_entries, document_versions, documents, transactions CASCADE")
	s.Require().NoError(err)
	s.store = transaction.NewPostgresStore(s.postgres.Pool)
}

func newTestTransaction(brokerID string) *transaction.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &transaction.Transaction{
		ID:            uuid.NewString(),
		ClientID:      uuid.NewString(),
		ClientName:    "Dana Client",
		BrokerID:      brokerID,
		BrokerName:    "Rae Broker",
		Side:          stage.SideBuy,
		Stage:         stage.BuyerAgreement,
		Status:        transaction.StatusActive,
		OpenedAt:      now,
		LastUpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	t := newTestTransaction("broker-1")

	s.Require().NoError(s.store.Create(ctx, t))
	s.Equal(int64(1), t.RowVersion)

	got, err := s.store.Get(ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(t.ID, got.ID)
	s.Equal(stage.BuyerAgreement, got.Stage)
	s.Equal(transaction.StatusActive, got.Status)

	s.Run("duplicate id conflicts", func() {
		err := s.store.Create(ctx, t)
		s.True(errors.Is(err, sentinel.ErrConflict))
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.Get(ctx, uuid.NewString())
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *PostgresStoreSuite) TestOptimisticUpdate() {
	ctx := context.Background()
	t := newTestTransaction("broker-1")
	s.Require().NoError(s.store.Create(ctx, t))

	stale := *t

	t.Stage = stage.BuyerConditions
	s.Require().NoError(s.store.Update(ctx, t))
	s.Equal(int64(2), t.RowVersion)

	stale.Stage = stage.BuyerPropertySearch
	err := s.store.Update(ctx, &stale)
	s.True(errors.Is(err, sentinel.ErrConflict))

	got, err := s.store.Get(ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(stage.BuyerConditions, got.Stage)
}

func (s *PostgresStoreSuite) TestListing() {
	ctx := context.Background()
	a := newTestTransaction("broker-1")
	b := newTestTransaction("broker-1")
	c := newTestTransaction("broker-2")
	for _, t := range []*transaction.Transaction{a, b, c} {
		s.Require().NoError(s.store.Create(ctx, t))
	}

	mine, err := s.store.ListByBroker(ctx, "broker-1")
	s.Require().NoError(err)
	s.Len(mine, 2)

	byClient, err := s.store.ListByClient(ctx, a.ClientID)
	s.Require().NoError(err)
	s.Require().Len(byClient, 1)
	s.Equal(a.ID, byClient[0].ID)
}

func (s *PostgresStoreSuite) TestTombstoneAndRestore() {
	ctx := context.Background()
	t := newTestTransaction("broker-1")
	s.Require().NoError(s.store.Create(ctx, t))

	now := time.Now().UTC()
	s.Require().NoError(s.store.Tombstone(ctx, t.ID, now, "admin-1"))

	_, err := s.store.Get(ctx, t.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	got, err := s.store.GetIncludingDeleted(ctx, t.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.DeletedAt)
	s.Equal("admin-1", got.DeletedBy)

	s.Require().NoError(s.store.Restore(ctx, t.ID))
	got, err = s.store.Get(ctx, t.ID)
	s.Require().NoError(err)
	s.Nil(got.DeletedAt)
}

func (s *PostgresStoreSuite) TestCoBrokerGrants() {
	ctx := context.Background()
	t := newTestTransaction("broker-1")
	s.Require().NoError(s.store.Create(ctx, t))

	grant := transaction.CoBrokerGrant{
		TransactionID: t.ID,
		BrokerID:      "broker-2",
		Permissions:   []transaction.Permission{transaction.PermissionEditStage, transaction.PermissionEditDocuments},
		GrantedAt:     time.Now().UTC(),
	}
	s.Require().NoError(s.store.GrantCoBroker(ctx, grant))

	got, err := s.store.GetCoBrokerGrant(ctx, t.ID, "broker-2")
	s.Require().NoError(err)
	s.True(got.Has(transaction.PermissionEditStage))

	// Re-grant replaces the permission set.
	grant.Permissions = []transaction.Permission{transaction.PermissionEditDocuments}
	s.Require().NoError(s.store.GrantCoBroker(ctx, grant))

	got, err = s.store.GetCoBrokerGrant(ctx, t.ID, "broker-2")
	s.Require().NoError(err)
	s.False(got.Has(transaction.PermissionEditStage))

	_, err = s.store.GetCoBrokerGrant(ctx, t.ID, "broker-9")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestTouch() {
	ctx := context.Background()
	t := newTestTransaction("broker-1")
	s.Require().NoError(s.store.Create(ctx, t))

	later := t.LastUpdatedAt.Add(time.Hour)
	s.Require().NoError(s.store.Touch(ctx, t.ID, later))

	got, err := s.store.Get(ctx, t.ID)
	s.Require().NoError(err)
	s.WithinDuration(later, got.LastUpdatedAt, time.Millisecond)
}
