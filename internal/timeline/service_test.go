package timeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dealflow/internal/domain"
	"dealflow/internal/stage"
	"dealflow/pkg/dlerrors"
)

type recordingToucher struct {
	calls []time.Time
}

func (r *recordingToucher) Touch(_ context.Context, _ string, ts time.Time) error {
	r.calls = append(r.calls, ts)
	return nil
}

type failingDeduper struct{}

func (failingDeduper) Seen(context.Context, string) (bool, error) {
	return false, errors.New("cache down")
}

type TimelineServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	toucher *recordingToucher
	service *Service
}

func TestTimelineServiceSuite(t *testing.T) {
	suite.Run(t, new(TimelineServiceSuite))
}

func (s *TimelineServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.toucher = &recordingToucher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(s.store, s.toucher, nil, logger)
}

func (s *TimelineServiceSuite) broker() domain.Actor {
	return domain.Actor{ID: "broker-1", Type: domain.ActorBroker, Name: "Rae Broker"}
}

func (s *TimelineServiceSuite) TestAddEntry() {
	ctx := context.Background()

	s.Run("derives visibility and touches the transaction", func() {
		e, err := s.service.AddEntry(ctx, "txn-1", s.broker(), TypeStageChange,
			"BUYER_AGREEMENT to BUYER_PROPERTY_SEARCH", "",
			SnapshotOf("Dana", "Rae", stage.BuyerPropertySearch))
		s.Require().NoError(err)
		s.Require().NotNil(e)
		s.NotEmpty(e.ID)
		s.True(e.VisibleToClient)
		s.Equal("broker-1", e.ActorID)
		s.Require().Len(s.toucher.calls, 1)
		s.Equal(e.Timestamp, s.toucher.calls[0])
	})

	s.Run("notes stay off the client timeline", func() {
		e, err := s.service.AddEntry(ctx, "txn-1", s.broker(), TypeNote, "call the lawyer", "", nil)
		s.Require().NoError(err)
		s.False(e.VisibleToClient)
	})

	s.Run("unknown entry type is rejected before any write", func() {
		before := len(s.toucher.calls)
		_, err := s.service.AddEntry(ctx, "txn-1", s.broker(), EntryType("BOGUS"), "", "", nil)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
		s.Len(s.toucher.calls, before)
	})
}

func (s *TimelineServiceSuite) TestDedup() {
	ctx := context.Background()

	s.Run("duplicate logical event within the window is suppressed", func() {
		svc := NewService(s.store, s.toucher, NewLRUDeduper(64, time.Minute),
			slog.New(slog.NewTextHandler(io.Discard, nil)))

		first, err := svc.AddEntry(ctx, "txn-dedup", s.broker(), TypeDocumentSubmitted, "Offer (offer.pdf)", "OFFER", nil)
		s.Require().NoError(err)
		s.Require().NotNil(first)

		second, err := svc.AddEntry(ctx, "txn-dedup", s.broker(), TypeDocumentSubmitted, "Offer (offer.pdf)", "OFFER", nil)
		s.Require().NoError(err)
		s.Nil(second)

		entries, err := s.store.ListByTransaction(ctx, "txn-dedup", false)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("different notes are distinct events", func() {
		svc := NewService(s.store, s.toucher, NewLRUDeduper(64, time.Minute),
			slog.New(slog.NewTextHandler(io.Discard, nil)))

		_, err := svc.AddEntry(ctx, "txn-distinct", s.broker(), TypeNote, "first", "", nil)
		s.Require().NoError(err)
		e, err := svc.AddEntry(ctx, "txn-distinct", s.broker(), TypeNote, "second", "", nil)
		s.Require().NoError(err)
		s.NotNil(e)
	})

	s.Run("repeated stage changes are kept", func() {
		svc := NewService(s.store, s.toucher, NewLRUDeduper(64, time.Minute),
			slog.New(slog.NewTextHandler(io.Discard, nil)))

		// A change re-applied after a rollback looks identical to the first
		// one; both must land.
		for i := 0; i < 2; i++ {
			e, err := svc.AddEntry(ctx, "txn-reapply", s.broker(), TypeStageChange,
				"BUYER_AGREEMENT to BUYER_PROPERTY_SEARCH", "", nil)
			s.Require().NoError(err)
			s.Require().NotNil(e)
		}

		entries, err := s.store.ListByTransaction(ctx, "txn-reapply", false)
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("a broken dedup cache never blocks the write", func() {
		svc := NewService(s.store, s.toucher, failingDeduper{},
			slog.New(slog.NewTextHandler(io.Discard, nil)))

		e, err := svc.AddEntry(ctx, "txn-broken-cache", s.broker(), TypeNote, "still lands", "", nil)
		s.Require().NoError(err)
		s.NotNil(e)
	})
}

func (s *TimelineServiceSuite) TestListing() {
	ctx := context.Background()
	actor := s.broker()

	_, err := s.service.AddEntry(ctx, "txn-list", actor, TypeStageChange, "a to b", "", nil)
	s.Require().NoError(err)
	_, err = s.service.AddEntry(ctx, "txn-list", actor, TypeNote, "private", "", nil)
	s.Require().NoError(err)
	_, err = s.service.AddEntry(ctx, "txn-list", actor, TypeDocumentRequested, "Offer", "OFFER", nil)
	s.Require().NoError(err)

	s.Run("broker view includes everything", func() {
		entries, err := s.service.ListForBroker(ctx, "txn-list")
		s.Require().NoError(err)
		s.Len(entries, 3)
	})

	s.Run("client view filters invisible entries", func() {
		entries, err := s.service.ListForClient(ctx, "txn-list")
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		for _, e := range entries {
			s.True(e.VisibleToClient)
		}
	})
}

func (s *TimelineServiceSuite) TestRecentActivity() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.service.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i := 0; i < 3; i++ {
		_, err := s.service.AddEntry(ctx, "txn-a", s.broker(), TypeNote, "a", "", nil)
		s.Require().NoError(err)
		_, err = s.service.AddEntry(ctx, "txn-b", s.broker(), TypeNote, "b", "", nil)
		s.Require().NoError(err)
	}

	s.Run("merges transactions newest first", func() {
		entries, err := s.service.RecentActivity(ctx, []string{"txn-a", "txn-b"}, 0, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 6)
		for i := 1; i < len(entries); i++ {
			s.False(entries[i].Timestamp.After(entries[i-1].Timestamp))
		}
	})

	s.Run("offset and limit paginate", func() {
		entries, err := s.service.RecentActivity(ctx, []string{"txn-a", "txn-b"}, 2, 2)
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("offset beyond the end is empty", func() {
		entries, err := s.service.RecentActivity(ctx, []string{"txn-a", "txn-b"}, 100, 10)
		s.Require().NoError(err)
		s.Empty(entries)
	})
}

func (s *TimelineServiceSuite) TestTombstoneAndRestore() {
	ctx := context.Background()

	e1, err := s.service.AddEntry(ctx, "txn-del", s.broker(), TypeNote, "one", "", nil)
	s.Require().NoError(err)
	_, err = s.service.AddEntry(ctx, "txn-del", s.broker(), TypeNote, "two", "", nil)
	s.Require().NoError(err)

	deletedAt := time.Now().UTC()
	ids, err := s.store.TombstoneByTransaction(ctx, "txn-del", deletedAt, "admin-1")
	s.Require().NoError(err)
	s.Len(ids, 2)
	s.Contains(ids, e1.ID)

	entries, err := s.service.ListForBroker(ctx, "txn-del")
	s.Require().NoError(err)
	s.Empty(entries)

	restored, err := s.store.RestoreByTransaction(ctx, "txn-del", deletedAt)
	s.Require().NoError(err)
	s.Len(restored, 2)

	entries, err = s.service.ListForBroker(ctx, "txn-del")
	s.Require().NoError(err)
	s.Len(entries, 2)
}
