package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dealflow/internal/domain"
	"dealflow/internal/notify"
	"dealflow/internal/objectstore"
	"dealflow/internal/stage"
	"dealflow/internal/timeline"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/platform/tx"
)

type fakeTransactions struct {
	ref     *TransactionRef
	editors map[string]bool
}

func (f *fakeTransactions) GetRef(_ context.Context, transactionID string) (*TransactionRef, error) {
	if f.ref == nil || f.ref.ID != transactionID {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, sentinel.ErrNotFound)
	}
	cp := *f.ref
	return &cp, nil
}

func (f *fakeTransactions) BrokerCanEdit(_ context.Context, _, brokerID string) (bool, error) {
	return f.editors[brokerID], nil
}

type recordingRecomputer struct {
	calls int
}

func (r *recordingRecomputer) Recompute(context.Context, string, stage.Stage) error {
	r.calls++
	return nil
}

type nopToucher struct{}

func (nopToucher) Touch(context.Context, string, time.Time) error { return nil }

type failingRunner struct{ err error }

func (f failingRunner) InTx(context.Context, func(ctx context.Context) error) error { return f.err }

type DocumentServiceSuite struct {
	suite.Suite
	store     *MemoryStore
	txns      *fakeTransactions
	checklist *recordingRecomputer
	entries   *timeline.MemoryStore
	files     *objectstore.MemoryStore
	notifier  *notify.Memory
	service   *Service

	broker domain.Actor
	client domain.Actor
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.broker = domain.Actor{ID: "broker-1", Type: domain.ActorBroker, Name: "Rae Broker"}
	s.client = domain.Actor{ID: "client-1", Type: domain.ActorClient, Name: "Dana Client"}

	s.store = NewMemoryStore()
	s.txns = &fakeTransactions{
		ref: &TransactionRef{
			ID:         "txn-1",
			ClientID:   s.client.ID,
			BrokerID:   s.broker.ID,
			ClientName: s.client.Name,
			BrokerName: s.broker.Name,
			Side:       stage.SideBuy,
			Stage:      stage.BuyerAgreement,
		},
		editors: map[string]bool{s.broker.ID: true},
	}
	s.checklist = &recordingRecomputer{}
	s.entries = timeline.NewMemoryStore()
	s.files = objectstore.NewMemoryStore()
	s.notifier = &notify.Memory{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tl := timeline.NewService(s.entries, nopToucher{}, nil, logger)
	s.service = NewService(tx.Passthrough{}, s.store, s.txns, s.checklist, tl, s.files, s.notifier, logger)
}

func (s *DocumentServiceSuite) upload(name string) Upload {
	return Upload{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        4,
		Body:        strings.NewReader("%PDF"),
	}
}

func (s *DocumentServiceSuite) requestDoc(ctx context.Context) *Document {
	d, err := s.service.Create(ctx, s.broker, CreateParams{
		TransactionID: "txn-1",
		Type:          TypePreApprovalLetter,
		Title:         "Pre-approval letter",
		Flow:          FlowRequest,
		ExpectedFrom:  PartyClient,
		StageName:     stage.BuyerAgreement.Name(),
	})
	s.Require().NoError(err)
	return d
}

func (s *DocumentServiceSuite) timelineTypes(ctx context.Context) []timeline.EntryType {
	entries, err := s.entries.ListByTransaction(ctx, "txn-1", false)
	s.Require().NoError(err)
	out := make([]timeline.EntryType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func (s *DocumentServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("request flow starts at REQUESTED and notifies the client", func() {
		d := s.requestDoc(ctx)
		s.Equal(StatusRequested, d.Status)
		s.True(d.VisibleToClient)
		s.Contains(s.timelineTypes(ctx), timeline.TypeDocumentRequested)
		s.Require().NotEmpty(s.notifier.Messages)
		s.Equal(notify.KindDocumentRequested, s.notifier.Messages[0].Kind)
		s.Equal(s.client.ID, s.notifier.Messages[0].RecipientID)
	})

	s.Run("request flow as draft stays private", func() {
		d, err := s.service.Create(ctx, s.broker, CreateParams{
			TransactionID: "txn-1",
			Type:          TypeBuyerRepAgreement,
			Title:         "Representation agreement",
			Flow:          FlowRequest,
			ExpectedFrom:  PartyClient,
			StageName:     stage.BuyerAgreement.Name(),
			AsDraft:       true,
		})
		s.Require().NoError(err)
		s.Equal(StatusDraft, d.Status)
		s.False(d.VisibleToClient)
	})

	s.Run("upload flow starts at DRAFT", func() {
		d, err := s.service.Create(ctx, s.broker, CreateParams{
			TransactionID: "txn-1",
			Type:          TypeOffer,
			Title:         "Offer",
			Flow:          FlowUpload,
			ExpectedFrom:  PartyBroker,
			StageName:     stage.BuyerOfferAndNegotiation.Name(),
		})
		s.Require().NoError(err)
		s.Equal(StatusDraft, d.Status)
		s.False(d.VisibleToClient)
	})

	s.Run("clients cannot create documents", func() {
		_, err := s.service.Create(ctx, s.client, CreateParams{
			TransactionID: "txn-1",
			Type:          TypeOther,
			Title:         "nope",
			Flow:          FlowRequest,
			StageName:     stage.BuyerAgreement.Name(),
		})
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("wrong side stage is rejected", func() {
		_, err := s.service.Create(ctx, s.broker, CreateParams{
			TransactionID: "txn-1",
			Type:          TypeListingAgreement,
			Title:         "Listing agreement",
			Flow:          FlowRequest,
			StageName:     stage.SellerListingAgreement.Name(),
		})
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("unknown transaction is not found", func() {
		_, err := s.service.Create(ctx, s.broker, CreateParams{
			TransactionID: "txn-missing",
			Type:          TypeOther,
			Title:         "orphan",
			Flow:          FlowRequest,
			StageName:     stage.BuyerAgreement.Name(),
		})
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeNotFound))
	})
}

func (s *DocumentServiceSuite) TestSend() {
	ctx := context.Background()

	d, err := s.service.Create(ctx, s.broker, CreateParams{
		TransactionID: "txn-1",
		Type:          TypeDepositReceipt,
		Title:         "Deposit receipt",
		Flow:          FlowRequest,
		StageName:     stage.BuyerOfferAndNegotiation.Name(),
		AsDraft:       true,
	})
	s.Require().NoError(err)

	s.Run("moves a draft request to REQUESTED", func() {
		sent, err := s.service.Send(ctx, s.broker, d.ID)
		s.Require().NoError(err)
		s.Equal(StatusRequested, sent.Status)
		s.True(sent.VisibleToClient)
	})

	s.Run("sending twice is rejected", func() {
		_, err := s.service.Send(ctx, s.broker, d.ID)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *DocumentServiceSuite) TestSubmitAndReview() {
	ctx := context.Background()
	d := s.requestDoc(ctx)

	s.Run("client submission attaches a version and notifies the broker", func() {
		submitted, err := s.service.Submit(ctx, s.client, d.ID, s.upload("letter.pdf"))
		s.Require().NoError(err)
		s.Equal(StatusSubmitted, submitted.Status)
		s.Require().Len(submitted.LiveVersions(), 1)
		v := submitted.LiveVersions()[0]
		s.Equal(s.client.ID, v.UploaderID)
		s.Equal(domain.ActorClient, v.UploaderType)
		s.True(s.files.Has(v.StorageKey))
		s.Contains(s.timelineTypes(ctx), timeline.TypeDocumentSubmitted)

		last := s.notifier.Messages[len(s.notifier.Messages)-1]
		s.Equal(notify.KindDocumentSubmitted, last.Kind)
		s.Equal(s.broker.ID, last.RecipientID)
	})

	s.Run("needs revision reopens the submission edge", func() {
		reviewed, err := s.service.Review(ctx, s.broker, d.ID, DecisionNeedsRevision, "missing signature")
		s.Require().NoError(err)
		s.Equal(StatusNeedsRevision, reviewed.Status)
		s.Equal(1, s.checklist.calls)
		s.Contains(s.timelineTypes(ctx), timeline.TypeDocumentNeedsRevision)

		resubmitted, err := s.service.Submit(ctx, s.client, d.ID, s.upload("letter-v2.pdf"))
		s.Require().NoError(err)
		s.Equal(StatusSubmitted, resubmitted.Status)
		s.Len(resubmitted.LiveVersions(), 2)
	})

	s.Run("approval is terminal and reconciles the checklist", func() {
		approved, err := s.service.Review(ctx, s.broker, d.ID, DecisionApprove, "")
		s.Require().NoError(err)
		s.Equal(StatusApproved, approved.Status)
		s.Equal(2, s.checklist.calls)

		_, err = s.service.Submit(ctx, s.client, d.ID, s.upload("late.pdf"))
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))

		_, err = s.service.Review(ctx, s.broker, d.ID, DecisionNeedsRevision, "")
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *DocumentServiceSuite) TestReviewGuards() {
	ctx := context.Background()

	s.Run("cannot approve a document without a version", func() {
		d := s.requestDoc(ctx)
		// Force SUBMITTED without an upload to isolate the version check.
		d.Status = StatusSubmitted
		s.Require().NoError(s.store.Update(ctx, d))

		_, err := s.service.Review(ctx, s.broker, d.ID, DecisionApprove, "")
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("clients cannot review", func() {
		d := s.requestDoc(ctx)
		_, err := s.service.Submit(ctx, s.client, d.ID, s.upload("file.pdf"))
		s.Require().NoError(err)

		_, err = s.service.Review(ctx, s.client, d.ID, DecisionApprove, "")
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("unknown decision is rejected", func() {
		d := s.requestDoc(ctx)
		_, err := s.service.Review(ctx, s.broker, d.ID, ReviewDecision("MAYBE"), "")
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *DocumentServiceSuite) TestSubmitGuards() {
	ctx := context.Background()
	d := s.requestDoc(ctx)

	s.Run("a stranger cannot submit", func() {
		stranger := domain.Actor{ID: "client-2", Type: domain.ActorClient, Name: "Sam Stranger"}
		_, err := s.service.Submit(ctx, stranger, d.ID, s.upload("file.pdf"))
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("storage failure surfaces and leaves no version", func() {
		s.files.FailPuts = true
		defer func() { s.files.FailPuts = false }()

		_, err := s.service.Submit(ctx, s.client, d.ID, s.upload("file.pdf"))
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeInternal))

		got, err := s.store.Get(ctx, d.ID)
		s.Require().NoError(err)
		s.Empty(got.Versions)
		s.Equal(StatusRequested, got.Status)
	})

	s.Run("a failed commit cleans up the orphan object", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		tl := timeline.NewService(s.entries, nopToucher{}, nil, logger)
		svc := NewService(failingRunner{err: errors.New("connection reset")},
			s.store, s.txns, s.checklist, tl, s.files, s.notifier, logger)

		before := s.files.Len()
		_, err := svc.Submit(ctx, s.client, d.ID, s.upload("file.pdf"))
		s.Require().Error(err)
		s.Equal(before, s.files.Len())
	})
}

func (s *DocumentServiceSuite) TestUploadFlow() {
	ctx := context.Background()

	d, err := s.service.Create(ctx, s.broker, CreateParams{
		TransactionID: "txn-1",
		Type:          TypeOffer,
		Title:         "Offer",
		Flow:          FlowUpload,
		ExpectedFrom:  PartyBroker,
		StageName:     stage.BuyerOfferAndNegotiation.Name(),
	})
	s.Require().NoError(err)

	s.Run("broker attaches files while drafting", func() {
		got, err := s.service.UploadFile(ctx, s.broker, d.ID, s.upload("offer.pdf"))
		s.Require().NoError(err)
		s.Equal(StatusDraft, got.Status)
		s.Len(got.LiveVersions(), 1)
	})

	s.Run("share publishes the draft to the client", func() {
		shared, err := s.service.Share(ctx, s.broker, d.ID)
		s.Require().NoError(err)
		s.Equal(StatusSubmitted, shared.Status)
		s.True(shared.VisibleToClient)
		s.Contains(s.timelineTypes(ctx), timeline.TypeDocumentShared)

		last := s.notifier.Messages[len(s.notifier.Messages)-1]
		s.Equal(notify.KindDocumentShared, last.Kind)
	})

	s.Run("upload after share is rejected", func() {
		_, err := s.service.UploadFile(ctx, s.broker, d.ID, s.upload("offer-v2.pdf"))
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})

	s.Run("submit does not apply to upload flow", func() {
		_, err := s.service.Submit(ctx, s.client, d.ID, s.upload("offer.pdf"))
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeBadRequest))
	})
}

func (s *DocumentServiceSuite) TestVisibility() {
	ctx := context.Background()

	requested := s.requestDoc(ctx)
	hidden, err := s.service.Create(ctx, s.broker, CreateParams{
		TransactionID: "txn-1",
		Type:          TypeOffer,
		Title:         "Internal draft",
		Flow:          FlowUpload,
		StageName:     stage.BuyerOfferAndNegotiation.Name(),
	})
	s.Require().NoError(err)

	s.Run("client list excludes invisible documents", func() {
		docs, err := s.service.ListByTransaction(ctx, s.client, "txn-1")
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal(requested.ID, docs[0].ID)
	})

	s.Run("broker list includes everything", func() {
		docs, err := s.service.ListByTransaction(ctx, s.broker, "txn-1")
		s.Require().NoError(err)
		s.Len(docs, 2)
	})

	s.Run("client cannot fetch an invisible document", func() {
		_, err := s.service.Get(ctx, s.client, hidden.ID)
		s.Require().Error(err)
		s.True(dlerrors.HasCode(err, dlerrors.CodeForbidden))
	})

	s.Run("client fetches a visible document", func() {
		got, err := s.service.Get(ctx, s.client, requested.ID)
		s.Require().NoError(err)
		s.Equal(requested.ID, got.ID)
	})
}
