// Package document implements the per-document request/review lifecycle:
// status state machine, version history, and the two flows (broker requests /
// broker uploads).
package document

import (
	"time"

	"dealflow/internal/domain"
	"dealflow/internal/stage"
)

// Status is the document lifecycle state. Transitions are monotonic except
// the NEEDS_REVISION -> SUBMITTED resubmission edge.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusRequested     Status = "REQUESTED"
	StatusSubmitted     Status = "SUBMITTED"
	StatusApproved      Status = "APPROVED"
	StatusNeedsRevision Status = "NEEDS_REVISION"
)

// transitions is the single edge table every operation consults. Anything not
// listed is rejected and leaves the status unchanged.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusRequested, StatusSubmitted},
	StatusRequested:     {StatusSubmitted},
	StatusSubmitted:     {StatusApproved, StatusNeedsRevision},
	StatusNeedsRevision: {StatusSubmitted},
}

// CanTransition reports whether from -> to is an allowed lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Flow distinguishes who uploads: REQUEST means the broker asks and the
// client uploads; UPLOAD means the broker uploads and shares.
type Flow string

const (
	FlowRequest Flow = "REQUEST"
	FlowUpload  Flow = "UPLOAD"
)

// Party names who a document is expected from.
type Party string

const (
	PartyBroker     Party = "BROKER"
	PartyClient     Party = "CLIENT"
	PartyThirdParty Party = "THIRD_PARTY"
)

// Type tags the kind of artifact; the checklist catalog maps items onto it.
type Type string

const (
	TypeBuyerRepAgreement     Type = "BUYER_REP_AGREEMENT"
	TypePreApprovalLetter     Type = "PRE_APPROVAL_LETTER"
	TypeOffer                 Type = "OFFER"
	TypePurchaseAgreement     Type = "PURCHASE_AGREEMENT"
	TypeInspectionReport      Type = "INSPECTION_REPORT"
	TypeFinancingConfirmation Type = "FINANCING_CONFIRMATION"
	TypeDepositReceipt        Type = "DEPOSIT_RECEIPT"
	TypeListingAgreement      Type = "LISTING_AGREEMENT"
	TypePropertyDisclosure    Type = "PROPERTY_DISCLOSURE"
	TypeTitleDocuments        Type = "TITLE_DOCUMENTS"
	TypeClosingStatement      Type = "CLOSING_STATEMENT"
	TypeOther                 Type = "OTHER"
)

// Version is one immutable upload event. Created on upload, soft-deleted but
// never mutated thereafter.
type Version struct {
	ID           string
	DocumentID   string
	UploadedAt   time.Time
	UploaderType domain.ActorType
	UploaderID   string
	UploaderName string
	StorageKey   string
	Filename     string
	ContentType  string
	Size         int64
	DeletedAt    *time.Time
	DeletedBy    string
}

// Document is one requested or uploaded artifact. The transaction reference
// is denormalized (transaction id + client id + side) for query efficiency.
type Document struct {
	ID              string
	TransactionID   string
	ClientID        string
	Side            stage.Side
	Type            Type
	Title           string
	Status          Status
	Flow            Flow
	ExpectedFrom    Party
	Stage           stage.Stage
	Versions        []Version
	VisibleToClient bool
	DueDate         *time.Time
	// FileLost marks documents whose storage files were hard-deleted during a
	// soft delete; restore cannot recover them.
	FileLost   bool
	RowVersion int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
	DeletedBy  string
}

// LiveVersions returns versions that are not tombstoned.
func (d *Document) LiveVersions() []Version {
	var out []Version
	for _, v := range d.Versions {
		if v.DeletedAt == nil {
			out = append(out, v)
		}
	}
	return out
}
