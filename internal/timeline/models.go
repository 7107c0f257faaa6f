// Package timeline is the append-only activity log for a transaction. Every
// mutation in the stage and document state machines feeds it through a single
// ingestion point, and client visibility is derived exactly once at creation.
package timeline

import (
	"fmt"
	"time"

	"dealflow/internal/stage"
)

// EntryType is a closed enumeration. Classify is a total function over it:
// adding a type without classifying it makes ingestion fail loudly instead of
// silently hiding the entry from clients.
type EntryType string

const (
	TypeCreated               EntryType = "CREATED"
	TypeStageChange           EntryType = "STAGE_CHANGE"
	TypeStatusChange          EntryType = "STATUS_CHANGE"
	TypeDocumentRequested     EntryType = "DOCUMENT_REQUESTED"
	TypeDocumentSubmitted     EntryType = "DOCUMENT_SUBMITTED"
	TypeDocumentApproved      EntryType = "DOCUMENT_APPROVED"
	TypeDocumentNeedsRevision EntryType = "DOCUMENT_NEEDS_REVISION"
	TypeDocumentShared        EntryType = "DOCUMENT_SHARED"
	TypeOfferSubmitted        EntryType = "OFFER_SUBMITTED"
	TypeOfferAccepted         EntryType = "OFFER_ACCEPTED"
	TypeConditionAdded        EntryType = "CONDITION_ADDED"
	TypeConditionFulfilled    EntryType = "CONDITION_FULFILLED"
	TypeAppointmentScheduled  EntryType = "APPOINTMENT_SCHEDULED"
	TypeAppointmentCancelled  EntryType = "APPOINTMENT_CANCELLED"
	TypePropertyUpdated       EntryType = "PROPERTY_UPDATED"
	TypeNote                  EntryType = "NOTE"
)

// AllEntryTypes lists every member of the enumeration; tests assert Classify
// covers all of them.
var AllEntryTypes = []EntryType{
	TypeCreated,
	TypeStageChange,
	TypeStatusChange,
	TypeDocumentRequested,
	TypeDocumentSubmitted,
	TypeDocumentApproved,
	TypeDocumentNeedsRevision,
	TypeDocumentShared,
	TypeOfferSubmitted,
	TypeOfferAccepted,
	TypeConditionAdded,
	TypeConditionFulfilled,
	TypeAppointmentScheduled,
	TypeAppointmentCancelled,
	TypePropertyUpdated,
	TypeNote,
}

// Classify returns the client visibility of an entry type. Document, offer,
// condition, stage, appointment and property events surface to the client;
// internal notes and raw status bookkeeping do not. There is deliberately no
// catch-all default: an unknown type is an error, never "hidden".
func Classify(t EntryType) (visibleToClient bool, err error) {
	switch t {
	case TypeCreated,
		TypeStageChange,
		TypeDocumentRequested,
		TypeDocumentSubmitted,
		TypeDocumentApproved,
		TypeDocumentNeedsRevision,
		TypeDocumentShared,
		TypeOfferSubmitted,
		TypeOfferAccepted,
		TypeConditionAdded,
		TypeConditionFulfilled,
		TypeAppointmentScheduled,
		TypeAppointmentCancelled,
		TypePropertyUpdated:
		return true, nil
	case TypeStatusChange, TypeNote:
		return false, nil
	}
	return false, fmt.Errorf("unclassified timeline entry type %q", t)
}

// ContextSnapshot denormalizes transaction context at write time so entries
// render without re-joining the aggregate.
type ContextSnapshot struct {
	ClientName string `json:"client_name"`
	BrokerName string `json:"broker_name"`
	StageName  string `json:"stage"`
	Side       string `json:"side"`
	// PreviousStageName is set on stage-change entries only.
	PreviousStageName string `json:"previous_stage,omitempty"`
}

// Entry is immutable once written; only the tombstone fields may change.
type Entry struct {
	ID              string
	TransactionID   string
	Timestamp       time.Time
	ActorID         string
	ActorName       string
	Type            EntryType
	Note            string
	DocumentType    string
	VisibleToClient bool
	Snapshot        *ContextSnapshot
	DeletedAt       *time.Time
	DeletedBy       string
}

// SnapshotOf builds the display snapshot from aggregate fields.
func SnapshotOf(clientName, brokerName string, st stage.Stage) *ContextSnapshot {
	return &ContextSnapshot{
		ClientName: clientName,
		BrokerName: brokerName,
		StageName:  st.Name(),
		Side:       string(st.Side()),
	}
}
