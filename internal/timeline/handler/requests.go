package handler

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"dealflow/internal/timeline"
)

// AddNoteRequest is the HTTP request body for POST /transactions/{id}/notes.
type AddNoteRequest struct {
	Note string `json:"note"`
}

func (r AddNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Note, validation.Required, validation.Length(1, 4000)),
	)
}

type EntryResponse struct {
	ID              string            `json:"id"`
	TransactionID   string            `json:"transaction_id"`
	Timestamp       time.Time         `json:"timestamp"`
	ActorName       string            `json:"actor_name,omitempty"`
	Type            string            `json:"type"`
	Note            string            `json:"note,omitempty"`
	DocumentType    string            `json:"document_type,omitempty"`
	VisibleToClient bool              `json:"visible_to_client"`
	Snapshot        *SnapshotResponse `json:"snapshot,omitempty"`
}

type SnapshotResponse struct {
	ClientName string `json:"client_name,omitempty"`
	BrokerName string `json:"broker_name,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Side       string `json:"side,omitempty"`
}

type TimelineResponse struct {
	Entries []EntryResponse `json:"entries"`
}

func toEntryResponse(e *timeline.Entry) EntryResponse {
	resp := EntryResponse{
		ID:              e.ID,
		TransactionID:   e.TransactionID,
		Timestamp:       e.Timestamp,
		ActorName:       e.ActorName,
		Type:            string(e.Type),
		Note:            e.Note,
		DocumentType:    e.DocumentType,
		VisibleToClient: e.VisibleToClient,
	}
	if e.Snapshot != nil {
		resp.Snapshot = &SnapshotResponse{
			ClientName: e.Snapshot.ClientName,
			BrokerName: e.Snapshot.BrokerName,
			Stage:      e.Snapshot.StageName,
			Side:       e.Snapshot.Side,
		}
	}
	return resp
}

func toTimelineResponse(entries []*timeline.Entry) TimelineResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return TimelineResponse{Entries: out}
}
