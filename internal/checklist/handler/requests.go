package handler

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"dealflow/internal/checklist"
)

// ToggleItemRequest is the HTTP request body for
// PATCH /transactions/{id}/checklist.
type ToggleItemRequest struct {
	Stage   string `json:"stage"`
	ItemKey string `json:"item_key"`
	Checked bool   `json:"checked"`
}

func (r ToggleItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Stage, validation.Required),
		validation.Field(&r.ItemKey, validation.Required),
	)
}

// ChecklistResponse is the merged checklist for one stage.
type ChecklistResponse struct {
	Stage string          `json:"stage"`
	Items []EntryResponse `json:"items"`
}

type EntryResponse struct {
	Key               string     `json:"key"`
	Label             string     `json:"label"`
	DocType           string     `json:"doc_type,omitempty"`
	SignatureRequired bool       `json:"signature_required"`
	Checked           bool       `json:"checked"`
	ManualChecked     bool       `json:"manual_checked"`
	ManualBy          string     `json:"manual_by,omitempty"`
	ManualAt          *time.Time `json:"manual_at,omitempty"`
	AutoChecked       bool       `json:"auto_checked"`
}

type StateResponse struct {
	TransactionID string     `json:"transaction_id"`
	Stage         string     `json:"stage"`
	ItemKey       string     `json:"item_key"`
	ManualChecked bool       `json:"manual_checked"`
	ManualBy      string     `json:"manual_by,omitempty"`
	ManualAt      *time.Time `json:"manual_at,omitempty"`
	AutoChecked   bool       `json:"auto_checked"`
}

func toEntryResponse(e *checklist.Entry) EntryResponse {
	return EntryResponse{
		Key:               e.Item.Key,
		Label:             e.Item.Label,
		DocType:           string(e.Item.DocType),
		SignatureRequired: e.Item.SignatureRequired,
		Checked:           e.Checked,
		ManualChecked:     e.ManualChecked,
		ManualBy:          e.ManualBy,
		ManualAt:          e.ManualAt,
		AutoChecked:       e.AutoChecked,
	}
}

func toStateResponse(s *checklist.State) StateResponse {
	return StateResponse{
		TransactionID: s.TransactionID,
		Stage:         s.StageName,
		ItemKey:       s.ItemKey,
		ManualChecked: s.ManualChecked,
		ManualBy:      s.ManualBy,
		ManualAt:      s.ManualAt,
		AutoChecked:   s.AutoChecked,
	}
}
