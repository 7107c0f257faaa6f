package handler

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateTransactionRequest is the HTTP request body for POST /transactions.
type CreateTransactionRequest struct {
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name"`
	Side            string `json:"side"`
	PropertyAddress string `json:"property_address"`
}

func (r CreateTransactionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClientID, validation.Required),
		validation.Field(&r.ClientName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Side, validation.Required, validation.In("BUY", "SELL")),
		validation.Field(&r.PropertyAddress, validation.Length(0, 500)),
	)
}

// AdvanceStageRequest is the HTTP request body for PATCH /transactions/{id}/stage.
type AdvanceStageRequest struct {
	NewStage string `json:"new_stage"`
}

func (r AdvanceStageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewStage, validation.Required),
	)
}

// SetStatusRequest is the HTTP request body for PATCH /transactions/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status"`
}

func (r SetStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In("CLOSED", "TERMINATED")),
	)
}

// SetArchivedRequest is the HTTP request body for PATCH /transactions/{id}/archive.
type SetArchivedRequest struct {
	Archived bool `json:"archived"`
}

// GrantCoBrokerRequest is the HTTP request body for POST /transactions/{id}/co-brokers.
type GrantCoBrokerRequest struct {
	BrokerID    string   `json:"broker_id"`
	Permissions []string `json:"permissions"`
}

func (r GrantCoBrokerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BrokerID, validation.Required),
		validation.Field(&r.Permissions, validation.Required,
			validation.Each(validation.In("EDIT_STAGE", "EDIT_DOCUMENTS"))),
	)
}
