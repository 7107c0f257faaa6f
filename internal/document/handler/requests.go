package handler

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateDocumentRequest is the HTTP request body for
// POST /transactions/{id}/documents.
type CreateDocumentRequest struct {
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Flow         string     `json:"flow"`
	ExpectedFrom string     `json:"expected_from"`
	Stage        string     `json:"stage"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	AsDraft      bool       `json:"as_draft"`
}

func (r CreateDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&r.Flow, validation.Required, validation.In("REQUEST", "UPLOAD")),
		validation.Field(&r.ExpectedFrom, validation.In("BROKER", "CLIENT")),
		validation.Field(&r.Stage, validation.Required),
	)
}

// ReviewDocumentRequest is the HTTP request body for
// PATCH /documents/{id}/review.
type ReviewDocumentRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

func (r ReviewDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Decision, validation.Required, validation.In("APPROVED", "NEEDS_REVISION")),
		validation.Field(&r.Comments, validation.Length(0, 2000)),
	)
}
