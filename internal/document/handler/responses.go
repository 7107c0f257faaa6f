package handler

import (
	"time"

	"dealflow/internal/document"
)

// DocumentResponse is the wire form of a document with its live versions.
type DocumentResponse struct {
	ID              string            `json:"id"`
	TransactionID   string            `json:"transaction_id"`
	Type            string            `json:"type"`
	Title           string            `json:"title"`
	Flow            string            `json:"flow"`
	ExpectedFrom    string            `json:"expected_from,omitempty"`
	Stage           string            `json:"stage"`
	Status          string            `json:"status"`
	VisibleToClient bool              `json:"visible_to_client"`
	DueDate         *time.Time        `json:"due_date,omitempty"`
	FileLost        bool              `json:"file_lost,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Versions        []VersionResponse `json:"versions"`
}

type VersionResponse struct {
	ID           string    `json:"id"`
	UploadedAt   time.Time `json:"uploaded_at"`
	UploaderType string    `json:"uploader_type"`
	UploaderName string    `json:"uploader_name"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

func toDocumentResponse(d *document.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:              d.ID,
		TransactionID:   d.TransactionID,
		Type:            string(d.Type),
		Title:           d.Title,
		Flow:            string(d.Flow),
		ExpectedFrom:    string(d.ExpectedFrom),
		Stage:           d.Stage.Name(),
		Status:          string(d.Status),
		VisibleToClient: d.VisibleToClient,
		DueDate:         d.DueDate,
		FileLost:        d.FileLost,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Versions:        []VersionResponse{},
	}
	for _, v := range d.LiveVersions() {
		resp.Versions = append(resp.Versions, VersionResponse{
			ID:           v.ID,
			UploadedAt:   v.UploadedAt,
			UploaderType: string(v.UploaderType),
			UploaderName: v.UploaderName,
			Filename:     v.Filename,
			ContentType:  v.ContentType,
			Size:         v.Size,
		})
	}
	return resp
}
